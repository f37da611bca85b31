package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"libraryclient/internal/views"
)

func newFavoritesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "favorites",
		Short: "List or toggle favorite books",
	}
	var idsOnly bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List favorite books",
		RunE: func(cmd *cobra.Command, args []string) error {
			if idsOnly {
				if !a.session.Current().IsAuthenticated {
					return views.ErrLoginRequired
				}
				if err := a.favorites.Load(cmd.Context()); err != nil {
					return fmt.Errorf("list favorites: %w", err)
				}
				for _, id := range a.favorites.IDs() {
					fmt.Fprintln(a.out, id)
				}
				return nil
			}
			catalog := views.NewCatalog(a.client, a.session, a.notes)
			if err := catalog.Reset(cmd.Context(), views.CatalogQuery{Favorites: true}); err != nil {
				return fmt.Errorf("list favorites: %w", err)
			}
			printBooks(a.out, catalog.Books())
			return nil
		},
	}
	list.Flags().BoolVar(&idsOnly, "ids", false, "Print only book ids")

	cmd.AddCommand(
		list,
		&cobra.Command{
			Use:   "toggle <book-id>",
			Short: "Add or remove a favorite",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				fav, err := a.details().ToggleFavorite(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "favorite=%t\n", fav)
				return nil
			},
		},
	)
	return cmd
}
