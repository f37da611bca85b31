package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"libraryclient/internal/views"
	"libraryclient/pkg/domain"
)

func newLibraryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "library",
		Short: "Manage your reading list",
	}

	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List books on your reading list",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.session.Current().IsAuthenticated {
				return views.ErrLoginRequired
			}
			var filter domain.ReadingStatus
			if status != "" {
				st, ok := domain.ParseReadingStatus(status)
				if !ok {
					return fmt.Errorf("unknown status %q", status)
				}
				filter = st
			}
			entries, err := a.client.MyLibrary(cmd.Context(), filter)
			if err != nil {
				return fmt.Errorf("list library: %w", err)
			}
			if len(entries) == 0 {
				fmt.Fprintln(a.out, "Your reading list is empty.")
				return nil
			}
			fmt.Fprintf(a.out, "%-6s  %-14s  %s\n", "ID", "STATUS", "TITLE")
			for _, e := range entries {
				title := ""
				if e.Book != nil {
					title = e.Book.Title
				}
				fmt.Fprintf(a.out, "%-6d  %-14s  %s\n", e.BookID, e.Status, title)
			}
			return nil
		},
	}
	list.Flags().StringVar(&status, "status", "", "Filter by status (PLAN_TO_READ, READING, READ)")

	set := &cobra.Command{
		Use:   "set <book-id> <status>",
		Short: "Set the reading status of a book",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			st, ok := domain.ParseReadingStatus(args[1])
			if !ok {
				return fmt.Errorf("unknown status %q", args[1])
			}
			return a.details().SetStatus(cmd.Context(), id, st)
		},
	}

	cmd.AddCommand(list, set)
	return cmd
}
