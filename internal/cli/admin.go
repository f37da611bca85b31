package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"libraryclient/internal/api"
	"libraryclient/internal/views"
	"libraryclient/pkg/domain"
)

func newTrashCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trash",
		Short: "Manage deleted books",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List books in the recycle bin",
			RunE: func(cmd *cobra.Command, args []string) error {
				books, err := views.NewRecycleBin(a.client, a.session, a.notes).Load(cmd.Context())
				if err != nil {
					return fmt.Errorf("list trash: %w", err)
				}
				printBooks(a.out, books)
				return nil
			},
		},
		trashActionCmd(a, "restore", "Restore a deleted book", (*views.RecycleBin).Restore),
		trashActionCmd(a, "purge", "Delete a book permanently", (*views.RecycleBin).Purge),
	)
	return cmd
}

func trashActionCmd(a *app, use, short string, action func(*views.RecycleBin, context.Context, int64) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return action(views.NewRecycleBin(a.client, a.session, a.notes), cmd.Context(), id)
		},
	}
}

func newCategoriesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "List and manage categories",
	}

	var in api.CategoryInput
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Name = args[0]
			c, err := views.NewCategories(a.client, a.session, a.notes).Create(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Created category %d\n", c.ID)
			return nil
		},
	}
	add.Flags().StringVar(&in.NameAr, "name-ar", "", "Arabic name")
	add.Flags().StringVar(&in.Icon, "icon", "", "Icon")
	add.Flags().StringVar(&in.Description, "description", "", "Description")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List categories",
			RunE: func(cmd *cobra.Command, args []string) error {
				cats, err := views.NewCategories(a.client, a.session, a.notes).List(cmd.Context())
				if err != nil {
					return fmt.Errorf("list categories: %w", err)
				}
				if len(cats) == 0 {
					fmt.Fprintln(a.out, "No categories found.")
					return nil
				}
				fmt.Fprintf(a.out, "%-6s  %-24s  %s\n", "ID", "NAME", "BOOKS")
				for _, c := range cats {
					fmt.Fprintf(a.out, "%-6d  %-24s  %d\n", c.ID, truncate(c.Name, 24), c.BookCount())
				}
				return nil
			},
		},
		add,
		&cobra.Command{
			Use:   "rename <id> <name>",
			Short: "Rename a category",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				_, err = views.NewCategories(a.client, a.session, a.notes).Update(cmd.Context(), id, api.CategoryInput{Name: strings.Join(args[1:], " ")})
				return err
			},
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete a category",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				return views.NewCategories(a.client, a.session, a.notes).Delete(cmd.Context(), id)
			},
		},
	)
	return cmd
}

func newAdminCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative commands",
	}
	users := &cobra.Command{
		Use:   "users",
		Short: "Manage user accounts",
	}

	var filter string
	list := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			u := views.NewUsers(a.client, a.session, a.notes)
			if _, err := u.Load(cmd.Context()); err != nil {
				return fmt.Errorf("list users: %w", err)
			}
			printUsers(a.out, u.Filter(filter))
			return nil
		},
	}
	list.Flags().StringVar(&filter, "filter", "", "Match name or email")

	users.AddCommand(
		list,
		&cobra.Command{
			Use:   "role <user-id> <role>",
			Short: "Change a user's role",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				role, ok := domain.ParseRole(args[1])
				if !ok {
					return fmt.Errorf("unknown role %q", args[1])
				}
				return views.NewUsers(a.client, a.session, a.notes).ChangeRole(cmd.Context(), id, role)
			},
		},
		&cobra.Command{
			Use:   "delete <user-id>",
			Short: "Delete a user",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				return views.NewUsers(a.client, a.session, a.notes).Delete(cmd.Context(), id)
			},
		},
	)

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show the admin overview",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := views.AdminDashboard(cmd.Context(), a.client, a.session)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Users: %d\nBooks: %d\nCategories: %d\n", s.TotalUsers, s.TotalBooks, s.TotalCategories)
			if len(s.RecentUsers) > 0 {
				fmt.Fprintln(a.out, "\nRecent users:")
				printUsers(a.out, s.RecentUsers)
			}
			return nil
		},
	}

	cmd.AddCommand(users, stats)
	return cmd
}
