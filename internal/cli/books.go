package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"libraryclient/internal/views"
	"libraryclient/pkg/domain"
)

func newBooksCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "books",
		Short: "Browse and manage the catalog",
	}
	cmd.AddCommand(newBooksListCmd(a), newBooksShowCmd(a), newBooksSuggestCmd(a), newBooksAddCmd(a), newBooksUpdateCmd(a), newBooksDeleteCmd(a))
	return cmd
}

func newBooksListCmd(a *app) *cobra.Command {
	var (
		search     string
		categoryID int64
		favorites  bool
		pages      int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List books",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog := views.NewCatalog(a.client, a.session, a.notes)
			q := views.CatalogQuery{Search: search, CategoryID: categoryID, Favorites: favorites}
			if err := catalog.Reset(cmd.Context(), q); err != nil {
				return fmt.Errorf("list books: %w", err)
			}
			for catalog.Page() < pages && catalog.HasMore() {
				if err := catalog.LoadMore(cmd.Context()); err != nil {
					return fmt.Errorf("load more: %w", err)
				}
			}
			books := catalog.Books()
			printBooks(a.out, books)
			if catalog.HasMore() {
				fmt.Fprintf(a.out, "\n(%d shown, use --pages %d for more)\n", len(books), catalog.Page()+1)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "Match title or author")
	cmd.Flags().Int64Var(&categoryID, "category", 0, "Filter by category id")
	cmd.Flags().BoolVar(&favorites, "favorites", false, "List only favorite books")
	cmd.Flags().IntVar(&pages, "pages", 1, "Number of pages to load")
	return cmd
}

func newBooksShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a book with its reviews",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			view, err := a.details().Open(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("show book: %w", err)
			}
			b := view.Book
			fmt.Fprintf(a.out, "%s\nby %s\n", b.Title, b.Author)
			if b.Category != nil {
				fmt.Fprintf(a.out, "Category: %s\n", b.Category.Name)
			}
			if b.PublishedYear > 0 {
				fmt.Fprintf(a.out, "Published: %d\n", b.PublishedYear)
			}
			if cover := b.CoverURL(a.cfg.APIBase()); cover != "" {
				fmt.Fprintf(a.out, "Cover: %s\n", cover)
			}
			if a.session.Current().IsAuthenticated {
				fmt.Fprintf(a.out, "Favorite: %t\n", view.Favorite)
				if view.Status != "" {
					fmt.Fprintf(a.out, "Status: %s\n", view.Status)
				}
			}
			if desc := plainText(b.Description); desc != "" {
				fmt.Fprintf(a.out, "\n%s\n", desc)
			}
			fmt.Fprintln(a.out)
			printReviews(a.out, view.Reviews)
			return nil
		},
	}
}

func newBooksSuggestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "suggest [text]",
		Short: "Show title suggestions for a search",
		Long: "Show up to five matching books. Without arguments, search lines are read from stdin " +
			"and only the last line typed within the debounce delay is looked up.",
		RunE: func(cmd *cobra.Command, args []string) error {
			show := func(text string) error {
				books, err := views.Suggestions(cmd.Context(), a.client, text)
				if err != nil {
					return fmt.Errorf("suggest: %w", err)
				}
				for _, b := range books {
					fmt.Fprintf(a.out, "%d\t%s - %s\n", b.ID, b.Title, b.Author)
				}
				return nil
			}
			if len(args) > 0 {
				return show(strings.Join(args, " "))
			}

			var (
				mu      sync.Mutex
				lastErr error
			)
			d := views.NewDebouncer(views.DefaultDebounce)
			defer d.Stop()
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				text := scanner.Text()
				d.Trigger(func() {
					err := show(text)
					mu.Lock()
					lastErr = err
					mu.Unlock()
				})
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			d.Flush()
			mu.Lock()
			defer mu.Unlock()
			return lastErr
		},
	}
}

func newBooksAddCmd(a *app) *cobra.Command {
	var (
		book       domain.Book
		categoryID int64
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a book to the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(book.Title) == "" || strings.TrimSpace(book.Author) == "" {
				return errors.New("--title and --author are required")
			}
			if categoryID > 0 {
				book.CategoryID = &categoryID
			}
			created, err := a.client.CreateBook(cmd.Context(), book)
			if err != nil {
				return fmt.Errorf("add book: %w", err)
			}
			a.notes.Success("Book added successfully")
			fmt.Fprintf(a.out, "Created book %d\n", created.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&book.Title, "title", "", "Title")
	cmd.Flags().StringVar(&book.Author, "author", "", "Author")
	cmd.Flags().StringVar(&book.ISBN, "isbn", "", "ISBN")
	cmd.Flags().StringVar(&book.Description, "description", "", "Description")
	cmd.Flags().StringVar(&book.Language, "language", "", "Language")
	cmd.Flags().IntVar(&book.PublishedYear, "year", 0, "Publication year")
	cmd.Flags().IntVar(&book.PageCount, "pages", 0, "Page count")
	cmd.Flags().Int64Var(&categoryID, "category", 0, "Category id")
	return cmd
}

func newBooksUpdateCmd(a *app) *cobra.Command {
	var (
		patch      domain.Book
		categoryID int64
	)
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Edit a book (librarian or admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if categoryID > 0 {
				patch.CategoryID = &categoryID
			}
			updated, err := a.details().UpdateBook(cmd.Context(), id, patch)
			if err != nil {
				return fmt.Errorf("update book: %w", err)
			}
			fmt.Fprintf(a.out, "Updated book %d: %s - %s\n", updated.ID, updated.Title, updated.Author)
			return nil
		},
	}
	cmd.Flags().StringVar(&patch.Title, "title", "", "Title")
	cmd.Flags().StringVar(&patch.Author, "author", "", "Author")
	cmd.Flags().StringVar(&patch.ISBN, "isbn", "", "ISBN")
	cmd.Flags().StringVar(&patch.Description, "description", "", "Description")
	cmd.Flags().StringVar(&patch.Language, "language", "", "Language")
	cmd.Flags().IntVar(&patch.PublishedYear, "year", 0, "Publication year")
	cmd.Flags().IntVar(&patch.PageCount, "pages", 0, "Page count")
	cmd.Flags().Int64Var(&categoryID, "category", 0, "Category id")
	return cmd
}

func newBooksDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Move a book to the recycle bin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.details().DeleteBook(cmd.Context(), id)
		},
	}
}
