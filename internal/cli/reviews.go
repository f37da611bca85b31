package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"libraryclient/internal/views"
	"libraryclient/pkg/domain"
)

func newReviewsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reviews",
		Short: "Read and write book reviews",
	}

	var rating int
	var content string
	add := &cobra.Command{
		Use:   "add <book-id>",
		Short: "Review a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			review, err := a.details().SubmitReview(cmd.Context(), id, rating, content)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Created review %d\n", review.ID)
			return nil
		},
	}
	add.Flags().IntVar(&rating, "rating", 0, "Rating from 1 to 5")
	add.Flags().StringVar(&content, "content", "", "Review text")

	var editRating int
	var editContent string
	edit := &cobra.Command{
		Use:   "edit <book-id> <review-id>",
		Short: "Edit one of your reviews",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			bookID, err := parseID(args[0])
			if err != nil {
				return err
			}
			reviewID, err := parseID(args[1])
			if err != nil {
				return err
			}
			return a.profile().UpdateReview(cmd.Context(), bookID, reviewID, editRating, strings.TrimSpace(editContent))
		},
	}
	edit.Flags().IntVar(&editRating, "rating", 0, "Rating from 1 to 5")
	edit.Flags().StringVar(&editContent, "content", "", "Review text")

	cmd.AddCommand(
		add,
		edit,
		&cobra.Command{
			Use:   "show <book-id> <review-id>",
			Short: "Show one review",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				bookID, err := parseID(args[0])
				if err != nil {
					return err
				}
				reviewID, err := parseID(args[1])
				if err != nil {
					return err
				}
				review, err := a.client.GetReview(cmd.Context(), bookID, reviewID)
				if err != nil {
					return fmt.Errorf("show review: %w", err)
				}
				printReviews(a.out, []domain.Review{review})
				return nil
			},
		},
		&cobra.Command{
			Use:   "list <book-id>",
			Short: "List the reviews of a book",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				reviews, err := a.client.ListReviews(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("list reviews: %w", err)
				}
				printReviews(a.out, reviews)
				return nil
			},
		},
		&cobra.Command{
			Use:   "mine",
			Short: "List your reviews",
			RunE: func(cmd *cobra.Command, args []string) error {
				if !a.session.Current().IsAuthenticated {
					return views.ErrLoginRequired
				}
				reviews, err := a.client.MyReviews(cmd.Context())
				if err != nil {
					return fmt.Errorf("list reviews: %w", err)
				}
				printReviews(a.out, reviews)
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <book-id> <review-id>",
			Short: "Delete a review",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				bookID, err := parseID(args[0])
				if err != nil {
					return err
				}
				reviewID, err := parseID(args[1])
				if err != nil {
					return err
				}
				return a.profile().DeleteReview(cmd.Context(), bookID, reviewID)
			},
		},
	)
	return cmd
}
