package views

import (
	"context"
	"strings"

	"libraryclient/internal/api"
	"libraryclient/internal/notify"
	"libraryclient/internal/optimistic"
	"libraryclient/pkg/domain"
)

// BookDetails drives the actions available on a single book.
type BookDetails struct {
	api       *api.Client
	session   Session
	favorites *optimistic.FavoriteSet
	status    *optimistic.StatusTracker
	notes     *notify.Center
}

func NewBookDetails(client *api.Client, session Session, favorites *optimistic.FavoriteSet, status *optimistic.StatusTracker, notes *notify.Center) *BookDetails {
	return &BookDetails{api: client, session: session, favorites: favorites, status: status, notes: notesOrDiscard(notes)}
}

// BookView is a book together with the viewer's relationship to it.
type BookView struct {
	Book     domain.Book
	Reviews  []domain.Review
	Favorite bool
	Status   domain.ReadingStatus
}

// Open loads a book and, for a logged-in viewer, its favorite and
// reading-list state.
func (d *BookDetails) Open(ctx context.Context, bookID int64) (BookView, error) {
	book, err := d.api.GetBook(ctx, bookID)
	if err != nil {
		d.notes.Error(api.MessageOf(err, "Failed to load book"))
		return BookView{}, err
	}
	view := BookView{Book: book}
	if reviews, err := d.api.ListReviews(ctx, bookID); err == nil {
		view.Reviews = reviews
	}
	if !d.session.Current().IsAuthenticated {
		return view, nil
	}
	if err := d.favorites.Load(ctx); err == nil {
		view.Favorite = d.favorites.Has(bookID)
	}
	if st, err := d.status.Load(ctx, bookID); err == nil {
		view.Status = st
	}
	return view, nil
}

// ToggleFavorite flips the favorite flag and returns the settled value.
func (d *BookDetails) ToggleFavorite(ctx context.Context, bookID int64) (bool, error) {
	if err := requireLogin(d.session); err != nil {
		return false, err
	}
	fav, err := d.favorites.Toggle(ctx, bookID)
	if err != nil {
		d.notes.Error("Failed to toggle favorite")
		return fav, err
	}
	if fav {
		d.notes.Success("Added to favorites")
	} else {
		d.notes.Success("Removed from favorites")
	}
	return fav, nil
}

func (d *BookDetails) SetStatus(ctx context.Context, bookID int64, status domain.ReadingStatus) error {
	if err := requireLogin(d.session); err != nil {
		return err
	}
	if err := d.status.Set(ctx, bookID, status); err != nil {
		d.notes.Error("Failed to update status")
		return err
	}
	d.notes.Success("Reading status updated")
	return nil
}

// SubmitReview posts a review. A rating outside 1..5 is rejected before any
// request is made.
func (d *BookDetails) SubmitReview(ctx context.Context, bookID int64, rating int, content string) (domain.Review, error) {
	if err := requireLogin(d.session); err != nil {
		return domain.Review{}, err
	}
	if rating < 1 || rating > 5 {
		d.notes.Warning("Please select a rating!")
		return domain.Review{}, ErrRatingRequired
	}
	review, err := d.api.AddReview(ctx, bookID, rating, strings.TrimSpace(content))
	if err != nil {
		d.notes.Error(api.MessageOf(err, "Failed to submit review"))
		return domain.Review{}, err
	}
	d.notes.Success("Review submitted successfully!")
	return review, nil
}

// UpdateBook sends the non-zero fields of patch. Editing is offered to
// librarians and admins only.
func (d *BookDetails) UpdateBook(ctx context.Context, bookID int64, patch domain.Book) (domain.Book, error) {
	if err := requireCatalogRole(d.session); err != nil {
		return domain.Book{}, err
	}
	if patch == (domain.Book{}) {
		return domain.Book{}, ErrNothingToSave
	}
	updated, err := d.api.UpdateBook(ctx, bookID, patch)
	if err != nil {
		d.notes.Error("Failed to update book")
		return domain.Book{}, err
	}
	d.notes.Success("Book updated successfully")
	return updated, nil
}

// DeleteBook moves the book to the recycle bin.
func (d *BookDetails) DeleteBook(ctx context.Context, bookID int64) error {
	if err := requireLogin(d.session); err != nil {
		return err
	}
	if err := d.api.DeleteBook(ctx, bookID); err != nil {
		d.notes.Error("Failed to delete book")
		return err
	}
	d.notes.Success("Book deleted successfully")
	return nil
}
