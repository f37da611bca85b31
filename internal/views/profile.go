package views

import (
	"context"
	"strings"

	"libraryclient/internal/api"
	"libraryclient/internal/notify"
	"libraryclient/pkg/domain"
)

// Profile is the current user's profile screen.
type Profile struct {
	api     *api.Client
	session Session
	notes   *notify.Center
}

func NewProfile(client *api.Client, session Session, notes *notify.Center) *Profile {
	return &Profile{api: client, session: session, notes: notesOrDiscard(notes)}
}

type ProfileSummary struct {
	User      *domain.User
	Favorites int
	Reading   int
	Reviews   []domain.Review
}

// Summary loads the counters and the user's reviews. Counter failures read
// as zero.
func (p *Profile) Summary(ctx context.Context) (ProfileSummary, error) {
	if err := requireLogin(p.session); err != nil {
		return ProfileSummary{}, err
	}
	sum := ProfileSummary{User: p.session.Current().User}
	if ids, err := p.api.FavoriteIDs(ctx); err == nil {
		sum.Favorites = len(ids)
	}
	if entries, err := p.api.MyLibrary(ctx, ""); err == nil {
		for _, e := range entries {
			if e.Status == domain.StatusReading {
				sum.Reading++
			}
		}
	}
	reviews, err := p.api.MyReviews(ctx)
	if err != nil {
		p.notes.Error("Failed to load reviews")
		return sum, err
	}
	sum.Reviews = reviews
	return sum, nil
}

// Update saves the name and optional new password, then logs out so the
// next login picks up the change.
func (p *Profile) Update(ctx context.Context, name, password string) (domain.User, error) {
	if err := requireLogin(p.session); err != nil {
		return domain.User{}, err
	}
	update := api.ProfileUpdate{Name: strings.TrimSpace(name), Password: password}
	if update.Name == "" && update.Password == "" {
		return domain.User{}, ErrNothingToSave
	}
	user, err := p.api.UpdateProfile(ctx, update)
	if err != nil {
		p.notes.Error("Failed to update profile")
		return domain.User{}, err
	}
	p.notes.Success("Profile updated successfully! Please login again to see changes.")
	p.session.Logout(ctx)
	return user, nil
}

func (p *Profile) UpdateReview(ctx context.Context, bookID, reviewID int64, rating int, content string) error {
	if rating < 1 || rating > 5 {
		p.notes.Warning("Please select a rating!")
		return ErrRatingRequired
	}
	if err := p.api.UpdateReview(ctx, bookID, reviewID, rating, content); err != nil {
		p.notes.Error("Failed to update review")
		return err
	}
	p.notes.Success("Review updated successfully")
	return nil
}

func (p *Profile) DeleteReview(ctx context.Context, bookID, reviewID int64) error {
	if err := p.api.DeleteReview(ctx, bookID, reviewID); err != nil {
		p.notes.Error("Failed to delete review")
		return err
	}
	p.notes.Success("Review deleted successfully")
	return nil
}
