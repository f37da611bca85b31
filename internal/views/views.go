// Package views holds the screen-level controllers: each one drives the API
// client for a screen, keeps the local list state and reports outcomes to
// the notification center.
package views

import (
	"context"
	"errors"

	"libraryclient/internal/notify"
	"libraryclient/pkg/domain"
)

var (
	ErrLoginRequired  = errors.New("login required")
	ErrRatingRequired = errors.New("rating required")
	ErrNameRequired   = errors.New("name required")
	ErrForbidden      = errors.New("admin role required")
	ErrCatalogRole    = errors.New("librarian or admin role required")
	ErrSessionExpired = errors.New("session expired")
	ErrNothingToSave  = errors.New("nothing to update")
)

// Session is the part of the session store the views read.
type Session interface {
	Current() domain.Session
	UpdateUser(ctx context.Context, user domain.User) error
	Logout(ctx context.Context)
}

func requireLogin(s Session) error {
	if !s.Current().IsAuthenticated {
		return ErrLoginRequired
	}
	return nil
}

func requireAdmin(s Session) error {
	sess := s.Current()
	if !sess.IsAuthenticated {
		return ErrLoginRequired
	}
	if !sess.Role().IsAdmin() {
		return ErrForbidden
	}
	return nil
}

func requireCatalogRole(s Session) error {
	sess := s.Current()
	if !sess.IsAuthenticated {
		return ErrLoginRequired
	}
	if !sess.Role().CanManageCatalog() {
		return ErrCatalogRole
	}
	return nil
}

// discard is used when a controller is built without a notification center.
var discard = notify.NewCenter(notify.Config{})

func notesOrDiscard(c *notify.Center) *notify.Center {
	if c == nil {
		return discard
	}
	return c
}
