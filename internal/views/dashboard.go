package views

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"libraryclient/internal/api"
	"libraryclient/internal/notify"
	"libraryclient/pkg/domain"
)

type DashboardStats struct {
	TotalBooks      int
	TotalCategories int
	TotalFavorites  int
	RecentBooks     []domain.Book
	TopRated        []domain.Book
	Reading         []domain.LibraryEntry
	MostRead        []domain.Book
}

// Dashboard fetches every panel in parallel. Any failure fails the whole
// dashboard; a 401 is reported as ErrSessionExpired.
func Dashboard(ctx context.Context, client *api.Client, session Session, notes *notify.Center) (DashboardStats, error) {
	notes = notesOrDiscard(notes)
	if err := requireLogin(session); err != nil {
		return DashboardStats{}, err
	}

	var (
		stats      DashboardStats
		recent     domain.BookListResponse
		topRated   domain.BookListResponse
		mostRead   domain.BookListResponse
		favorites  []int64
		categories []domain.Category
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		recent, err = client.ListBooks(gctx, api.BookQuery{Limit: 6})
		return err
	})
	g.Go(func() (err error) {
		favorites, err = client.FavoriteIDs(gctx)
		return err
	})
	g.Go(func() (err error) {
		categories, err = client.Categories(gctx)
		return err
	})
	g.Go(func() (err error) {
		topRated, err = client.ListBooks(gctx, api.BookQuery{Sort: "-rating", Limit: 5})
		return err
	})
	g.Go(func() (err error) {
		stats.Reading, err = client.MyLibrary(gctx, domain.StatusReading)
		return err
	})
	g.Go(func() (err error) {
		mostRead, err = client.ListBooks(gctx, api.BookQuery{Sort: "most_read", Limit: 5})
		return err
	})
	if err := g.Wait(); err != nil {
		if api.IsUnauthorized(err) {
			notes.Error("Session expired. Please login again.")
			return DashboardStats{}, ErrSessionExpired
		}
		notes.Error("Failed to load dashboard data")
		return DashboardStats{}, err
	}

	stats.TotalBooks = recent.Total
	if stats.TotalBooks == 0 {
		stats.TotalBooks = len(recent.Data)
	}
	stats.TotalCategories = len(categories)
	stats.TotalFavorites = len(favorites)
	stats.RecentBooks = recent.Data
	if len(stats.RecentBooks) > 6 {
		stats.RecentBooks = stats.RecentBooks[:6]
	}
	stats.TopRated = topRated.Data
	stats.MostRead = mostRead.Data
	return stats, nil
}

type AdminStats struct {
	TotalUsers      int
	TotalBooks      int
	TotalCategories int
	RecentUsers     []domain.User
}

const recentUsers = 5

// AdminDashboard fetches the admin overview. Each panel fails on its own and
// reads as zero.
func AdminDashboard(ctx context.Context, client *api.Client, session Session) (AdminStats, error) {
	if err := requireAdmin(session); err != nil {
		return AdminStats{}, err
	}
	var (
		stats AdminStats
		wg    sync.WaitGroup
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		users, err := client.AdminUsers(ctx)
		if err != nil {
			return
		}
		stats.TotalUsers = len(users)
		if len(users) > recentUsers {
			users = users[:recentUsers]
		}
		stats.RecentUsers = users
	}()
	go func() {
		defer wg.Done()
		if books, err := client.ListBooks(ctx, api.BookQuery{Limit: 1}); err == nil {
			stats.TotalBooks = books.Total
		}
	}()
	go func() {
		defer wg.Done()
		if cats, err := client.Categories(ctx); err == nil {
			stats.TotalCategories = len(cats)
		}
	}()
	wg.Wait()
	return stats, nil
}
