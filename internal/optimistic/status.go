package optimistic

import (
	"context"
	"sync"

	"libraryclient/pkg/domain"
)

// StatusAPI is the subset of the API client used by StatusTracker.
type StatusAPI interface {
	ReadingStatus(ctx context.Context, bookID int64) (domain.ReadingStatus, bool, error)
	SetReadingStatus(ctx context.Context, bookID int64, status domain.ReadingStatus) error
}

// StatusTracker holds reading-list status per book. An empty status means the
// book is not on the list. Failed changes roll back to the previous status.
type StatusTracker struct {
	api StatusAPI

	mu    sync.Mutex
	cells map[int64]*Cell[domain.ReadingStatus]
}

func NewStatusTracker(api StatusAPI) *StatusTracker {
	return &StatusTracker{api: api, cells: make(map[int64]*Cell[domain.ReadingStatus])}
}

// Load fetches the server's status for bookID.
func (s *StatusTracker) Load(ctx context.Context, bookID int64) (domain.ReadingStatus, error) {
	st, ok, err := s.api.ReadingStatus(ctx, bookID)
	if err != nil {
		return s.Get(bookID), err
	}
	if !ok {
		st = ""
	}
	s.cell(bookID).Set(st)
	return st, nil
}

// Set changes the status optimistically.
func (s *StatusTracker) Set(ctx context.Context, bookID int64, status domain.ReadingStatus) error {
	return s.cell(bookID).Mutate(ctx, status, func(ctx context.Context) (domain.ReadingStatus, bool, error) {
		return "", false, s.api.SetReadingStatus(ctx, bookID, status)
	}, nil)
}

func (s *StatusTracker) Get(bookID int64) domain.ReadingStatus {
	s.mu.Lock()
	cell, ok := s.cells[bookID]
	s.mu.Unlock()
	if !ok {
		return ""
	}
	return cell.Get()
}

func (s *StatusTracker) Pending(bookID int64) bool {
	s.mu.Lock()
	cell, ok := s.cells[bookID]
	s.mu.Unlock()
	return ok && cell.State() == Pending
}

func (s *StatusTracker) cell(bookID int64) *Cell[domain.ReadingStatus] {
	s.mu.Lock()
	defer s.mu.Unlock()
	cell, ok := s.cells[bookID]
	if !ok {
		cell = NewCell[domain.ReadingStatus]("")
		s.cells[bookID] = cell
	}
	return cell
}
