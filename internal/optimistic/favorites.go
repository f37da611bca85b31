package optimistic

import (
	"context"
	"sort"
	"sync"
)

// FavoritesAPI is the subset of the API client used by FavoriteSet.
type FavoritesAPI interface {
	ToggleFavorite(ctx context.Context, bookID int64) (bool, error)
	FavoriteIDs(ctx context.Context) ([]int64, error)
}

// FavoriteSet tracks the current user's favorite books. Toggles apply
// locally before the server answers; a failed toggle refetches the
// authoritative list.
type FavoriteSet struct {
	api FavoritesAPI

	mu       sync.Mutex
	cells    map[int64]*Cell[bool]
	onChange func(bookID int64, favorite bool, state State)
}

func NewFavoriteSet(api FavoritesAPI) *FavoriteSet {
	return &FavoriteSet{api: api, cells: make(map[int64]*Cell[bool])}
}

// Load replaces local state with the server's list.
func (f *FavoriteSet) Load(ctx context.Context) error {
	ids, err := f.api.FavoriteIDs(ctx)
	if err != nil {
		return err
	}
	f.apply(ids, false)
	return nil
}

// Toggle flips the favorite flag of bookID and returns the value in effect
// once the mutation settles.
func (f *FavoriteSet) Toggle(ctx context.Context, bookID int64) (bool, error) {
	cell := f.cell(bookID)
	next := !cell.Get()
	err := cell.Mutate(ctx, next,
		func(ctx context.Context) (bool, bool, error) {
			fav, err := f.api.ToggleFavorite(ctx, bookID)
			return fav, true, err
		},
		func(ctx context.Context) (bool, error) {
			ids, err := f.api.FavoriteIDs(ctx)
			if err != nil {
				return false, err
			}
			f.apply(ids, true)
			return contains(ids, bookID), nil
		},
	)
	return cell.Get(), err
}

func (f *FavoriteSet) Has(bookID int64) bool {
	f.mu.Lock()
	cell, ok := f.cells[bookID]
	f.mu.Unlock()
	return ok && cell.Get()
}

func (f *FavoriteSet) Pending(bookID int64) bool {
	f.mu.Lock()
	cell, ok := f.cells[bookID]
	f.mu.Unlock()
	return ok && cell.State() == Pending
}

// IDs returns the ids currently shown as favorites, tentative ones included.
func (f *FavoriteSet) IDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int64, 0, len(f.cells))
	for id, cell := range f.cells {
		if cell.Get() {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// OnChange registers fn to observe every visible change of a favorite flag,
// tentative values included. It applies to books tracked after the call.
func (f *FavoriteSet) OnChange(fn func(bookID int64, favorite bool, state State)) {
	f.mu.Lock()
	f.onChange = fn
	f.mu.Unlock()
}

// Reset forgets all state, typically on logout.
func (f *FavoriteSet) Reset() {
	f.mu.Lock()
	f.cells = make(map[int64]*Cell[bool])
	f.mu.Unlock()
}

func (f *FavoriteSet) cell(bookID int64) *Cell[bool] {
	f.mu.Lock()
	defer f.mu.Unlock()
	cell, ok := f.cells[bookID]
	if !ok {
		cell = f.newCellLocked(bookID)
	}
	return cell
}

func (f *FavoriteSet) newCellLocked(bookID int64) *Cell[bool] {
	cell := NewCell(false)
	if fn := f.onChange; fn != nil {
		cell.OnChange(func(v bool, st State) { fn(bookID, v, st) })
	}
	f.cells[bookID] = cell
	return cell
}

// apply writes the authoritative list. With idleOnly, cells that have a
// mutation in flight keep their tentative value.
func (f *FavoriteSet) apply(ids []int64, idleOnly bool) {
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	f.mu.Lock()
	for id := range want {
		if _, ok := f.cells[id]; !ok {
			f.newCellLocked(id)
		}
	}
	cells := make(map[int64]*Cell[bool], len(f.cells))
	for id, c := range f.cells {
		cells[id] = c
	}
	f.mu.Unlock()

	for id, c := range cells {
		if idleOnly {
			c.SetIfIdle(want[id])
		} else {
			c.Set(want[id])
		}
	}
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
