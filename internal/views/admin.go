package views

import (
	"context"
	"strings"
	"sync"

	"libraryclient/internal/api"
	"libraryclient/internal/notify"
	"libraryclient/pkg/domain"
)

// Users is the admin user-management screen.
type Users struct {
	api     *api.Client
	session Session
	notes   *notify.Center

	mu    sync.Mutex
	users []domain.User
}

func NewUsers(client *api.Client, session Session, notes *notify.Center) *Users {
	return &Users{api: client, session: session, notes: notesOrDiscard(notes)}
}

func (u *Users) Load(ctx context.Context) ([]domain.User, error) {
	if err := requireAdmin(u.session); err != nil {
		return nil, err
	}
	users, err := u.api.AdminUsers(ctx)
	if err != nil {
		u.notes.Error("Failed to load users")
		return nil, err
	}
	u.mu.Lock()
	u.users = users
	u.mu.Unlock()
	return u.List(), nil
}

func (u *Users) List() []domain.User {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]domain.User, len(u.users))
	copy(out, u.users)
	return out
}

// Filter matches query against name or email, ignoring case.
func (u *Users) Filter(query string) []domain.User {
	q := strings.ToLower(strings.TrimSpace(query))
	all := u.List()
	if q == "" {
		return all
	}
	out := make([]domain.User, 0, len(all))
	for _, user := range all {
		if strings.Contains(strings.ToLower(user.Name), q) || strings.Contains(strings.ToLower(user.Email), q) {
			out = append(out, user)
		}
	}
	return out
}

// ChangeRole updates the local row only after the server accepts it.
func (u *Users) ChangeRole(ctx context.Context, userID int64, role domain.UserRole) error {
	if err := requireAdmin(u.session); err != nil {
		return err
	}
	if err := u.api.SetUserRole(ctx, userID, role); err != nil {
		u.notes.Error("Failed to update user role")
		return err
	}
	u.mu.Lock()
	for i := range u.users {
		if u.users[i].ID == userID {
			u.users[i].Role = role
		}
	}
	u.mu.Unlock()
	// Changing one's own role is reflected in the local session right away.
	if me := u.session.Current().User; me != nil && me.ID == userID {
		updated := *me
		updated.Role = role
		if err := u.session.UpdateUser(ctx, updated); err != nil {
			u.notes.Warning("Role changed, but the local session could not be updated")
		}
	}
	u.notes.Success("User role updated successfully")
	return nil
}

func (u *Users) Delete(ctx context.Context, userID int64) error {
	if err := requireAdmin(u.session); err != nil {
		return err
	}
	if err := u.api.DeleteUser(ctx, userID); err != nil {
		u.notes.Error("Failed to delete user")
		return err
	}
	u.mu.Lock()
	kept := u.users[:0]
	for _, user := range u.users {
		if user.ID != userID {
			kept = append(kept, user)
		}
	}
	u.users = kept
	u.mu.Unlock()
	u.notes.Success("User deleted successfully")
	return nil
}

// Categories is the category-management screen.
type Categories struct {
	api     *api.Client
	session Session
	notes   *notify.Center
}

func NewCategories(client *api.Client, session Session, notes *notify.Center) *Categories {
	return &Categories{api: client, session: session, notes: notesOrDiscard(notes)}
}

func (c *Categories) List(ctx context.Context) ([]domain.Category, error) {
	cats, err := c.api.Categories(ctx)
	if err != nil {
		c.notes.Error("Failed to load categories")
		return nil, err
	}
	return cats, nil
}

func (c *Categories) Create(ctx context.Context, in api.CategoryInput) (domain.Category, error) {
	if err := c.validate(&in); err != nil {
		return domain.Category{}, err
	}
	created, err := c.api.CreateCategory(ctx, in)
	if err != nil {
		c.notes.Error("Failed to create category")
		return domain.Category{}, err
	}
	c.notes.Success("Category created successfully")
	return created, nil
}

func (c *Categories) Update(ctx context.Context, id int64, in api.CategoryInput) (domain.Category, error) {
	if err := c.validate(&in); err != nil {
		return domain.Category{}, err
	}
	updated, err := c.api.UpdateCategory(ctx, id, in)
	if err != nil {
		c.notes.Error("Failed to update category")
		return domain.Category{}, err
	}
	c.notes.Success("Category updated successfully")
	return updated, nil
}

func (c *Categories) Delete(ctx context.Context, id int64) error {
	if err := requireLogin(c.session); err != nil {
		return err
	}
	if err := c.api.DeleteCategory(ctx, id); err != nil {
		c.notes.Error("Failed to delete category")
		return err
	}
	c.notes.Success("Category deleted successfully")
	return nil
}

func (c *Categories) validate(in *api.CategoryInput) error {
	if err := requireLogin(c.session); err != nil {
		return err
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		c.notes.Error("Category name is required")
		return ErrNameRequired
	}
	return nil
}

// RecycleBin lists soft-deleted books and restores or purges them.
type RecycleBin struct {
	api     *api.Client
	session Session
	notes   *notify.Center

	mu    sync.Mutex
	books []domain.Book
}

func NewRecycleBin(client *api.Client, session Session, notes *notify.Center) *RecycleBin {
	return &RecycleBin{api: client, session: session, notes: notesOrDiscard(notes)}
}

func (b *RecycleBin) Load(ctx context.Context) ([]domain.Book, error) {
	if err := requireLogin(b.session); err != nil {
		return nil, err
	}
	books, err := b.api.Trash(ctx)
	if err != nil {
		b.notes.Error("Failed to load trash items")
		return nil, err
	}
	b.mu.Lock()
	b.books = books
	b.mu.Unlock()
	return b.Items(), nil
}

func (b *RecycleBin) Items() []domain.Book {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Book, len(b.books))
	copy(out, b.books)
	return out
}

func (b *RecycleBin) Restore(ctx context.Context, id int64) error {
	if err := b.api.RestoreBook(ctx, id); err != nil {
		b.notes.Error("Failed to restore book")
		return err
	}
	b.drop(id)
	b.notes.Success("Book restored successfully")
	return nil
}

func (b *RecycleBin) Purge(ctx context.Context, id int64) error {
	if err := b.api.PurgeBook(ctx, id); err != nil {
		b.notes.Error("Failed to delete permanently")
		return err
	}
	b.drop(id)
	b.notes.Success("Book permanently deleted")
	return nil
}

func (b *RecycleBin) drop(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.books[:0]
	for _, book := range b.books {
		if book.ID != id {
			kept = append(kept, book)
		}
	}
	b.books = kept
}
