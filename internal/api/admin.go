package api

import (
	"context"
	"fmt"
	"net/http"

	"libraryclient/pkg/domain"
)

func (c *Client) AdminUsers(ctx context.Context) ([]domain.User, error) {
	var users []domain.User
	if err := c.doJSON(ctx, http.MethodGet, "/admin/users", nil, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *Client) SetUserRole(ctx context.Context, userID int64, role domain.UserRole) error {
	if !role.Valid() {
		return fmt.Errorf("invalid role %q", role)
	}
	payload := map[string]domain.UserRole{"role": role}
	return c.doJSON(ctx, http.MethodPut, fmt.Sprintf("/admin/users/%d/role", userID), nil, payload, nil)
}

func (c *Client) DeleteUser(ctx context.Context, userID int64) error {
	return c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/admin/users/%d", userID), nil, nil, nil)
}
