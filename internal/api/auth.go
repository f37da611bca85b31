package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"libraryclient/pkg/domain"
)

// LoginResult is the normalized login response.
type LoginResult struct {
	Token        string
	RefreshToken string
	User         domain.User
}

type loginResponse struct {
	AccessToken  string      `json:"accessToken"`
	Token        string      `json:"token"`
	RefreshToken string      `json:"refreshToken"`
	User         domain.User `json:"user"`
}

// Login exchanges credentials for a bearer token. The server's accessToken
// field is reported as Token.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	payload := map[string]string{"email": strings.TrimSpace(email), "password": password}
	var resp loginResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", nil, payload, &resp); err != nil {
		return LoginResult{}, err
	}
	token := resp.AccessToken
	if token == "" {
		token = resp.Token
	}
	if token == "" {
		return LoginResult{}, errors.New("login response carried no access token")
	}
	return LoginResult{Token: token, RefreshToken: resp.RefreshToken, User: resp.User}, nil
}

// ProfileUpdate carries the optional profile fields. Empty fields are not sent.
type ProfileUpdate struct {
	Name     string `json:"name,omitempty"`
	Password string `json:"password,omitempty"`
}

func (c *Client) UpdateProfile(ctx context.Context, update ProfileUpdate) (domain.User, error) {
	var user domain.User
	if err := c.doJSON(ctx, http.MethodPut, "/users/profile", nil, update, &user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}
