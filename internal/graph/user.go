package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// ErrIdentityMismatch is returned when the signed-in account is not the one
// the caller expected.
var ErrIdentityMismatch = errors.New("graph: signed-in user does not match expected identity")

// userResponse mirrors the Graph API /me JSON response.
type userResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Mail        string `json:"mail"`
	// UPN is a fallback when mail is empty (common on Personal accounts).
	UPN string `json:"userPrincipalName"`
}

func (u *userResponse) toUser() User {
	email := u.Mail
	if email == "" {
		email = u.UPN
	}

	return User{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		Email:       email,
	}
}

// Me returns the authenticated user's profile.
func (c *Client) Me(ctx context.Context) (*User, error) {
	c.logger.Info("fetching authenticated user profile")

	resp, err := c.Do(ctx, http.MethodGet, "/me")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var ur userResponse
	if err := json.NewDecoder(resp.Body).Decode(&ur); err != nil {
		return nil, fmt.Errorf("graph: decoding user response: %w", err)
	}

	user := ur.toUser()

	c.logger.Debug("fetched user profile",
		slog.String("id", user.ID),
		slog.String("display_name", user.DisplayName),
	)

	return &user, nil
}

// VerifyIdentity checks that user is the expected account. The display name
// must match exactly; the email is compared case-insensitively and only when
// expectedEmail is non-empty.
func VerifyIdentity(user *User, expectedName, expectedEmail string) error {
	if user.DisplayName != expectedName {
		return fmt.Errorf("%w: display name %q, expected %q", ErrIdentityMismatch, user.DisplayName, expectedName)
	}

	if expectedEmail != "" && !strings.EqualFold(user.Email, expectedEmail) {
		return fmt.Errorf("%w: email %q, expected %q", ErrIdentityMismatch, user.Email, expectedEmail)
	}

	return nil
}
