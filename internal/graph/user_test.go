package graph

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMe(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		email string
	}{
		{"mail", `{"id":"u1","displayName":"Jane Doe","mail":"jane@example.com","userPrincipalName":"upn@example.com"}`, "jane@example.com"},
		{"upn fallback", `{"id":"u1","displayName":"Jane Doe","mail":"","userPrincipalName":"upn@example.com"}`, "upn@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/me", r.URL.Path)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := newTestClient(t, srv.URL)
			user, err := client.Me(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "u1", user.ID)
			assert.Equal(t, "Jane Doe", user.DisplayName)
			assert.Equal(t, tt.email, user.Email)
		})
	}
}

func TestMe_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.Me(context.Background())
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestVerifyIdentity(t *testing.T) {
	user := &User{DisplayName: "Jane Doe", Email: "Jane@Example.com"}

	require.NoError(t, VerifyIdentity(user, "Jane Doe", ""))
	require.NoError(t, VerifyIdentity(user, "Jane Doe", "jane@example.com"))

	require.ErrorIs(t, VerifyIdentity(user, "jane doe", ""), ErrIdentityMismatch)
	require.ErrorIs(t, VerifyIdentity(user, "Jane Doe", "john@example.com"), ErrIdentityMismatch)
}
