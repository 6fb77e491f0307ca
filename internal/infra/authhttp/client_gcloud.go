//go:build gcloud

package authhttp

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"google.golang.org/api/idtoken"
)

// NewClient returns a client that attaches an ID token for audience. When no token
// source is available it degrades to an unauthenticated client.
func NewClient(audience string, timeout time.Duration) *http.Client {
	c, err := idtoken.NewClient(context.Background(), audience)
	if err != nil {
		slog.Error("failed to create idtoken client, falling back to unauthenticated client",
			slog.String("audience", audience),
			slog.String("error", err.Error()),
		)
		return plain(timeout)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c.Timeout = timeout
	return c
}
