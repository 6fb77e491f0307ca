//go:build !gcloud

package authhttp

import (
	"net/http"
	"time"
)

// NewClient returns an unauthenticated client.
func NewClient(_ string, timeout time.Duration) *http.Client {
	return plain(timeout)
}
