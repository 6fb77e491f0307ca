// Package authhttp builds the HTTP clients used for service-to-service calls. Under the
// gcloud build tag requests carry an ID token minted for the callee.
package authhttp

import (
	"net/http"
	"time"
)

const DefaultTimeout = 30 * time.Second

func plain(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}
