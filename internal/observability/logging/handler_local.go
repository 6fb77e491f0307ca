//go:build !gcloud

package logging

import (
	"context"
	"log/slog"
)

// traceAttrs adds nothing locally; spans are exported over OTLP and correlate there.
func traceAttrs(_ context.Context, _ string) []slog.Attr {
	return nil
}
