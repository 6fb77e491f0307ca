package ctl

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/KasumiMercury/primind-remind-engine/internal/domain"
)

// FallbackStatus mirrors the engine's /fallback response.
type FallbackStatus struct {
	Mode        string                       `json:"mode"`
	State       domain.HealthState           `json:"state"`
	Healthy     *bool                        `json:"healthy,omitempty"`
	Conditions  []string                     `json:"conditions,omitempty"`
	ErrorCounts map[domain.ErrorCategory]int `json:"errorCounts,omitempty"`
}

func (c *Client) FallbackStatus(ctx context.Context) (*FallbackStatus, error) {
	var status FallbackStatus
	if err := c.do(ctx, http.MethodGet, "/fallback", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) FallbackCheck(ctx context.Context) (*FallbackStatus, error) {
	var status FallbackStatus
	if err := c.do(ctx, http.MethodPost, "/fallback/check", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func newFallbackCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fallback",
		Short: "Inspect or re-evaluate the fallback mode",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the current mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := opts.client().FallbackStatus(cmd.Context())
			if err != nil {
				return err
			}
			return printFallback(cmd.OutOrStdout(), opts.Format, status)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Run a health check, leaving fallback when every condition has cleared",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := opts.client().FallbackCheck(cmd.Context())
			if err != nil {
				return err
			}
			return printFallback(cmd.OutOrStdout(), opts.Format, status)
		},
	})

	return cmd
}

func printFallback(w io.Writer, format string, status *FallbackStatus) error {
	if format == "json" {
		return writeJSON(w, status)
	}

	fmt.Fprintf(w, "mode:     %s\n", status.Mode)
	if status.State.Reason != "" {
		fmt.Fprintf(w, "reason:   %s\n", status.State.Reason)
	}
	fmt.Fprintf(w, "since:    %s\n", status.State.ChangedAt.Format(time.RFC3339))
	if status.Healthy != nil {
		fmt.Fprintf(w, "healthy:  %t\n", *status.Healthy)
	}
	if len(status.Conditions) > 0 {
		fmt.Fprintf(w, "blocking: %s\n", strings.Join(status.Conditions, ", "))
	}
	for category, n := range status.ErrorCounts {
		fmt.Fprintf(w, "errors:   %s=%d\n", category, n)
	}
	return nil
}
