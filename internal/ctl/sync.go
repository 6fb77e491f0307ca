package ctl

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/KasumiMercury/primind-remind-engine/internal/domain"
)

// Drain asks the engine to drain. With wait the call returns the finished run, otherwise nil.
func (c *Client) Drain(ctx context.Context, wait bool) (*domain.DrainRun, error) {
	if !wait {
		return nil, c.do(ctx, http.MethodPost, "/sync/drain", nil, nil)
	}

	var run domain.DrainRun
	if err := c.do(ctx, http.MethodPost, "/sync/drain", url.Values{"wait": {"true"}}, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func newSyncCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Drive the sync queue",
	}

	var wait bool
	drain := &cobra.Command{
		Use:   "drain",
		Short: "Drain the sync queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := opts.client().Drain(cmd.Context(), wait)
			if err != nil {
				return err
			}
			if run == nil {
				if opts.Format == "json" {
					return writeJSON(cmd.OutOrStdout(), map[string]string{"status": "scheduled"})
				}
				fmt.Fprintln(cmd.OutOrStdout(), "drain scheduled")
				return nil
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), run)
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"drained %d of %d in %s: succeeded=%d retried=%d deferred=%d unresolvable=%d dead_lettered=%d conflicts=%d\n",
				run.Processed, run.Queued, run.Duration.Round(time.Millisecond),
				run.Succeeded, run.Retried, run.Deferred, run.Unresolvable, run.DeadLettered, run.Conflicts,
			)
			return nil
		},
	}
	drain.Flags().BoolVar(&wait, "wait", false, "drain inline and print the result")
	cmd.AddCommand(drain)

	return cmd
}
