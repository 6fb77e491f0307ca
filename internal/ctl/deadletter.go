package ctl

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/KasumiMercury/primind-remind-engine/internal/domain"
)

func (c *Client) DeadLetters(ctx context.Context) ([]domain.DeadLetter, error) {
	var letters []domain.DeadLetter
	if err := c.do(ctx, http.MethodGet, "/sync/deadletters", nil, &letters); err != nil {
		return nil, err
	}
	return letters, nil
}

func (c *Client) Requeue(ctx context.Context, id string) (*domain.SyncQueueItem, error) {
	var item domain.SyncQueueItem
	if err := c.do(ctx, http.MethodPost, "/sync/deadletters/"+url.PathEscape(id)+"/requeue", nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *Client) Purge(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/sync/deadletters/"+url.PathEscape(id), nil, nil)
}

func newDeadLetterCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "deadletter",
		Aliases: []string{"dl"},
		Short:   "Review sync items that exhausted their retries",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List dead letters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			letters, err := opts.client().DeadLetters(cmd.Context())
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), letters)
			}
			if len(letters) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no dead letters")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tOPERATION\tTABLE\tRECORD\tRETRIES\tDEAD SINCE\tREASON")
			for _, l := range letters {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
					l.Item.ID,
					l.Item.Operation,
					l.Item.Table,
					l.Item.RecordID,
					l.Item.RetryCount,
					l.DeadLetterAt.Format(time.RFC3339),
					l.Reason,
				)
			}
			return w.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "requeue <id>",
		Short: "Move a dead letter back onto the sync queue with its retry state reset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			item, err := opts.client().Requeue(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), item)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "requeued %s (%s %s record %d)\n", item.ID, item.Operation, item.Table, item.RecordID)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "purge <id>",
		Short: "Discard a dead letter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.client().Purge(cmd.Context(), args[0]); err != nil {
				return err
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"purged": args[0]})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %s\n", args[0])
			return nil
		},
	})

	return cmd
}
