package ctl

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"
)

const (
	serverEnv     = "REMINDCTL_SERVER"
	defaultServer = "http://localhost:8080"
)

var validFormats = []string{"text", "json"}

// RootOptions holds the flags shared by every command.
type RootOptions struct {
	Server  string
	Format  string
	Timeout time.Duration
}

func (o *RootOptions) client() *Client {
	return NewClient(o.Server, o.Timeout)
}

// NewRootCommand builds the remindctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	server := os.Getenv(serverEnv)
	if server == "" {
		server = defaultServer
	}

	cmd := &cobra.Command{
		Use:   "remindctl",
		Short: "Operate a running remind engine",
		Long:  "Inspect and repair the sync queue and fallback state of a remind engine over its HTTP API.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(validFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Server, "server", server, "engine base URL (env "+serverEnv+")")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "request timeout")

	cmd.AddCommand(newDeadLetterCommand(opts))
	cmd.AddCommand(newFallbackCommand(opts))
	cmd.AddCommand(newSyncCommand(opts))

	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
