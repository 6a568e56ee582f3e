package cli

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// pruneInterval is how often serve removes old published outbox rows.
const pruneInterval = time.Hour

// ServeCmd returns the serve command
func ServeCmd(app *App) *cobra.Command {
	var follow []string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the outbox dispatcher",
		Long: `Publish board changes recorded by every kanband process to the message
stores until interrupted. Use --follow to print a store as it changes, e.g.
--follow projects or --follow project:<id>:tasks.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.Container()
			if err != nil {
				return err
			}

			ctx, stop := interruptContext(cmd.Context())
			defer stop()

			logger := app.Logger.With().Str("component", "serve").Logger()
			streams := c.StreamAdapter(cmd.OutOrStdout())

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				prunePublished(ctx, app, pruneInterval)
			}()
			for _, key := range follow {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := streams.Follow(ctx, key); err != nil {
						logger.Error().Err(err).Str("store", key).Msg("follow failed")
					}
				}()
			}

			logger.Info().Str("database", app.Config.Database.Path).Msg("serving")
			err = c.Dispatcher.Run(ctx)
			stop()
			wg.Wait()
			return err
		},
	}
	cmd.Flags().StringArrayVar(&follow, "follow", nil, "print the messages of a store (repeatable)")
	return cmd
}

// prunePublished drops expired published rows now and every interval.
func prunePublished(ctx context.Context, app *App, interval time.Duration) {
	logger := app.Logger.With().Str("component", "serve").Logger()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		n, err := app.container.Outbox.Prune(ctx, 0)
		switch {
		case err != nil && ctx.Err() == nil:
			logger.Warn().Err(err).Msg("outbox prune failed")
		case n > 0:
			logger.Info().Int64("rows", n).Msg("pruned published outbox rows")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// interruptContext returns a context cancelled by SIGINT or SIGTERM.
func interruptContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
