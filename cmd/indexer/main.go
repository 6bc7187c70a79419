// Command indexer builds index artifact directories from a product catalog
// and announces them to running API replicas.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kirillkom/fashion-recommender/internal/config"
	"github.com/kirillkom/fashion-recommender/internal/observability/logging"
)

// env carries what every subcommand needs. It is filled in PersistentPreRunE.
type env struct {
	cfg    config.Config
	logger *zap.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:           "indexer",
		Short:         "Build and publish fashion recommender indexes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, err := logging.New("fashion-recommender-indexer", cfg.AppEnv, cfg.LogLevel)
			if err != nil {
				return err
			}
			e.cfg = cfg
			e.logger = logger
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if e.logger != nil {
				_ = e.logger.Sync()
			}
		},
	}
	root.AddCommand(newBuildCmd(e), newPublishCmd(e))
	return root
}
