package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kirillkom/fashion-recommender/internal/bootstrap"
	"github.com/kirillkom/fashion-recommender/internal/core/domain"
	"github.com/kirillkom/fashion-recommender/internal/index"
	natsevents "github.com/kirillkom/fashion-recommender/internal/infrastructure/queue/nats"
)

func newPublishCmd(e *env) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Announce an existing index directory to API replicas",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			abs, err := filepath.Abs(dir)
			if err != nil {
				return err
			}
			// refuse to announce a directory the API could not load
			bundle, err := index.Load(ctx, abs)
			if err != nil {
				return err
			}
			event := domain.IndexRebuilt{Version: bundle.Version, Directory: abs, Documents: bundle.Metadata.Len()}
			if err := publishEvent(ctx, e, event); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %s from %s\n", event.Version, abs)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "index version directory")
	_ = cmd.MarkFlagRequired("dir")
	return cmd
}

func publishEvent(ctx context.Context, e *env, event domain.IndexRebuilt) error {
	if e.cfg.NATSURL == "" {
		return errors.New("NATS_URL is required to publish")
	}
	events, err := natsevents.New(e.cfg.NATSURL, e.cfg.NATSSubject, natsevents.Options{
		ResilienceExecutor: bootstrap.NewExecutor(e.cfg, nil, e.logger),
		Logger:             e.logger,
	})
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	defer events.Close()

	if err := events.PublishIndexRebuilt(ctx, event); err != nil {
		return fmt.Errorf("publish index event: %w", err)
	}
	e.logger.Info("index_published",
		zap.String("version", event.Version),
		zap.String("dir", event.Directory),
		zap.Int("documents", event.Documents),
	)
	return nil
}
