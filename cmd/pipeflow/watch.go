package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll the repository for new commits and run pipelines on change",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch(cmd.Context())
	},
}

func runWatch(ctx context.Context) error {
	doc, err := loadConfigDoc()
	if err != nil {
		return err
	}
	orch, logger, err := buildOrchestrator(doc)
	if err != nil {
		return err
	}

	if err := orch.Start(ctx); err != nil {
		return err
	}
	defer orch.Stop()

	logger.Info("watching repository", "branch", doc.Repo.Branch, "dir", doc.Repo.WatchDir)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		logger.Info("shutting down", "signal", s.String())
	case <-ctx.Done():
	}
	return nil
}
