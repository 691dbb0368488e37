package main

import (
	"fmt"

	"github.com/loykin/pipeflow/internal/engine"
	"github.com/loykin/pipeflow/internal/pipeline"
	"github.com/loykin/pipeflow/pkg/status"
	"github.com/spf13/cobra"
)

var triggerCmd = &cobra.Command{
	Use:     "trigger <build|test|deploy>",
	Aliases: []string{"run"},
	Short:   "Run a single pipeline now and print the result",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		typ := pipeline.Type(args[0])
		if !typ.Valid() {
			return fmt.Errorf("unknown pipeline type: %s", args[0])
		}

		doc, err := loadConfigDoc()
		if err != nil {
			return err
		}
		orch, _, err := buildOrchestrator(doc)
		if err != nil {
			return err
		}

		rec, err := orch.TriggerPipeline(cmd.Context(), typ)
		if err != nil {
			return err
		}

		snap := rec.Snapshot()
		fmt.Print(status.FromSnapshot(snap))
		if snap.Status == engine.StatusFailed {
			return fmt.Errorf("pipeline %s failed", typ)
		}
		return nil
	},
}
