package main

import (
	"fmt"

	"github.com/loykin/pipeflow/pkg/status"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show active runs and aggregate pipeline metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		history := viper.GetViper().GetBool("history")

		doc, err := loadConfigDoc()
		if err != nil {
			return err
		}
		orch, _, err := buildOrchestrator(doc)
		if err != nil {
			return err
		}

		info := status.Collect(orch.Runs(), orch.Metrics())
		fmt.Print(info.FormatHuman(history))
		return nil
	},
}
