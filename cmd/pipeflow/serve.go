package main

import (
	"github.com/loykin/pipeflow/pkg/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the change monitor together with the HTTP control API",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := viper.GetViper().GetString("listen")

		doc, err := loadConfigDoc()
		if err != nil {
			return err
		}
		orch, logger, err := buildOrchestrator(doc)
		if err != nil {
			return err
		}

		if err := orch.Start(cmd.Context()); err != nil {
			return err
		}
		defer orch.Stop()

		logger.Info("serving control api", "addr", addr)
		return server.New(orch).Run(addr)
	},
}
