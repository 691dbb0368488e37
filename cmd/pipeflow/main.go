package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "pipeflow",
	Short: "Watch a repository, run CI/CD pipelines, and auto-recover from failures",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch(cmd.Context())
	},
}

func init() {
	// Defaults
	v := viper.GetViper()
	v.SetDefault("config", "./config/config.yaml")
	v.SetDefault("listen", ":8080")
	v.SetDefault("history", false)

	// Environment variables support: PIPEFLOW_CONFIG, ...
	v.SetEnvPrefix("PIPEFLOW")
	v.AutomaticEnv()
	// Bind flags via Cobra and then bind to Viper
	rootCmd.PersistentFlags().String("config", v.GetString("config"), "path to a config yaml (like examples/go_service/config.yaml)")
	serveCmd.Flags().String("listen", v.GetString("listen"), "address for the HTTP control API")
	statusCmd.Flags().Bool("history", v.GetBool("history"), "include completed runs in the status output")

	_ = v.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = v.BindPFlag("listen", serveCmd.Flags().Lookup("listen"))
	_ = v.BindPFlag("history", statusCmd.Flags().Lookup("history"))

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(triggerCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		exitHandler.LogFatalError(err, "command execution failed")
	}
}
