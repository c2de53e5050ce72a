package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/codeplane/codeplane/pkg/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "codeplane",
	Short: "codeplane is the control-plane engine for an embedding coding-agent SDK or editor extension.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default ~/.codeplane/config.json)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(replayCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		var err error
		path, err = config.GetDefaultConfigPath()
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
	}
	return config.LoadConfig(path)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
