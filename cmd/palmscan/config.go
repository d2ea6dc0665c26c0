package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/menta2k/palmscan/internal/config"
	"github.com/menta2k/palmscan/internal/utils"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or create the configuration file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Run: func(cmd *cobra.Command, args []string) {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			utils.Die("Failed to encode configuration", err)
		}
		os.Stdout.Write(out)
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default configuration file (.json, .yaml or .yml)",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := config.GetConfigPath()
		if len(args) == 1 {
			path = args[0]
		}
		if utils.FileExists(path) && !configForce {
			utils.Die("Refusing to overwrite configuration", errors.New(path+" exists, use --force"))
		}
		if err := config.Default().SaveToFile(path); err != nil {
			utils.Die("Failed to write configuration", err)
		}
		fmt.Printf("📝 Wrote default configuration to %s\n", path)
	},
}

func init() {
	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "overwrite an existing file")

	configCmd.AddCommand(configShowCmd, configInitCmd)
	rootCmd.AddCommand(configCmd)
}
