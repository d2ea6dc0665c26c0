package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/menta2k/palmscan"
	"github.com/menta2k/palmscan/internal/config"
	"github.com/menta2k/palmscan/internal/utils"
)

var (
	// cfg is loaded once in PersistentPreRunE and shared by subcommands
	cfg *config.Config

	configPath string
	envFile    string
	serverURL  string
	backend    string
)

var rootCmd = &cobra.Command{
	Use:     "palmscan",
	Short:   "Coconut palm leaf disease classifier",
	Version: palmscan.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = loadConfig()
		if err != nil {
			return err
		}

		if serverURL != "" {
			cfg.Upload.ServerURL = serverURL
		}
		if backend != "" {
			cfg.Model.Backend = backend
		}
		return nil
	},
	SilenceUsage: true,
}

func loadConfig() (*config.Config, error) {
	c := config.Default()

	path := configPath
	if path == "" && utils.FileExists(config.GetConfigPath()) {
		path = config.GetConfigPath()
	}
	if path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		log.Printf("Loaded configuration from %s", path)
		c = loaded
	}

	if err := c.ApplyEnv(envFile); err != nil {
		return nil, err
	}
	return c, nil
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	log.SetFlags(log.Ltime)

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file, JSON or YAML (default: "+config.GetConfigPath()+" if present)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file with PALMSCAN_* / POSTGRES_* overrides")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "record store URL (overrides upload.server_url)")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "inference backend: onnx, ollama or llamacpp")
}
