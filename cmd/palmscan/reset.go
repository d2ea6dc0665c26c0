package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/menta2k/palmscan/internal/store"
	"github.com/menta2k/palmscan/internal/utils"
	"github.com/menta2k/palmscan/pkg/upload"
)

var (
	resetDB     bool
	resetImages bool
	resetOutbox bool
	resetYes    bool
	resetDBURL  string
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear stored scans, stored images and the local outbox",
	Long:  "Clears all data. By default, it resets everything. Use flags to clear specific components.",
	Run: func(cmd *cobra.Command, args []string) {
		if !resetDB && !resetImages && !resetOutbox {
			resetDB, resetImages, resetOutbox = true, true, true
		}

		reader := bufio.NewReader(os.Stdin)

		if resetDB {
			url := resetDBURL
			if url == "" {
				url = cfg.Server.DatabaseURL
			}
			if url == "" {
				utils.Die("No database configured", errors.New("set --db, server.database_url or POSTGRES_HOST"))
			}
			if confirm(reader, "⚠️  Are you sure you want to delete all stored scans?") {
				db, err := store.New(cmd.Context(), url)
				if err != nil {
					utils.Die("Failed to connect to database", err)
				}
				fmt.Println("🗑️  Clearing Database...")
				err = db.Reset(cmd.Context())
				db.Close(context.Background())
				if err != nil {
					utils.Die("Failed to reset database", err)
				}
			}
		}

		if resetImages && utils.DirExists(cfg.Server.ImageDir) {
			if confirm(reader, "⚠️  Are you sure you want to delete all stored images in "+cfg.Server.ImageDir+"?") {
				fmt.Println("🗑️  Clearing Images...")
				removeDir(cfg.Server.ImageDir)
			}
		}

		if resetOutbox && utils.FileExists(cfg.Upload.OutboxPath) {
			pending, _ := upload.NewOutbox(cfg.Upload.OutboxPath).Pending()
			if confirm(reader, fmt.Sprintf("⚠️  Are you sure you want to drop %d unsent records?", len(pending))) {
				fmt.Println("🗑️  Clearing Outbox...")
				if err := os.Remove(cfg.Upload.OutboxPath); err != nil {
					utils.Die("Failed to remove outbox", err)
				}
			}
		}

		fmt.Println("✨ Reset Complete.")
	},
}

func confirm(reader *bufio.Reader, prompt string) bool {
	if resetYes {
		return true
	}
	fmt.Printf("%s [y/N]: ", prompt)
	answer, _ := reader.ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func removeDir(path string) {
	if err := os.RemoveAll(path); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to remove %s: %v\n", path, err)
	}
}

func init() {
	resetCmd.Flags().BoolVar(&resetDB, "db", false, "clear the scans table")
	resetCmd.Flags().BoolVar(&resetImages, "images", false, "delete stored scan images")
	resetCmd.Flags().BoolVar(&resetOutbox, "outbox", false, "drop records waiting in the local outbox")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "do not ask for confirmation")
	resetCmd.Flags().StringVar(&resetDBURL, "db-url", "", "PostgreSQL connection string (default: server.database_url)")

	rootCmd.AddCommand(resetCmd)
}
