package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/menta2k/palmscan/internal/utils"
	"github.com/menta2k/palmscan/pkg/upload"
)

var scansCmd = &cobra.Command{
	Use:   "scans",
	Short: "Inspect and maintain scans in the record store",
}

var scansListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored scans, newest first",
	Run: func(cmd *cobra.Command, args []string) {
		c := newUploadClient()
		scans, err := c.ListScans(cmd.Context())
		if err != nil {
			utils.Die("Failed to list scans", err)
		}
		if len(scans) == 0 {
			fmt.Println("No scans found in the record store.")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tDISEASE\tCONFIDENCE\tSEVERITY\tDEVICE\tTIME")
		fmt.Fprintln(w, "--\t-------\t----------\t--------\t------\t----")
		for _, s := range scans {
			when := s.Timestamp
			if t, err := time.Parse(time.RFC3339, s.Timestamp); err == nil {
				when = t.Local().Format("2006-01-02 15:04")
			}
			fmt.Fprintf(w, "%s\t%s\t%d%%\t%s\t%s\t%s\n", s.ID, s.Disease, s.Confidence, s.SeverityLevel, s.DeviceID, when)
		}
		w.Flush()
	},
}

var scansDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete scans from the record store",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c := newUploadClient()
		for _, id := range args {
			if err := c.DeleteScan(cmd.Context(), id); err != nil {
				utils.Die("Failed to delete scan "+id, err)
			}
			fmt.Printf("🗑️  Deleted %s\n", id)
		}
	},
}

var scansHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the record store health endpoint",
	Run: func(cmd *cobra.Command, args []string) {
		status, err := newUploadClient().Health(cmd.Context())
		if err != nil {
			utils.Die("Record store unreachable", err)
		}
		fmt.Printf("%s %s\nstatus:   %s\ndatabase: %s\nstorage:  %s\n", status.Service, status.Version, status.Status, status.Database, status.Storage)
	},
}

var scansPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List records saved locally after a failed upload",
	Run: func(cmd *cobra.Command, args []string) {
		pending, err := upload.NewOutbox(cfg.Upload.OutboxPath).Pending()
		if err != nil {
			utils.Die("Failed to read outbox", err)
		}
		if len(pending) == 0 {
			fmt.Println("Outbox is empty.")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tDISEASE\tIMAGE\tATTEMPTS\tLAST ERROR")
		fmt.Fprintln(w, "--\t-------\t-----\t--------\t----------")
		for _, p := range pending {
			fmt.Fprintf(w, "%s\t%s\t%t\t%d\t%s\n", p.Record.ID, p.Record.Detection.DiseaseName, p.Record.HasImage(), p.Attempts, p.LastErr)
		}
		w.Flush()
	},
}

var scansRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Send records from the local outbox to the record store",
	Run: func(cmd *cobra.Command, args []string) {
		c := newUploadClient()
		outbox := upload.NewOutbox(cfg.Upload.OutboxPath)
		pending, err := outbox.Pending()
		if err != nil {
			utils.Die("Failed to read outbox", err)
		}

		sent := 0
		for _, p := range pending {
			receipt, err := c.Upload(cmd.Context(), p.Record)
			if err != nil {
				fmt.Printf("⚠️  %s: %v\n", p.Record.ID, err)
				if serr := outbox.Save(p.Record, err); serr != nil {
					utils.Die("Failed to update outbox", serr)
				}
				continue
			}
			if err := outbox.Remove(p.Record.ID); err != nil {
				utils.Die("Failed to update outbox", err)
			}
			sent++
			fmt.Printf("✅ %s uploaded as %s\n", p.Record.ID, receipt.ScanID)
		}
		fmt.Printf("%d of %d pending records sent.\n", sent, len(pending))
	},
}

func newUploadClient() *upload.Client {
	if cfg.Upload.ServerURL == "" {
		utils.Die("No record store configured", errors.New("set --server or upload.server_url"))
	}
	c, err := upload.NewClient(cfg.Upload.ServerURL, cfg.UploadTimeout())
	if err != nil {
		utils.Die("Invalid record store URL", err)
	}
	return c
}

func init() {
	scansCmd.AddCommand(scansListCmd, scansDeleteCmd, scansHealthCmd, scansPendingCmd, scansRetryCmd)
	rootCmd.AddCommand(scansCmd)
}
