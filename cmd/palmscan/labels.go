package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/menta2k/palmscan/internal/utils"
	"github.com/menta2k/palmscan/pkg/model"
	"github.com/menta2k/palmscan/pkg/presentation"
)

var labelsCmd = &cobra.Command{
	Use:   "labels",
	Short: "Show the model's labels with their severity and recommendation",
	Run: func(cmd *cobra.Command, args []string) {
		labels, err := loadLabels()
		if err != nil {
			utils.Die("Failed to load labels", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "#\tLABEL\tSTATUS\tNAME\tSEVERITY")
		fmt.Fprintln(w, "-\t-----\t------\t----\t--------")
		for i, l := range labels {
			p := presentation.FormatLabel(l)
			fmt.Fprintf(w, "%d\t%s\t%s %s\t%s\t%s\n", i, l, p.Emoji, p.StatusText, presentation.FriendlyName(l), p.SeverityLevel())
		}
		w.Flush()
	},
}

// loadLabels reads the label file, or the classes of the metadata file
func loadLabels() ([]string, error) {
	if cfg.Model.LabelsPath != "" {
		return model.LoadLabels(cfg.Model.LabelsPath)
	}
	meta, err := model.LoadMetadata(cfg.Model.MetadataPath)
	if err != nil {
		return nil, err
	}
	spec, err := meta.Spec(nil)
	if err != nil {
		return nil, err
	}
	return spec.Labels, nil
}

func init() {
	rootCmd.AddCommand(labelsCmd)
}
