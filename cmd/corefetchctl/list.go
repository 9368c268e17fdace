package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

type taskView struct {
	ID             string  `json:"id"`
	Kind           string  `json:"kind"`
	Filename       string  `json:"filename"`
	Status         string  `json:"status"`
	Progress       float64 `json:"progress"`
	TotalSize      int64   `json:"total_size"`
	DownloadedSize int64   `json:"downloaded_size"`
	Speed          int64   `json:"speed"`
	ErrorMessage   string  `json:"error_message"`
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all downloads",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := apiRequest("GET", "/downloads", nil)
		if err != nil {
			return err
		}
		var tasks []taskView
		if err := json.Unmarshal(out, &tasks); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tKIND\tFILENAME\tSTATUS\tPROGRESS\tSPEED")
		for _, t := range tasks {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.1f%%\t%d B/s\n",
				t.ID, t.Kind, t.Filename, t.Status, t.Progress, t.Speed)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
