package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	addFilename       string
	addFolderID       string
	addAutoExtract    bool
	addSpeedLimit     int64
	addMaxConnections int
)

var addCmd = &cobra.Command{
	Use:   "add [url]",
	Short: "Add a new download",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var url string
		if len(args) == 1 {
			url = args[0]
		}
		if url == "" && addFolderID == "" {
			return fmt.Errorf("either a url or --folder-id is required")
		}

		body := map[string]any{
			"url":             url,
			"folder_id":       addFolderID,
			"filename":        addFilename,
			"auto_extract":    addAutoExtract,
			"speed_limit":     addSpeedLimit,
			"max_connections": addMaxConnections,
		}
		out, err := apiRequest("POST", "/downloads", body)
		if err != nil {
			return err
		}
		var resp struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		}
		if err := json.Unmarshal(out, &resp); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		fmt.Printf("added %s (%s)\n", resp.ID, resp.Status)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(addCmd)
	addCmd.Flags().StringVar(&addFilename, "filename", "", "destination filename or folder name override")
	addCmd.Flags().StringVar(&addFolderID, "folder-id", "", "remote folder id to fetch recursively, via the configured metadata provider")
	addCmd.Flags().BoolVar(&addAutoExtract, "auto-extract", false, "extract the file after it finishes downloading")
	addCmd.Flags().Int64Var(&addSpeedLimit, "speed-limit", 0, "per-task speed cap in bytes/sec, 0 for unlimited")
	addCmd.Flags().IntVar(&addMaxConnections, "connections", 0, "number of segmented-download connections, 0 for the server default")
}
