package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

type settingsView struct {
	DownloadDir            string `json:"DownloadDir"`
	MaxConcurrentDownloads int    `json:"MaxConcurrentDownloads"`
	MaxConnectionsPerTask  int    `json:"MaxConnectionsPerTask"`
	OrganizeFiles          bool   `json:"OrganizeFiles"`
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show the engine's current settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := apiRequest("GET", "/settings", nil)
		if err != nil {
			return err
		}
		var s settingsView
		if err := json.Unmarshal(out, &s); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		fmt.Printf("download_dir: %s\n", s.DownloadDir)
		fmt.Printf("max_concurrent_downloads: %d\n", s.MaxConcurrentDownloads)
		fmt.Printf("max_connections_per_task: %d\n", s.MaxConnectionsPerTask)
		fmt.Printf("organize_files: %t\n", s.OrganizeFiles)
		return nil
	},
}

var (
	setDownloadDir     string
	setMaxConcurrent   int
	setMaxConnsPerTask int
	setOrganizeFiles   bool
)

var setSettingsCmd = &cobra.Command{
	Use:   "set-settings",
	Short: "Update the engine's settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		body := settingsView{
			DownloadDir:            setDownloadDir,
			MaxConcurrentDownloads: setMaxConcurrent,
			MaxConnectionsPerTask:  setMaxConnsPerTask,
			OrganizeFiles:          setOrganizeFiles,
		}
		_, err := apiRequest("POST", "/settings", body)
		return err
	},
}

func init() {
	rootCmd.AddCommand(settingsCmd, setSettingsCmd)
	setSettingsCmd.Flags().StringVar(&setDownloadDir, "download-dir", "", "stored download_dir setting (a running engine keeps downloading into the directory it was started with)")
	setSettingsCmd.Flags().IntVar(&setMaxConcurrent, "max-concurrent", 3, "global concurrent-download ceiling")
	setSettingsCmd.Flags().IntVar(&setMaxConnsPerTask, "max-connections", 4, "default segmented-download connection count")
	setSettingsCmd.Flags().BoolVar(&setOrganizeFiles, "organize-files", false, "move completed files into category subfolders")
}
