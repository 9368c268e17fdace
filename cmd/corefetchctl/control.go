package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pauseCmd = &cobra.Command{
	Use:   "pause [id]",
	Short: "Pause a download",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := apiRequest("POST", "/downloads/"+args[0]+"/pause", nil)
		return err
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume [id]",
	Short: "Resume a paused or queued download",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := apiRequest("POST", "/downloads/"+args[0]+"/resume", nil)
		return err
	},
}

var deleteFile bool

var cancelCmd = &cobra.Command{
	Use:     "cancel [id]",
	Aliases: []string{"rm", "delete"},
	Short:   "Cancel and remove a download",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q := ""
		if deleteFile {
			q = "?delete_file=true"
		}
		_, err := apiRequest("DELETE", "/downloads/"+args[0]+q, nil)
		return err
	},
}

var renameTo string

var renameCmd = &cobra.Command{
	Use:   "rename [id]",
	Short: "Rename a download's destination file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if renameTo == "" {
			return fmt.Errorf("--to is required")
		}
		_, err := apiRequest("POST", "/downloads/"+args[0]+"/rename", map[string]string{"filename": renameTo})
		return err
	},
}

var limitBytesPerSec int64

var limitCmd = &cobra.Command{
	Use:   "limit [id]",
	Short: "Set a download's speed cap in bytes/sec (0 to remove)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := apiRequest("POST", "/downloads/"+args[0]+"/limit", map[string]int64{"limit": limitBytesPerSec})
		return err
	},
}

func init() {
	rootCmd.AddCommand(pauseCmd, resumeCmd, cancelCmd, renameCmd, limitCmd)
	cancelCmd.Flags().BoolVar(&deleteFile, "delete-file", false, "also remove the downloaded file/parts from disk")
	renameCmd.Flags().StringVar(&renameTo, "to", "", "new destination filename")
	limitCmd.Flags().Int64Var(&limitBytesPerSec, "bytes-per-sec", 0, "speed cap in bytes/sec, 0 for unlimited")
}
