// Command corefetchctl is the CLI front-end for a running corefetch
// engine, driving its REST surface (spec §6) the way the teacher's
// cmd/ package drives Surge's HTTP server from a separate process.
// Grounded on surge-downloader-surge's cmd/root.go + cmd/add.go command
// shape: small cobra subcommands, each a thin HTTP client.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var addr string

var rootCmd = &cobra.Command{
	Use:   "corefetchctl",
	Short: "Control a running corefetch engine",
	Long:  "corefetchctl talks to a running corefetch engine's REST API to add, list, and manage downloads.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "http://127.0.0.1:8877", "corefetch engine API address")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func apiRequest(method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, addr+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, string(out))
	}
	return out, nil
}
