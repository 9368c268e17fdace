// Command corefetch runs the download engine as a headless process:
// REST server plus background scheduler, until it receives SIGINT or
// SIGTERM. Grounded on the teacher's main.go wiring order (logger,
// storage, engine, control server, then block on OS signals), with the
// GUI/tray/MCP branches removed per DESIGN.md — this module targets a
// standalone service, not a desktop app.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"corefetch/internal/engine"
)

func main() {
	var (
		downloadDir = flag.String("download-dir", "", "destination directory for downloads (default: $HOME/Downloads)")
		stateDir    = flag.String("state-dir", "", "directory for corefetch.db and app.json (default: download-dir)")
		apiAddr     = flag.String("addr", "127.0.0.1:8877", "REST API listen address")
		redisAddr   = flag.String("redis-addr", os.Getenv("REDIS_URL"), "optional Redis address for cross-process event fan-out (default: $REDIS_URL)")
	)
	flag.Parse()

	if *downloadDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, "corefetch:", err)
			os.Exit(1)
		}
		*downloadDir = filepath.Join(home, "Downloads")
	}

	e, err := engine.New(engine.Options{
		DownloadDir: *downloadDir,
		StateDir:    *stateDir,
		APIAddr:     *apiAddr,
		RedisAddr:   *redisAddr,
		ConsoleOut:  os.Stdout,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "corefetch:", err)
		os.Exit(1)
	}

	e.Start()
	e.Log.Info("corefetch started", "api_addr", *apiAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	e.Log.Info("shutting down")
	e.Shutdown()
}
