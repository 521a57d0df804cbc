package main

import (
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"

	"github.com/voxkb/voxkb/internal/tui"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Launch the live ingestion monitor",
	RunE:  runMonitor,
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if !isDaemonRunning(apiAddr) {
		fmt.Println("voxkb daemon not running. Starting background service...")
		if err := startDaemon(); err != nil {
			return fmt.Errorf("failed to start daemon: %w", err)
		}
	}

	app := tui.New(apiAddr)
	if err := app.Run(); err != nil {
		return fmt.Errorf("monitor error: %w", err)
	}
	return nil
}

func isDaemonRunning(addr string) bool {
	client := http.Client{Timeout: 500 * time.Millisecond}
	resp, err := client.Get(addr + "/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func startDaemon() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}

	// Start "voxkb daemon" detached so it survives monitor exit. The
	// daemon writes to its own log file; silence the terminal streams so
	// they don't corrupt the TUI.
	cmd := exec.Command(exe, "daemon")
	configureDaemonProc(cmd)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return err
	}

	// Wait for it to become ready
	fmt.Print("   Waiting for daemon...")
	for i := 0; i < 20; i++ { // Wait up to 5 seconds
		if isDaemonRunning(apiAddr) {
			fmt.Println(" Done.")
			return nil
		}
		time.Sleep(250 * time.Millisecond)
		fmt.Print(".")
	}
	fmt.Println(" Timeout!")
	return fmt.Errorf("daemon started but API not reachable at %s", apiAddr)
}
