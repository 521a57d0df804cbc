package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "voxkb",
	Short: "voxkb - knowledge base ingestion queue",
	Long:  `voxkb runs the durable ingestion queue for expert knowledge bases: submit document sets, watch them move through extraction, embedding, and storage, and inspect the queue.`,
	// No RunE - defaults to showing help when no subcommand is provided
}

var (
	apiAddr string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", "http://127.0.0.1:7433", "API server address")

	// Add subcommands
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(enqueueCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(progressCmd)
	rootCmd.AddCommand(monitorCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
