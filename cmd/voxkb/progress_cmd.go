package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Inspect ingestion progress",
}

var progressShowCmd = &cobra.Command{
	Use:   "show [expert-id]",
	Short: "Show an expert's ingestion progress",
	Args:  cobra.ExactArgs(1),
	RunE:  runProgressShow,
}

var progressListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all active ingestions",
	RunE:  runProgressList,
}

var progressDeleteCmd = &cobra.Command{
	Use:   "delete [expert-id]",
	Short: "Delete an expert's progress record",
	Args:  cobra.ExactArgs(1),
	RunE:  runProgressDelete,
}

func init() {
	progressCmd.AddCommand(progressShowCmd, progressListCmd, progressDeleteCmd)
}

type progressRecord struct {
	ExpertID           string  `json:"expert_id"`
	TaskID             string  `json:"task_id"`
	Stage              string  `json:"stage"`
	Status             string  `json:"status"`
	QueuePosition      *int    `json:"queue_position"`
	CurrentFile        string  `json:"current_file"`
	CurrentFileIndex   int     `json:"current_file_index"`
	TotalFiles         int     `json:"total_files"`
	ProcessedFiles     int     `json:"processed_files"`
	FailedFiles        int     `json:"failed_files"`
	ProgressPercentage float64 `json:"progress_percentage"`
	ErrorMessage       string  `json:"error_message"`
}

func runProgressShow(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/progress/" + args[0])
	if err != nil {
		return err
	}

	var p progressRecord
	if err := json.Unmarshal(resp, &p); err != nil {
		return err
	}

	fmt.Printf("Expert:   %s\n", p.ExpertID)
	fmt.Printf("Task:     %s\n", p.TaskID)
	fmt.Printf("Stage:    %s\n", p.Stage)
	fmt.Printf("Status:   %s\n", p.Status)
	fmt.Printf("Progress: %.1f%%\n", p.ProgressPercentage)
	if p.QueuePosition != nil {
		fmt.Printf("Position: %d\n", *p.QueuePosition)
	}
	if p.CurrentFile != "" {
		fmt.Printf("File:     %s (%d/%d)\n", p.CurrentFile, p.CurrentFileIndex, p.TotalFiles)
	}
	fmt.Printf("Files:    %d processed, %d failed of %d\n", p.ProcessedFiles, p.FailedFiles, p.TotalFiles)
	if p.ErrorMessage != "" {
		fmt.Printf("Error:    %s\n", p.ErrorMessage)
	}
	return nil
}

func runProgressList(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/progress/")
	if err != nil {
		return err
	}

	var records []progressRecord
	if err := json.Unmarshal(resp, &records); err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Println("No active ingestions")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EXPERT\tSTAGE\tSTATUS\tPROGRESS\tFILES")
	for _, p := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.1f%%\t%d/%d\n",
			p.ExpertID, p.Stage, p.Status, p.ProgressPercentage, p.ProcessedFiles, p.TotalFiles)
	}
	w.Flush()
	return nil
}

func runProgressDelete(cmd *cobra.Command, args []string) error {
	if _, err := apiDelete("/progress/" + args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted progress for %s\n", args[0])
	return nil
}
