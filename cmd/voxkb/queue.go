package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and manage the ingestion queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks in queue order",
	RunE:  runQueueList,
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate queue counts",
	RunE:  runQueueStats,
}

var queueCancelCmd = &cobra.Command{
	Use:   "cancel [task-id]",
	Short: "Cancel a queued task",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueueCancel,
}

var queueEventsCmd = &cobra.Command{
	Use:   "events [task-id]",
	Short: "Show a task's transition history",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueueEvents,
}

var queueStatusFilter string

func init() {
	queueCmd.AddCommand(queueListCmd, queueStatsCmd, queueCancelCmd, queueEventsCmd)

	queueListCmd.Flags().StringVar(&queueStatusFilter, "status", "", "Filter by status (queued, processing, completed, failed, cancelled)")
}

func runQueueList(cmd *cobra.Command, args []string) error {
	url := "/queue/tasks"
	if queueStatusFilter != "" {
		url += "?status=" + queueStatusFilter
	}

	resp, err := apiGet(url)
	if err != nil {
		return err
	}

	var tasks []struct {
		ID            string `json:"id"`
		ExpertID      string `json:"expert_id"`
		Status        string `json:"status"`
		Priority      int    `json:"priority"`
		QueuePosition *int   `json:"queue_position"`
		RetryCount    int    `json:"retry_count"`
	}
	if err := json.Unmarshal(resp, &tasks); err != nil {
		return err
	}

	if len(tasks) == 0 {
		fmt.Println("No tasks found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "POS\tID\tEXPERT\tSTATUS\tPRIORITY\tRETRIES")
	for _, t := range tasks {
		pos := "-"
		if t.QueuePosition != nil {
			pos = fmt.Sprintf("%d", *t.QueuePosition)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n",
			pos, truncateID(t.ID), t.ExpertID, t.Status, t.Priority, t.RetryCount)
	}
	w.Flush()
	return nil
}

func runQueueStats(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/queue/stats")
	if err != nil {
		return err
	}

	var stats struct {
		Queued     int `json:"queued"`
		Processing int `json:"processing"`
		Completed  int `json:"completed"`
		Failed     int `json:"failed"`
		Total      int `json:"total"`
	}
	if err := json.Unmarshal(resp, &stats); err != nil {
		return err
	}

	fmt.Printf("Queued:     %d\n", stats.Queued)
	fmt.Printf("Processing: %d\n", stats.Processing)
	fmt.Printf("Completed:  %d\n", stats.Completed)
	fmt.Printf("Failed:     %d\n", stats.Failed)
	fmt.Printf("Active:     %d\n", stats.Total)
	return nil
}

func runQueueCancel(cmd *cobra.Command, args []string) error {
	resp, err := apiPost("/queue/tasks/"+args[0]+"/cancel", map[string]string{})
	if err != nil {
		return err
	}

	var task struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(resp, &task); err != nil {
		return err
	}

	fmt.Printf("Cancelled task %s\n", task.ID)
	return nil
}

func runQueueEvents(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/queue/tasks/" + args[0] + "/events")
	if err != nil {
		return err
	}

	var events []struct {
		Action    string `json:"action"`
		Outcome   string `json:"outcome"`
		Details   string `json:"details"`
		CreatedAt string `json:"created_at"`
	}
	if err := json.Unmarshal(resp, &events); err != nil {
		return err
	}

	if len(events) == 0 {
		fmt.Println("No events found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTION\tOUTCOME\tDETAILS")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.CreatedAt, e.Action, e.Outcome, truncate(e.Details, 60))
	}
	w.Flush()
	return nil
}

// --- Helpers ---

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func truncateID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
