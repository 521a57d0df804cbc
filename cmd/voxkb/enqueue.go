package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Submit a document set for ingestion",
	Long: `Submits files for ingestion into an expert's knowledge base. Each
--file takes "id=name" or just a name, in which case an ID is generated.`,
	RunE: runEnqueue,
}

var (
	enqueueExpert   string
	enqueueAgent    string
	enqueueFiles    []string
	enqueuePriority int
)

func init() {
	enqueueCmd.Flags().StringVar(&enqueueExpert, "expert", "", "Expert ID (required)")
	enqueueCmd.Flags().StringVar(&enqueueAgent, "agent", "", "Agent ID (required)")
	enqueueCmd.Flags().StringArrayVar(&enqueueFiles, "file", nil, "File to ingest, repeatable (id=name or name)")
	enqueueCmd.Flags().IntVar(&enqueuePriority, "priority", 0, "Queue priority (higher runs first)")
	enqueueCmd.MarkFlagRequired("expert")
	enqueueCmd.MarkFlagRequired("agent")
	enqueueCmd.MarkFlagRequired("file")
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	files := make([]map[string]string, 0, len(enqueueFiles))
	for _, f := range enqueueFiles {
		id, name, found := strings.Cut(f, "=")
		if !found {
			name = f
			id = uuid.New().String()
		}
		files = append(files, map[string]string{
			"id":   id,
			"name": filepath.Base(name),
		})
	}

	body := map[string]interface{}{
		"expert_id": enqueueExpert,
		"agent_id":  enqueueAgent,
		"files":     files,
		"priority":  enqueuePriority,
	}

	resp, err := apiPost("/queue/tasks", body)
	if err != nil {
		return err
	}

	var result struct {
		TaskID        string `json:"task_id"`
		Status        string `json:"status"`
		QueuePosition *int   `json:"queue_position"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return err
	}

	fmt.Printf("Queued task: %s\n", result.TaskID)
	if result.QueuePosition != nil {
		fmt.Printf("Position:    %d\n", *result.QueuePosition)
	}
	return nil
}
