package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func init() {
	rootCmd.AddCommand(workflowCmd)
	workflowCmd.AddCommand(workflowListCmd)
	workflowCmd.AddCommand(lintCmd)
	workflowCmd.AddCommand(validateCmd)
	workflowCmd.AddCommand(exportCmd)
	workflowCmd.AddCommand(importCmd)
	workflowCmd.AddCommand(runCmd)
}

var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Manage Verdandi workflows",
}

var workflowListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored workflows",
	Run: func(cmd *cobra.Command, args []string) {
		resp, err := apiDo("GET", "/api/workflows", nil)
		if err != nil {
			fmt.Printf("Error connecting to API: %v\n", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			fmt.Printf("API returned error: %s\n", resp.Status)
			return
		}

		var out struct {
			Data []struct {
				ID          string `json:"id"`
				Name        string `json:"name"`
				Status      string `json:"status"`
				TriggerType string `json:"trigger_type"`
				TotalRuns   int64  `json:"total_runs"`
				FailedRuns  int64  `json:"failed_runs"`
			} `json:"data"`
			Total int `json:"total"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			fmt.Printf("Error parsing response: %v\n", err)
			return
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tTRIGGER\tRUNS\tFAILED")
		for _, w := range out.Data {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\n",
				w.ID, w.Name, w.Status, w.TriggerType, w.TotalRuns, w.FailedRuns)
		}
		tw.Flush()
		fmt.Printf("\n%d workflow(s)\n", out.Total)
	},
}

var lintCmd = &cobra.Command{
	Use:   "lint [file]",
	Short: "Lint a workflow definition file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		data, err := os.ReadFile(args[0])
		if err != nil {
			fmt.Printf("Error reading file: %v\n", err)
			return
		}

		var wf struct {
			Name        string `json:"name"`
			Nodes       []any  `json:"nodes"`
			Connections []any  `json:"connections"`
		}

		if err := json.Unmarshal(data, &wf); err != nil {
			if err := yaml.Unmarshal(data, &wf); err != nil {
				fmt.Println("❌ Invalid JSON or YAML format")
				return
			}
		}

		fmt.Println("✅ Workflow format is valid")

		if wf.Name == "" {
			fmt.Println("⚠️  Warning: Workflow has no name; the API will reject it")
		}
		if len(wf.Nodes) == 0 {
			fmt.Println("⚠️  Warning: Workflow has no nodes")
		} else {
			fmt.Printf("📊 Workflow has %d nodes and %d connections\n", len(wf.Nodes), len(wf.Connections))
		}

		if len(wf.Nodes) > 1 && len(wf.Connections) == 0 {
			fmt.Println("⚠️  Warning: Multiple nodes present but no connections (disconnected graph)")
		}
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate [workflow-id]",
	Short: "Validate a stored workflow against the engine rules",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		resp, err := apiDo("POST", "/api/workflows/"+args[0]+"/validate", nil)
		if err != nil {
			fmt.Printf("Error connecting to API: %v\n", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			fmt.Printf("API returned error: %s\n", resp.Status)
			return
		}

		var out struct {
			Valid    bool     `json:"valid"`
			Problems []string `json:"problems"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			fmt.Printf("Error parsing response: %v\n", err)
			return
		}

		if out.Valid {
			fmt.Println("✅ Workflow is valid")
			return
		}
		fmt.Printf("❌ Workflow has %d problem(s):\n", len(out.Problems))
		for _, p := range out.Problems {
			fmt.Printf("  - %s\n", p)
		}
	},
}

var exportCmd = &cobra.Command{
	Use:   "export [workflow-id]",
	Short: "Export a workflow definition to YAML",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		resp, err := apiDo("GET", "/api/workflows/"+args[0], nil)
		if err != nil {
			fmt.Printf("Error connecting to API: %v\n", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			fmt.Printf("API returned error: %s\n", resp.Status)
			return
		}

		var workflow any
		json.NewDecoder(resp.Body).Decode(&workflow)
		out, _ := yaml.Marshal(workflow)
		fmt.Println(string(out))
	},
}

var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Import a workflow definition from YAML/JSON",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		data, err := os.ReadFile(args[0])
		if err != nil {
			fmt.Printf("Error reading file: %v\n", err)
			return
		}

		var workflow any
		if err := yaml.Unmarshal(data, &workflow); err != nil {
			fmt.Printf("Error parsing YAML: %v\n", err)
			return
		}

		jsonData, _ := json.Marshal(workflow)
		resp, err := apiDo("POST", "/api/workflows", bytes.NewReader(jsonData))
		if err != nil {
			fmt.Printf("Error connecting to API: %v\n", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			fmt.Printf("Import failed (%s): %s\n", resp.Status, string(body))
			return
		}

		var created struct {
			ID string `json:"id"`
		}
		json.NewDecoder(resp.Body).Decode(&created)
		fmt.Printf("✅ Workflow imported successfully (id: %s)\n", created.ID)
	},
}

var runCmd = &cobra.Command{
	Use:   "run [workflow-id] [payload-json]",
	Short: "Trigger a workflow run with an optional payload",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		workflowID := args[0]
		payload := "{}"
		if len(args) > 1 {
			payload = args[1]
		}

		resp, err := apiDo("POST", "/api/workflows/"+workflowID+"/run", bytes.NewBufferString(payload))
		if err != nil {
			fmt.Printf("Error connecting to API: %v\n", err)
			return
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusAccepted {
			fmt.Printf("❌ Run rejected (%s): %s\n", resp.Status, string(body))
			return
		}

		var out struct {
			ExecutionID string `json:"execution_id"`
		}
		json.Unmarshal(body, &out)
		fmt.Printf("✅ Run accepted, execution %s\n", out.ExecutionID)
		fmt.Printf("   verdandictl executions get %s\n", out.ExecutionID)
	},
}
