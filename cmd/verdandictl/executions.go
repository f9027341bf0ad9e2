package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	execWorkflowID string
	execStatus     string
	execLimit      int
)

func init() {
	rootCmd.AddCommand(executionsCmd)
	executionsCmd.AddCommand(executionsListCmd)
	executionsCmd.AddCommand(executionsGetCmd)
	executionsCmd.AddCommand(executionsRetryCmd)

	executionsListCmd.Flags().StringVar(&execWorkflowID, "workflow", "", "filter by workflow ID")
	executionsListCmd.Flags().StringVar(&execStatus, "status", "", "filter by status (pending, running, success, failed, cancelled, timeout)")
	executionsListCmd.Flags().IntVar(&execLimit, "limit", 20, "maximum number of rows")
}

var executionsCmd = &cobra.Command{
	Use:   "executions",
	Short: "Inspect and retry workflow executions",
}

var executionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent executions",
	Run: func(cmd *cobra.Command, args []string) {
		query := url.Values{}
		if execWorkflowID != "" {
			query.Set("workflow_id", execWorkflowID)
		}
		if execStatus != "" {
			query.Set("status", execStatus)
		}
		query.Set("limit", fmt.Sprintf("%d", execLimit))

		resp, err := apiDo("GET", "/api/executions?"+query.Encode(), nil)
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
				WorkflowID  string `json:"workflow_id"`
				Status      string `json:"status"`
				TriggerType string `json:"trigger_type"`
				DurationMS  int64  `json:"duration_ms"`
				Error       string `json:"error"`
			} `json:"data"`
			Total int `json:"total"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			fmt.Printf("Error parsing response: %v\n", err)
			return
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tWORKFLOW\tSTATUS\tTRIGGER\tDURATION\tERROR")
		for _, e := range out.Data {
			errMsg := e.Error
			if len(errMsg) > 40 {
				errMsg = errMsg[:37] + "..."
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%dms\t%s\n",
				e.ID, e.WorkflowID, e.Status, e.TriggerType, e.DurationMS, errMsg)
		}
		tw.Flush()
		fmt.Printf("\n%d execution(s)\n", out.Total)
	},
}

var executionsGetCmd = &cobra.Command{
	Use:   "get [execution-id]",
	Short: "Show one execution with its node logs",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		resp, err := apiDo("GET", "/api/executions/"+args[0], nil)
		if err != nil {
			fmt.Printf("Error connecting to API: %v\n", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			fmt.Printf("API returned error: %s\n", resp.Status)
			return
		}

		var pretty json.RawMessage
		if err := json.NewDecoder(resp.Body).Decode(&pretty); err != nil {
			fmt.Printf("Error parsing response: %v\n", err)
			return
		}
		out, _ := json.MarshalIndent(pretty, "", "  ")
		fmt.Println(string(out))
	},
}

var executionsRetryCmd = &cobra.Command{
	Use:   "retry [execution-id]",
	Short: "Re-run a failed execution with its original input",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		resp, err := apiDo("POST", "/api/executions/"+args[0]+"/retry", nil)
		if err != nil {
			fmt.Printf("Error connecting to API: %v\n", err)
			return
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusAccepted {
			fmt.Printf("❌ Retry rejected (%s): %s\n", resp.Status, string(body))
			return
		}
		fmt.Println("✅ Retry queued")
	},
}
