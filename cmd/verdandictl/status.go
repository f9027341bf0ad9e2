package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(monitorCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the health of the Verdandi server",
	Run: func(cmd *cobra.Command, args []string) {
		fetchStatus()
	},
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Real-time terminal dashboard for Verdandi",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Starting Verdandi Monitor (Ctrl+C to stop)...")
		for {
			fmt.Print("\033[H\033[2J") // Clear screen
			fmt.Printf("Verdandi Monitor - %s\n", time.Now().Format(time.RFC1123))
			fmt.Println("-------------------------------------------")
			fetchStatus()
			time.Sleep(2 * time.Second)
		}
	},
}

func fetchStatus() {
	resp, err := apiDo("GET", "/healthz", nil)
	if err != nil {
		fmt.Printf("Error connecting to server: %v\n", err)
		return
	}
	defer resp.Body.Close()

	var health struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	json.NewDecoder(resp.Body).Decode(&health)
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("Status:      [DEGRADED] %s\n", health.Error)
		return
	}
	fmt.Printf("Status:      [%s]\n", health.Status)

	fmt.Printf("Workflows:   %d\n", countOf("/api/workflows?limit=1"))
	fmt.Printf("Executions:  %d\n", countOf("/api/executions?limit=1"))
	fmt.Printf("Running:     %d\n", countOf("/api/executions?limit=1&status=running"))
	fmt.Printf("Failed:      %d\n", countOf("/api/executions?limit=1&status=failed"))
}

func countOf(path string) int {
	resp, err := apiDo("GET", path, nil)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()

	var out struct {
		Total int `json:"total"`
	}
	json.NewDecoder(resp.Body).Decode(&out)
	return out.Total
}
