package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var tailWorkflowID string

func init() {
	rootCmd.AddCommand(tailCmd)
	tailCmd.Flags().StringVar(&tailWorkflowID, "workflow", "", "only show events for this workflow ID")
}

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Tail execution events in real-time",
	Run: func(cmd *cobra.Command, args []string) {
		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, os.Interrupt)

		apiURL := viper.GetString("url")
		u, _ := url.Parse(apiURL)

		scheme := "ws"
		if u.Scheme == "https" {
			scheme = "wss"
		}

		wsURL := url.URL{Scheme: scheme, Host: u.Host, Path: "/api/ws/executions"}
		if tailWorkflowID != "" {
			wsURL.RawQuery = "workflow_id=" + url.QueryEscape(tailWorkflowID)
		}
		fmt.Printf("Connecting to %s...\n", wsURL.String())

		c, _, err := websocket.DefaultDialer.Dial(wsURL.String(), nil)
		if err != nil {
			log.Fatal("dial:", err)
		}
		defer c.Close()

		done := make(chan struct{})

		go func() {
			defer close(done)
			for {
				_, message, err := c.ReadMessage()
				if err != nil {
					log.Println("read:", err)
					return
				}

				var ev struct {
					ExecutionID string    `json:"execution_id"`
					WorkflowID  string    `json:"workflow_id"`
					Status      string    `json:"status"`
					NodeID      string    `json:"node_id"`
					NodeType    string    `json:"node_type"`
					Error       string    `json:"error"`
					At          time.Time `json:"at"`
				}

				if err := json.Unmarshal(message, &ev); err == nil {
					color := "\033[0m" // Default
					switch ev.Status {
					case "failed", "timeout":
						color = "\033[31m" // Red
					case "running", "pending":
						color = "\033[33m" // Yellow
					case "success":
						color = "\033[32m" // Green
					}

					fmt.Printf("[%s] %s%s\033[0m %s (wf: %s)",
						ev.At.Format("15:04:05"),
						color, ev.Status,
						ev.ExecutionID, ev.WorkflowID)

					if ev.NodeID != "" {
						fmt.Printf(" node=%s type=%s", ev.NodeID, ev.NodeType)
					}
					if ev.Error != "" {
						fmt.Printf(" error=%q", ev.Error)
					}
					fmt.Println()
				}
			}
		}()

		for {
			select {
			case <-done:
				return
			case <-interrupt:
				log.Println("interrupt")

				// Cleanly close the connection by sending a close message and then
				// waiting (with timeout) for the server to close the connection.
				err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				if err != nil {
					log.Println("write close:", err)
					return
				}
				select {
				case <-done:
				case <-time.After(time.Second):
				}
				return
			}
		}
	},
}
