package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	apiKey    string
	userID    int64
	prefix    string
)

func main() {
	root := &cobra.Command{
		Use:   "snippet-cli",
		Short: "CLI client for the snippet sandbox gateway",
	}

	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Gateway URL")
	root.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("SNIPPET_API_KEY"), "API key")
	root.PersistentFlags().Int64VarP(&userID, "user", "u", 1, "User ID to act as")
	root.PersistentFlags().StringVar(&prefix, "prefix", "!", "Command prefix the gateway expects")

	runCmd := &cobra.Command{
		Use:   "run [code]",
		Short: "Execute a code snippet (reads stdin when no argument)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runRun,
	}
	root.AddCommand(runCmd)

	runFileCmd := &cobra.Command{
		Use:   "run-file [file]",
		Short: "Execute a snippet from a file",
		Args:  cobra.ExactArgs(1),
		RunE:  runRunFile,
	}
	root.AddCommand(runFileCmd)

	analyzeCmd := &cobra.Command{
		Use:   "analyze [code]",
		Short: "Run the safety analyzer without executing",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runAnalyze,
	}
	root.AddCommand(analyzeCmd)

	root.AddCommand(&cobra.Command{
		Use:   "stats [user id]",
		Short: "Show execution statistics",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return sendCommand("stats", strings.Join(args, " "))
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "leaderboard",
		Short: "Top users by executions",
		RunE: func(_ *cobra.Command, _ []string) error {
			return sendCommand("leaderboard", "")
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "history [limit]",
		Short: "Most recent executions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return sendCommand("history", strings.Join(args, " "))
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Check gateway health",
		RunE:  runHealth,
	})
	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List recent audited submissions",
		RunE:  runList,
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runRun(_ *cobra.Command, args []string) error {
	code, err := codeFromArgsOrStdin(args)
	if err != nil {
		return err
	}
	return sendCommand("run", code)
}

func runRunFile(_ *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}
	return sendCommand("run", string(data))
}

func runAnalyze(_ *cobra.Command, args []string) error {
	code, err := codeFromArgsOrStdin(args)
	if err != nil {
		return err
	}
	return sendCommand("analyze", code)
}

func codeFromArgsOrStdin(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return string(data), nil
}

// sendCommand forwards one chat command through POST /command and
// prints the rendered replies.
func sendCommand(name, args string) error {
	content := prefix + name
	if args != "" {
		content += " " + args
	}

	payload := map[string]any{
		"message": map[string]any{
			"user_id": userID,
			"content": content,
		},
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequest("POST", serverURL+"/command", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	client := &http.Client{Timeout: 70 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("gateway returned %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}

	var result struct {
		Handled bool     `json:"handled"`
		Replies []string `json:"replies"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	if !result.Handled {
		return fmt.Errorf("gateway did not recognize command %q", name)
	}
	for _, reply := range result.Replies {
		fmt.Println(reply)
	}
	return nil
}

func runHealth(_ *cobra.Command, _ []string) error {
	resp, err := http.Get(serverURL + "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	var result map[string]any
	json.NewDecoder(resp.Body).Decode(&result)
	formatted, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(formatted))
	return nil
}

func runList(_ *cobra.Command, _ []string) error {
	req, _ := http.NewRequest("GET", serverURL+"/submissions", nil)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var result any
	json.NewDecoder(resp.Body).Decode(&result)
	formatted, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(formatted))
	return nil
}
