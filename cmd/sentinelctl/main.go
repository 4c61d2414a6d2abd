// sentinelctl is an operator CLI around the already-specified HTTP API: it
// registers a project's checks, toggles maintenance, and prints a status
// snapshot. It adds no server-side semantics of its own.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "register":
		runRegister(os.Args[2:])
	case "maintenance":
		runMaintenance(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: sentinelctl <register|maintenance|status> [flags]")
}

func runRegister(args []string) {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	baseURL := fs.String("base-url", os.Getenv("SENTINEL_BASE_URL"), "sentineld base URL")
	token := fs.String("token", os.Getenv("SENTINEL_TOKEN"), "project token")
	projectID := fs.String("project-id", "", "project id")
	displayName := fs.String("display-name", "", "project display name")
	checkName := fs.String("check-name", "", "check name")
	checkType := fs.String("check-type", "heartbeat", "check type (heartbeat|event)")
	interval := fs.Int64("interval", 0, "interval seconds (0 = server default)")
	grace := fs.Int64("grace", 0, "grace seconds (0 = server default)")
	threshold := fs.Int("threshold", 0, "failure threshold (0 = server default)")
	cooldown := fs.Int64("cooldown", 0, "cooldown seconds (0 = server default)")
	fs.Parse(args)

	requireFlags(*baseURL, *token, *projectID, *checkName)

	check := map[string]any{"name": *checkName, "type": *checkType}
	if *interval > 0 {
		check["interval"] = *interval
	}
	if *grace > 0 {
		check["grace"] = *grace
	}
	if *threshold > 0 {
		check["threshold"] = *threshold
	}
	if *cooldown > 0 {
		check["cooldown"] = *cooldown
	}

	payload := map[string]any{
		"project_id":   *projectID,
		"display_name": *displayName,
		"checks":       []map[string]any{check},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		fatal(err)
	}

	resp, err := doRequest(*baseURL, "/api/config", http.MethodPut, *token, body)
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(resp))
}

func runMaintenance(args []string) {
	fs := flag.NewFlagSet("maintenance", flag.ExitOnError)
	baseURL := fs.String("base-url", os.Getenv("SENTINEL_BASE_URL"), "sentineld base URL")
	token := fs.String("token", os.Getenv("SENTINEL_TOKEN"), "project token")
	projectID := fs.String("project-id", "", "project id")
	enabled := fs.String("enabled", "", "true|false (omit to toggle)")
	duration := fs.Int("duration", 0, "maintenance duration seconds (0 = server default)")
	fs.Parse(args)

	requireFlags(*baseURL, *token, *projectID)

	payload := map[string]any{}
	if *enabled != "" {
		switch *enabled {
		case "true":
			payload["enabled"] = true
		case "false":
			payload["enabled"] = false
		default:
			fatal(fmt.Errorf("invalid -enabled value %q: must be true or false", *enabled))
		}
	}
	if *duration > 0 {
		payload["duration"] = *duration
	}
	body, err := json.Marshal(payload)
	if err != nil {
		fatal(err)
	}

	resp, err := doRequest(*baseURL, "/api/maintenance/"+*projectID, http.MethodPost, *token, body)
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(resp))
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	baseURL := fs.String("base-url", os.Getenv("SENTINEL_BASE_URL"), "sentineld base URL")
	token := fs.String("token", os.Getenv("SENTINEL_TOKEN"), "project token (optional)")
	projectID := fs.String("project-id", "", "project id (omit for all projects)")
	fs.Parse(args)

	requireFlags(*baseURL)

	path := "/api/status"
	if *projectID != "" {
		path = "/api/status/" + *projectID
	}

	resp, err := doRequest(*baseURL, path, http.MethodGet, *token, nil)
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(resp))
}

func doRequest(baseURL, path, method, token string, body []byte) ([]byte, error) {
	client := &http.Client{Timeout: 10 * time.Second}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("sentineld responded with %s: %s", resp.Status, string(data))
	}
	return data, nil
}

func requireFlags(values ...string) {
	for _, v := range values {
		if v == "" {
			usage()
			os.Exit(1)
		}
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
