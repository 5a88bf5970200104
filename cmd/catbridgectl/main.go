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

var (
	baseURL = flag.String("url", "http://127.0.0.1:8080", "catbridged API base URL")
)

func main() {
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		showHelp()
		return
	}

	client := &http.Client{Timeout: 5 * time.Second}

	var err error
	switch args[0] {
	case "status":
		err = get(client, "/api/v1/status")
	case "events":
		err = get(client, "/api/v1/events")
	case "set-freq":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "set-freq requires a MHz value\n")
			os.Exit(1)
		}
		err = put(client, "/api/v1/radio/frequency", map[string]string{"frequency_mhz": args[1]})
	case "set-mode":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "set-mode requires a mode name\n")
			os.Exit(1)
		}
		err = put(client, "/api/v1/radio/mode", map[string]string{"mode": args[1]})
	case "suspend":
		err = post(client, "/api/v1/update/suspend")
	case "resume":
		err = post(client, "/api/v1/update/resume")
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
		showHelp()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func get(client *http.Client, path string) error {
	resp, err := client.Get(*baseURL + path)
	if err != nil {
		return err
	}
	return printResponse(resp)
}

func put(client *http.Client, path string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPut, *baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	return printResponse(resp)
}

func post(client *http.Client, path string) error {
	resp, err := client.Post(*baseURL+path, "application/json", nil)
	if err != nil {
		return err
	}
	return printResponse(resp)
}

func printResponse(resp *http.Response) error {
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, data, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(data))
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}

func showHelp() {
	fmt.Println("catbridgectl - catbridged control tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Printf("  %s [options] <command>\n", os.Args[0])
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -url <base>       API base URL (default: http://127.0.0.1:8080)")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  status            Show radio and bridge status")
	fmt.Println("  set-freq <MHz>    Tune the radio (e.g. 14.074000)")
	fmt.Println("  set-mode <mode>   Set mode (LSB USB CW FM AM FSK)")
	fmt.Println("  events            Show recent daemon events")
	fmt.Println("  suspend           Release the radio for a firmware update")
	fmt.Println("  resume            Resume after a firmware update")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Printf("  %s status\n", os.Args[0])
	fmt.Printf("  %s set-freq 14.074000\n", os.Args[0])
	fmt.Printf("  %s set-mode USB\n", os.Args[0])
}
