// Extract author ids from an exported channel history file

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

func main() {
	raw, err := os.ReadFile("export.json")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read file: %v\n", err)
		os.Exit(1)
	}

	// DiscordChatExporter-style layout
	var result struct {
		Messages []struct {
			Type   string `json:"type"`
			Author struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"author"`
		} `json:"messages"`
	}

	if err := json.Unmarshal(raw, &result); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse JSON: %v\n", err)
		os.Exit(1)
	}

	// Unique author ids, useful as a starting point for the GM seed list
	ids := make(map[string]string)
	for _, msg := range result.Messages {
		if msg.Type != "" && msg.Type != "Default" {
			continue
		}
		if msg.Author.ID != "" {
			ids[msg.Author.ID] = msg.Author.Name
		}
	}

	if err := writeIDsToFile("authors.txt", ids); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write ids to file: %v\n", err)
		os.Exit(1)
	}
}

// writeIDsToFile writes "id name" pairs, one per line, sorted by id.
func writeIDsToFile(path string, ids map[string]string) error {
	keys := make([]string, 0, len(ids))
	for id := range ids {
		keys = append(keys, id)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, id := range keys {
		sb.WriteString(id)
		sb.WriteString(" ")
		sb.WriteString(ids[id])
		sb.WriteString("\n")
	}

	return os.WriteFile(path, []byte(sb.String()), 0o644)
}
