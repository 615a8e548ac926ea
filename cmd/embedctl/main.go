package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/nidhogg/embedpref/internal/client"
	"github.com/nidhogg/embedpref/internal/embedding"
)

func main() {
	server := flag.String("server", "http://localhost:3001", "embedpref server URL")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: embedctl [-server URL] <command>\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  show                 print current settings (secrets masked)\n")
		fmt.Fprintf(os.Stderr, "  set KEY=VALUE ...    update settings\n")
		fmt.Fprintf(os.Stderr, "  status               print the active embedder\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	c := client.New(*server)

	switch flag.Arg(0) {
	case "show":
		showSettings(ctx, c)
	case "set":
		setSettings(ctx, c, flag.Args()[1:])
	case "status":
		showStatus(ctx, *server)
	default:
		printError("unknown command %q", flag.Arg(0))
		flag.Usage()
		os.Exit(2)
	}
}

func showSettings(ctx context.Context, c *client.Client) {
	snap, err := c.Fetch(ctx)
	if err != nil {
		printError("Failed to fetch settings: %v", err)
		os.Exit(1)
	}
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %-32s %s\n", k, snap[k])
	}
}

func setSettings(ctx context.Context, c *client.Client, args []string) {
	if len(args) == 0 {
		printError("set needs at least one KEY=VALUE")
		os.Exit(2)
	}
	payload := make(map[string]string, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			printError("expected KEY=VALUE, got %q", a)
			os.Exit(2)
		}
		payload[k] = v
	}
	if err := c.Update(ctx, payload); err != nil {
		printError("Failed to save embedding preferences: %v", err)
		os.Exit(1)
	}
	fmt.Println("\033[32m✓\033[0m Embedding preferences saved successfully.")
}

func showStatus(ctx context.Context, server string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(server, "/")+"/api/system/embedding", nil)
	if err != nil {
		printError("Bad server URL: %v", err)
		os.Exit(2)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		printError("Failed to fetch status: %v", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	var st embedding.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		printError("Failed to parse status: %v", err)
		os.Exit(1)
	}
	icon := "\033[31m✗\033[0m"
	if st.Ready || st.Managed {
		icon = "\033[32m✓\033[0m"
	}
	fmt.Printf("  %s %s", icon, st.Engine)
	switch {
	case st.Managed:
		fmt.Print(" (managed by LLM provider)")
	case st.Ready:
		fmt.Printf(" (dimension %d)", st.Dimension)
	}
	if st.Error != "" {
		fmt.Printf(" \033[31m(%s)\033[0m", st.Error)
	}
	fmt.Println()
}

func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "\033[31m"+format+"\033[0m\n", args...)
}
