package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/alertrelay/alertrelay/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show alertrelay status",
	RunE:  runStatus,
}

func runStatus(_ *cobra.Command, _ []string) error {
	path := configPath()

	fmt.Printf("%s alertrelay Status\n\n", logo)

	_, statErr := os.Stat(path)
	cfgMark := "✗"
	if statErr == nil {
		cfgMark = "✓"
	}
	fmt.Printf("Config:    %s %s\n", path, cfgMark)

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Printf("  (could not load config: %v)\n", err)
		return nil
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("  (config has problems: %v)\n", err)
	}
	for _, line := range describe(cfg) {
		fmt.Println(line)
	}

	if !cfg.Metrics.Enabled {
		return nil
	}
	fmt.Println("\nGateway:")
	backends, err := fetchHealth(cfg.Metrics)
	if err != nil {
		fmt.Printf("  not reachable (%v)\n", err)
		return nil
	}
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		state := "busy"
		if backends[name] {
			state = "idle"
		}
		fmt.Printf("  %-10s %s\n", name, state)
	}
	return nil
}

func fetchHealth(cfg config.MetricsConfig) (map[string]bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	host := cfg.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	url := fmt.Sprintf("http://%s:%d/healthz", host, cfg.Port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	var body struct {
		Backends map[string]bool `json:"backends"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Backends, nil
}
