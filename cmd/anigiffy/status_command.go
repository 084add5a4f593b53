package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"anigiffy/internal/preflight"
)

type serverProbe struct {
	Reachable bool   `json:"reachable"`
	Status    string `json:"status,omitempty"`
	Uptime    string `json:"uptime,omitempty"`
	Sessions  int    `json:"sessions"`
	Error     string `json:"error,omitempty"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Run preflight checks and probe the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			probe := probeServer(cmd.Context(), "http://"+cfg.Paths.APIBind+"/api/status", cfg.Paths.APIToken)
			if jsonOut {
				return writeJSON(cmd, map[string]any{"checks": results, "server": probe})
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			fmt.Fprintln(out, renderSectionHeader("Preflight", colorize))
			for _, r := range results {
				kind := statusOK
				if !r.Passed {
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, renderSectionHeader("Server", colorize))
			if probe.Reachable {
				fmt.Fprintln(out, renderStatusLine(cfg.Paths.APIBind, statusOK,
					fmt.Sprintf("%s, up %s, %d sessions", probe.Status, probe.Uptime, probe.Sessions), colorize))
			} else {
				fmt.Fprintln(out, renderStatusLine(cfg.Paths.APIBind, statusWarn, "not running ("+probe.Error+")", colorize))
			}
			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d preflight checks failed", len(failed))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print results as JSON")
	return cmd
}

func probeServer(ctx context.Context, url, token string) serverProbe {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return serverProbe{Error: err.Error()}
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return serverProbe{Error: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return serverProbe{Error: resp.Status}
	}
	probe := serverProbe{Reachable: true}
	if err := json.NewDecoder(resp.Body).Decode(&probe); err != nil {
		probe.Error = err.Error()
	}
	probe.Reachable = true
	return probe
}
