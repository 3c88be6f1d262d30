package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/austindbirch/prestus_bff/internal/config"
	"github.com/austindbirch/prestus_bff/internal/health"
)

var healthTimeout time.Duration

// healthcheckCmd probes a running gateway; used as the container health check
var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check that a local gateway answers /health",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(v)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), healthTimeout)
		defer cancel()

		st, err := probe(ctx, healthURL(cfg.HTTPPort))
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "✗ gateway is unhealthy: %v\n", err)
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ gateway is healthy (%s)\n", strings.Join(st.Services, ", "))
		return nil
	},
}

func init() {
	healthcheckCmd.Flags().DurationVar(&healthTimeout, "timeout", 3*time.Second, "probe timeout")
	rootCmd.AddCommand(healthcheckCmd)
}

// healthURL turns a listen address such as ":3000" into a loopback URL
func healthURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return "http://" + addr + "/health"
}

func probe(ctx context.Context, target string) (health.Status, error) {
	var st health.Status
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return st, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return st, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return st, err
	}
	if resp.StatusCode != http.StatusOK {
		return st, fmt.Errorf("status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, &st); err != nil {
		return st, fmt.Errorf("decode health: %w", err)
	}
	if st.Status != "ok" {
		return st, fmt.Errorf("status %q", st.Status)
	}
	return st, nil
}
