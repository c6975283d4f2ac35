package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// statsMetrics are the series printed by the stats command, in output order.
var statsMetrics = []struct {
	name  string
	label string
}{
	{"aegis_broker_connected", "connected"},
	{"aegis_devices", "devices"},
	{"aegis_tags", "tags"},
	{"aegis_values", "values"},
	{"aegis_publish_total", "published"},
	{"aegis_publish_errors_total", "publish_errors"},
	{"aegis_definitions_rejected_total", "rejected"},
	{"aegis_forward_queue_length", "forward_queue"},
}

func streamStats(ctx context.Context, out, errOut io.Writer, url string, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be > 0")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	client := &http.Client{Timeout: interval}
	fmt.Fprintf(out, "Streaming metrics from %s (Ctrl+C to stop)\n", url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			values, err := fetchMetrics(ctx, client, url)
			if err != nil {
				fmt.Fprintf(errOut, "stats error: %v\n", err)
				continue
			}
			fmt.Fprintln(out, formatStats(time.Now(), values))
		}
	}
}

func fetchMetrics(ctx context.Context, client *http.Client, url string) (map[string]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return parseMetrics(resp.Body)
}

// parseMetrics picks the unlabelled samples of statsMetrics out of the
// Prometheus text format.
func parseMetrics(r io.Reader) (map[string]float64, error) {
	values := make(map[string]float64, len(statsMetrics))
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		for _, m := range statsMetrics {
			if !strings.HasPrefix(line, m.name+" ") {
				continue
			}
			var value float64
			if _, err := fmt.Sscanf(line, m.name+" %g", &value); err == nil {
				values[m.name] = value
			}
		}
	}
	return values, scanner.Err()
}

func formatStats(now time.Time, values map[string]float64) string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(now.Format(time.RFC3339))
	b.WriteString("]")
	for _, m := range statsMetrics {
		fmt.Fprintf(&b, " %s=%g", m.label, values[m.name])
	}
	return b.String()
}
