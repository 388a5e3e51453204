package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// ProviderStats summarizes a capability provider's call counters, read
// straight off its /metrics exposition endpoint. Unlike QueryService this
// needs no Prometheus server in between.
type ProviderStats struct {
	TotalCalls float64 `json:"total_calls"`
	Errors     float64 `json:"errors"`
	CacheHits  float64 `json:"cache_hits"`
}

const scrapeTimeout = 5 * time.Second

// ScrapeProvider fetches the exposition endpoint and extracts the
// capability call counters.
func ScrapeProvider(ctx context.Context, metricsURL string) (*ProviderStats, error) {
	ctx, cancel := context.WithTimeout(ctx, scrapeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metricsURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build scrape request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to scrape %s: %w", metricsURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scrape %s returned status %d", metricsURL, resp.StatusCode)
	}

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse exposition text: %w", err)
	}

	stats := &ProviderStats{}
	if family, ok := families["capability_calls_total"]; ok {
		for _, metric := range family.GetMetric() {
			value := metric.GetCounter().GetValue()
			stats.TotalCalls += value
			if labelValue(metric, "status") == "error" {
				stats.Errors += value
			}
		}
	}
	if family, ok := families["capability_cache_hits_total"]; ok {
		for _, metric := range family.GetMetric() {
			stats.CacheHits += metric.GetCounter().GetValue()
		}
	}

	return stats, nil
}

func labelValue(metric *dto.Metric, name string) string {
	for _, label := range metric.GetLabel() {
		if label.GetName() == name {
			return label.GetValue()
		}
	}
	return ""
}
