package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// SessionMetrics represents aggregated call metrics for a chat session.
type SessionMetrics struct {
	SessionID    string `json:"session_id"`
	BackendCalls int64  `json:"backend_calls"`
	Successes    int64  `json:"successes"`
	Failures     int64  `json:"failures"`
	CacheHits    int64  `json:"cache_hits"`
}

// QueryService provides methods to query orchestration metrics from Prometheus.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
}

// NewQueryService creates a new metrics query service.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		client:   client,
		queryAPI: v1.NewAPI(client),
	}, nil
}

// GetSessionMetrics retrieves aggregated capability call metrics for a session.
// Aggregates span all capabilities invoked during the session's lifetime.
func (q *QueryService) GetSessionMetrics(ctx context.Context, sessionID string) (*SessionMetrics, error) {
	metrics := &SessionMetrics{
		SessionID: sessionID,
	}

	totalQuery := fmt.Sprintf(`sum(capability_calls_total{session_id=%q})`, sessionID)
	total, err := q.scalar(ctx, totalQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query total calls: %w", err)
	}
	metrics.BackendCalls = total

	successQuery := fmt.Sprintf(`sum(capability_calls_total{session_id=%q, status="success"})`, sessionID)
	successes, err := q.scalar(ctx, successQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query successful calls: %w", err)
	}
	metrics.Successes = successes
	metrics.Failures = total - successes

	hitsQuery := fmt.Sprintf(`sum(capability_cache_hits_total{session_id=%q})`, sessionID)
	hits, err := q.scalar(ctx, hitsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query cache hits: %w", err)
	}
	metrics.CacheHits = hits

	return metrics, nil
}

// GetSessionMetricsByCapability retrieves call metrics broken down by capability
// for a session, showing which capabilities were exercised and how often.
func (q *QueryService) GetSessionMetricsByCapability(ctx context.Context, sessionID string) (map[string]*SessionMetrics, error) {
	result := make(map[string]*SessionMetrics)

	namesQuery := fmt.Sprintf(`group by (capability) (capability_calls_total{session_id=%q})`, sessionID)
	namesResult, _, err := q.queryAPI.Query(ctx, namesQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query capability names: %w", err)
	}

	var names []string
	if vector, ok := namesResult.(model.Vector); ok {
		for _, sample := range vector {
			if name, ok := sample.Metric["capability"]; ok {
				names = append(names, string(name))
			}
		}
	}

	for _, name := range names {
		perCap := &SessionMetrics{
			SessionID: sessionID,
		}

		totalQuery := fmt.Sprintf(`sum(capability_calls_total{session_id=%q, capability=%q})`, sessionID, name)
		total, err := q.scalar(ctx, totalQuery)
		if err != nil {
			return nil, fmt.Errorf("failed to query calls for capability %s: %w", name, err)
		}
		perCap.BackendCalls = total

		successQuery := fmt.Sprintf(`sum(capability_calls_total{session_id=%q, capability=%q, status="success"})`, sessionID, name)
		successes, err := q.scalar(ctx, successQuery)
		if err != nil {
			return nil, fmt.Errorf("failed to query successes for capability %s: %w", name, err)
		}
		perCap.Successes = successes
		perCap.Failures = total - successes

		hitsQuery := fmt.Sprintf(`sum(capability_cache_hits_total{session_id=%q, capability=%q})`, sessionID, name)
		hits, err := q.scalar(ctx, hitsQuery)
		if err != nil {
			return nil, fmt.Errorf("failed to query cache hits for capability %s: %w", name, err)
		}
		perCap.CacheHits = hits

		result[name] = perCap
	}

	return result, nil
}

// scalar runs an instant query and returns the first sample as int64, or zero
// when the result is empty.
func (q *QueryService) scalar(ctx context.Context, query string) (int64, error) {
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return 0, err //nolint:wrapcheck // Callers wrap with query context
	}
	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		return int64(vector[0].Value), nil
	}
	return 0, nil
}
