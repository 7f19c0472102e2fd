package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// QueryService provides methods to query runner metrics back out of Prometheus.
type QueryService struct {
	client v1.API
}

// NewQueryService creates a query service pointed at a Prometheus server.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		client: v1.NewAPI(client),
	}, nil
}

// RunnerStats holds observed rates for one runner role.
type RunnerStats struct {
	Role      string  `json:"role"`
	CycleRate float64 `json:"cycle_rate"`
	WorkRate  float64 `json:"work_rate"`
	ErrorRate float64 `json:"error_rate"`
}

// GetRunnerStats retrieves cycle, work and failure rates for one role over
// the given window.
func (qs *QueryService) GetRunnerStats(ctx context.Context, role string, window time.Duration) (*RunnerStats, error) {
	windowStr := model.Duration(window).String()
	stats := &RunnerStats{Role: role}

	query := fmt.Sprintf(`sum(rate(metronome_cycles_total{role=%q}[%s]))`, role, windowStr)
	result, _, err := qs.client.Query(ctx, query, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query cycle rate: %w", err)
	}
	if vector, ok := result.(model.Vector); ok && vector.Len() > 0 {
		stats.CycleRate = float64(vector[0].Value)
	}

	query = fmt.Sprintf(`sum(rate(metronome_work_items_total{role=%q}[%s]))`, role, windowStr)
	result, _, err = qs.client.Query(ctx, query, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query work rate: %w", err)
	}
	if vector, ok := result.(model.Vector); ok && vector.Len() > 0 {
		stats.WorkRate = float64(vector[0].Value)
	}

	query = fmt.Sprintf(`sum(rate(metronome_errors_total{role=%q,kind=%q}[%s]))`, role, ErrorKindFailure, windowStr)
	result, _, err = qs.client.Query(ctx, query, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query error rate: %w", err)
	}
	if vector, ok := result.(model.Vector); ok && vector.Len() > 0 {
		stats.ErrorRate = float64(vector[0].Value)
	}

	return stats, nil
}

// GetAllRunnerStats retrieves per-role rates for every role Prometheus has
// seen over the given window.
func (qs *QueryService) GetAllRunnerStats(ctx context.Context, window time.Duration) (map[string]*RunnerStats, error) {
	windowStr := model.Duration(window).String()
	statsByRole := make(map[string]*RunnerStats)

	get := func(role string) *RunnerStats {
		if s, ok := statsByRole[role]; ok {
			return s
		}
		s := &RunnerStats{Role: role}
		statsByRole[role] = s
		return s
	}

	query := fmt.Sprintf(`sum by (role) (rate(metronome_cycles_total[%s]))`, windowStr)
	result, _, err := qs.client.Query(ctx, query, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query cycle rates: %w", err)
	}
	if vector, ok := result.(model.Vector); ok {
		for _, sample := range vector {
			role := string(sample.Metric["role"])
			get(role).CycleRate = float64(sample.Value)
		}
	}

	query = fmt.Sprintf(`sum by (role) (rate(metronome_work_items_total[%s]))`, windowStr)
	result, _, err = qs.client.Query(ctx, query, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query work rates: %w", err)
	}
	if vector, ok := result.(model.Vector); ok {
		for _, sample := range vector {
			role := string(sample.Metric["role"])
			get(role).WorkRate = float64(sample.Value)
		}
	}

	query = fmt.Sprintf(`sum by (role) (rate(metronome_errors_total{kind=%q}[%s]))`, ErrorKindFailure, windowStr)
	result, _, err = qs.client.Query(ctx, query, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query error rates: %w", err)
	}
	if vector, ok := result.(model.Vector); ok {
		for _, sample := range vector {
			role := string(sample.Metric["role"])
			get(role).ErrorRate = float64(sample.Value)
		}
	}

	return statsByRole, nil
}
