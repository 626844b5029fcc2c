package usecase

import "context"

// MetricsSummary represents aggregated comparison insights.
type MetricsSummary struct {
	TotalComparisons           int64   `json:"total_comparisons"`
	SimilarComparisons         int64   `json:"similar_comparisons"`
	SimilarRate                float64 `json:"similar_rate"`
	AverageScore               float64 `json:"average_score"`
	AverageProcessingLatencyMs float64 `json:"average_processing_latency_ms"`
}

// GetMetricsSummary aggregates comparison metrics from persisted logs.
func (uc *ComparisonUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	agg, err := uc.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalComparisons:           agg.TotalCount,
		SimilarComparisons:         agg.SimilarCount,
		AverageScore:               agg.AverageScore,
		AverageProcessingLatencyMs: agg.AverageProcessingLatencyMs,
	}
	if agg.TotalCount > 0 {
		summary.SimilarRate = float64(agg.SimilarCount) / float64(agg.TotalCount)
	}
	return summary, nil
}
