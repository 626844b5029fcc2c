package repository

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/shotcmp/internal/retry"
)

// ComparisonLog is a persisted screenshot comparison.
type ComparisonLog struct {
	ID                  uint      `gorm:"primaryKey"`
	RequestID           string    `gorm:"column:request_id;uniqueIndex;size:64"`
	UserID              string    `gorm:"column:user_id;size:64;index"`
	Score               float64   `gorm:"column:score"`
	Threshold           float64   `gorm:"column:threshold"`
	Similar             bool      `gorm:"column:is_similar"`
	Width               int       `gorm:"column:width"`
	Height              int       `gorm:"column:height"`
	ControlSHA1         string    `gorm:"column:control_sha1;size:40;index"`
	ControlPHash        int64     `gorm:"column:control_phash"`
	Details             string    `gorm:"column:details;type:text"`
	ProcessingLatencyMs float64   `gorm:"column:processing_latency_ms"`
	CreatedAt           time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (ComparisonLog) TableName() string {
	return "comparison_logs"
}

// MetricsAggregation holds totals computed over every comparison log.
type MetricsAggregation struct {
	TotalCount                 int64
	SimilarCount               int64
	AverageScore               float64
	AverageProcessingLatencyMs float64
}

// ComparisonRepository stores comparison logs through gorm.
type ComparisonRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewComparisonRepository creates a repository that retries transient
// database errors.
func NewComparisonRepository(db *gorm.DB, logger *zap.Logger) *ComparisonRepository {
	p := retry.DefaultPolicy()
	return &ComparisonRepository{
		db:             db,
		logger:         logger.Named("comparison_repository"),
		retryAttempts:  p.Attempts,
		initialBackoff: p.InitialBackoff,
		maxBackoff:     p.MaxBackoff,
	}
}

// AutoMigrate ensures the schema is available.
func (r *ComparisonRepository) AutoMigrate(ctx context.Context) error {
	return r.executeWithRetry(ctx, "repository.auto_migrate", "", func() error {
		return r.db.WithContext(ctx).AutoMigrate(&ComparisonLog{})
	})
}

// SaveLog persists a comparison log entry.
func (r *ComparisonRepository) SaveLog(ctx context.Context, log *ComparisonLog) error {
	return r.executeWithRetry(ctx, "repository.save_log", log.RequestID, func() error {
		return r.db.WithContext(ctx).Create(log).Error
	})
}

// FindByRequestIDAndUser retrieves the comparison owned by userID.
func (r *ComparisonRepository) FindByRequestIDAndUser(ctx context.Context, requestID, userID string) (*ComparisonLog, error) {
	var log ComparisonLog
	err := r.executeWithRetry(ctx, "repository.find_by_request", requestID, func() error {
		return r.db.WithContext(ctx).First(&log, "request_id = ? AND user_id = ?", requestID, userID).Error
	})
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// FindDuplicatesByHash lists the user's other comparisons against a control
// with the same SHA-1.
func (r *ComparisonRepository) FindDuplicatesByHash(ctx context.Context, userID, hash, excludeRequestID string) ([]*ComparisonLog, error) {
	var logs []*ComparisonLog
	err := r.executeWithRetry(ctx, "repository.find_duplicates", excludeRequestID, func() error {
		return r.db.WithContext(ctx).
			Where("user_id = ? AND control_sha1 = ? AND request_id <> ?", userID, hash, excludeRequestID).
			Order("created_at DESC").
			Find(&logs).Error
	})
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// FindCandidatesForNearMatch lists the user's other comparisons whose control
// differs in SHA-1 but has the same dimensions, for perceptual matching.
func (r *ComparisonRepository) FindCandidatesForNearMatch(ctx context.Context, userID, hash, excludeRequestID string, width, height int) ([]*ComparisonLog, error) {
	var logs []*ComparisonLog
	err := r.executeWithRetry(ctx, "repository.find_near_candidates", excludeRequestID, func() error {
		return r.db.WithContext(ctx).
			Where("user_id = ? AND control_sha1 <> ? AND request_id <> ? AND width = ? AND height = ?",
				userID, hash, excludeRequestID, width, height).
			Order("created_at DESC").
			Find(&logs).Error
	})
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// AggregateMetrics summarises every stored comparison.
func (r *ComparisonRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var row struct {
		TotalCount   int64
		SimilarCount int64
		AverageScore float64
		AverageLat   float64
	}
	err := r.executeWithRetry(ctx, "repository.aggregate_metrics", "", func() error {
		return r.db.WithContext(ctx).Model(&ComparisonLog{}).
			Select("COUNT(*) AS total_count, " +
				"COALESCE(SUM(CASE WHEN is_similar THEN 1 ELSE 0 END), 0) AS similar_count, " +
				"COALESCE(AVG(score), 0) AS average_score, " +
				"COALESCE(AVG(processing_latency_ms), 0) AS average_lat").
			Scan(&row).Error
	})
	if err != nil {
		return nil, err
	}
	return &MetricsAggregation{
		TotalCount:                 row.TotalCount,
		SimilarCount:               row.SimilarCount,
		AverageScore:               row.AverageScore,
		AverageProcessingLatencyMs: row.AverageLat,
	}, nil
}

func (r *ComparisonRepository) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	p := retry.Policy{Attempts: r.retryAttempts, InitialBackoff: r.initialBackoff, MaxBackoff: r.maxBackoff}
	return retry.Do(ctx, p, r.logger, operation, requestID, fn)
}
