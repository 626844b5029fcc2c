package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/shotcmp/internal/fingerprint"
	"github.com/example/shotcmp/internal/imageprocessor"
	"github.com/example/shotcmp/internal/logging"
	"github.com/example/shotcmp/internal/repository"
	"github.com/example/shotcmp/internal/retry"
)

const (
	processingTTL = time.Minute
	resultTTL     = 5 * time.Minute
)

// ComparisonRepository defines the persistence operations needed by the use case.
type ComparisonRepository interface {
	SaveLog(ctx context.Context, log *repository.ComparisonLog) error
	FindByRequestIDAndUser(ctx context.Context, requestID, userID string) (*repository.ComparisonLog, error)
	FindDuplicatesByHash(ctx context.Context, userID, hash, excludeRequestID string) ([]*repository.ComparisonLog, error)
	FindCandidatesForNearMatch(ctx context.Context, userID, hash, excludeRequestID string, width, height int) ([]*repository.ComparisonLog, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// ComparisonUseCase runs uploaded screenshot comparisons and keeps their history.
type ComparisonUseCase struct {
	repo             ComparisonRepository
	cache            Cache
	processor        imageprocessor.Client
	logger           *zap.Logger
	policy           retry.Policy
	defaultThreshold float64
	now              func() time.Time
}

type cachedComparison struct {
	RequestID   string    `json:"request_id"`
	UserID      string    `json:"user_id"`
	Score       float64   `json:"score"`
	Threshold   float64   `json:"threshold"`
	Similar     bool      `json:"similar"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Details     string    `json:"details"`
	ControlSHA1 string    `json:"control_sha1"`
	CreatedAt   time.Time `json:"created_at"`
}

// DuplicateReport lists earlier comparisons that used the same control image
// (Exact) or a perceptually indistinguishable one (Near).
type DuplicateReport struct {
	Request *repository.ComparisonLog
	Exact   []*repository.ComparisonLog
	Near    []*repository.ComparisonLog
}

// NewComparisonUseCase constructs a new use case instance.
func NewComparisonUseCase(repo ComparisonRepository, cache Cache, processor imageprocessor.Client, logger *zap.Logger, defaultThreshold float64) *ComparisonUseCase {
	return &ComparisonUseCase{
		repo:             repo,
		cache:            cache,
		processor:        processor,
		logger:           logger.Named("comparison_usecase"),
		policy:           retry.DefaultPolicy(),
		defaultThreshold: defaultThreshold,
		now:              time.Now,
	}
}

// DefaultThreshold is applied when a request does not carry one.
func (uc *ComparisonUseCase) DefaultThreshold() float64 {
	return uc.defaultThreshold
}

// CompareImages scores candidate against control, records the outcome and
// returns the new request ID.
func (uc *ComparisonUseCase) CompareImages(ctx context.Context, userID string, candidate, control []byte, threshold float64) (string, *imageprocessor.Result, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.compare_images", requestID)
	cacheKey := resultKey(requestID)

	if err := uc.withCacheRetry(ctx, requestID, "cache.set.processing", func() error {
		return uc.cache.Set(ctx, cacheKey, "processing", processingTTL)
	}); err != nil {
		opLogger.Error("failed to set processing flag", zap.Error(err))
		return "", nil, err
	}

	started := uc.now()
	result, err := uc.processor.Process(ctx, candidate, control, threshold)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.process_images", requestID, err)
		opLogger.Warn("comparison failed", zap.Error(wrapped))
		return "", nil, wrapped
	}
	latency := uc.now().Sub(started)

	fp, err := fingerprint.Compute(control, result.Control)
	if err != nil {
		opLogger.Warn("perceptual hash unavailable, near-duplicate lookup disabled for request", zap.Error(err))
	}

	log := &repository.ComparisonLog{
		RequestID:           requestID,
		UserID:              userID,
		Score:               result.Score,
		Threshold:           result.Threshold,
		Similar:             result.Similar,
		Width:               result.Width,
		Height:              result.Height,
		ControlSHA1:         fp.SHA1,
		ControlPHash:        int64(fp.PHash),
		Details:             fmt.Sprintf("similar:%t score:%f threshold:%f control:%s", result.Similar, result.Score, result.Threshold, fp.SHA1),
		ProcessingLatencyMs: float64(latency) / float64(time.Millisecond),
		CreatedAt:           uc.now().UTC(),
	}
	if err := uc.repo.SaveLog(ctx, log); err != nil {
		wrapped := logging.NewOperationError("usecase.save_log", requestID, err)
		opLogger.Error("failed to persist comparison log", zap.Error(wrapped))
		return "", nil, wrapped
	}

	serialized, err := json.Marshal(cachedComparison{
		RequestID:   requestID,
		UserID:      userID,
		Score:       log.Score,
		Threshold:   log.Threshold,
		Similar:     log.Similar,
		Width:       log.Width,
		Height:      log.Height,
		Details:     log.Details,
		ControlSHA1: log.ControlSHA1,
		CreatedAt:   log.CreatedAt,
	})
	if err != nil {
		opLogger.Error("failed to serialize comparison result", zap.Error(err))
		return "", nil, err
	}

	if err := uc.withCacheRetry(ctx, requestID, "cache.set.result", func() error {
		return uc.cache.Set(ctx, cacheKey, string(serialized), resultTTL)
	}); err != nil {
		opLogger.Error("failed to cache comparison result", zap.Error(err))
		return "", nil, err
	}

	opLogger.Info("comparison recorded",
		zap.Float64("score", result.Score),
		zap.Bool("similar", result.Similar),
		zap.Duration("latency", latency),
	)
	return requestID, result, nil
}

// GetResult returns a comparison owned by userID, from cache when possible.
func (uc *ComparisonUseCase) GetResult(ctx context.Context, userID, requestID string) (*repository.ComparisonLog, error) {
	opLogger := logging.WithOperation(uc.logger, "usecase.get_result", requestID)

	cached, err := uc.withCacheGet(ctx, requestID, "cache.get.result", resultKey(requestID))
	switch {
	case err == nil:
		if log, ok := uc.decodeCached(opLogger, cached, userID); ok {
			return log, nil
		}
	case !errors.Is(err, ErrCacheMiss):
		opLogger.Warn("failed to read cache", zap.Error(err))
	}

	return uc.repo.FindByRequestIDAndUser(ctx, requestID, userID)
}

// decodeCached returns the cached log when it is a finished result that
// belongs to userID.
func (uc *ComparisonUseCase) decodeCached(logger *zap.Logger, cached, userID string) (*repository.ComparisonLog, bool) {
	if cached == "processing" {
		return nil, false
	}
	var payload cachedComparison
	if err := json.Unmarshal([]byte(cached), &payload); err != nil {
		logger.Warn("failed to decode cached result", zap.Error(err))
		return nil, false
	}
	if payload.UserID != userID {
		return nil, false
	}
	return &repository.ComparisonLog{
		RequestID:   payload.RequestID,
		UserID:      payload.UserID,
		Score:       payload.Score,
		Threshold:   payload.Threshold,
		Similar:     payload.Similar,
		Width:       payload.Width,
		Height:      payload.Height,
		Details:     payload.Details,
		ControlSHA1: payload.ControlSHA1,
		CreatedAt:   payload.CreatedAt,
	}, true
}

// GetDuplicateReport finds the user's other comparisons against the same
// control image.
func (uc *ComparisonUseCase) GetDuplicateReport(ctx context.Context, userID, requestID string) (*DuplicateReport, error) {
	log, err := uc.repo.FindByRequestIDAndUser(ctx, requestID, userID)
	if err != nil {
		return nil, err
	}

	exact, err := uc.repo.FindDuplicatesByHash(ctx, userID, log.ControlSHA1, log.RequestID)
	if err != nil {
		return nil, err
	}

	report := &DuplicateReport{Request: log, Exact: exact}
	if log.ControlPHash == 0 {
		return report, nil
	}

	candidates, err := uc.repo.FindCandidatesForNearMatch(ctx, userID, log.ControlSHA1, log.RequestID, log.Width, log.Height)
	if err != nil {
		return nil, err
	}
	for _, c := range candidates {
		if c.ControlPHash != 0 && fingerprint.Near(uint64(log.ControlPHash), uint64(c.ControlPHash)) {
			report.Near = append(report.Near, c)
		}
	}
	return report, nil
}

func (uc *ComparisonUseCase) withCacheRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	return retry.Do(ctx, uc.policy, uc.logger, operation, requestID, fn)
}

func (uc *ComparisonUseCase) withCacheGet(ctx context.Context, requestID, operation, cacheKey string) (string, error) {
	var (
		result string
		miss   bool
	)
	err := uc.withCacheRetry(ctx, requestID, operation, func() error {
		value, err := uc.cache.Get(ctx, cacheKey)
		if errors.Is(err, ErrCacheMiss) {
			miss = true
			return nil
		}
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return "", err
	}
	if miss {
		return "", ErrCacheMiss
	}
	return result, nil
}

func resultKey(requestID string) string {
	return "comparison:" + requestID
}
