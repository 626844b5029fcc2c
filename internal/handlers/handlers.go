package handlers

import (
	"errors"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/example/shotcmp/internal/auth"
	"github.com/example/shotcmp/internal/imageprocessor"
	"github.com/example/shotcmp/internal/repository"
	"github.com/example/shotcmp/internal/usecase"
	"github.com/example/shotcmp/pkg/similarity"
)

// MaxUploadSize caps the whole multipart body of a comparison request.
const MaxUploadSize = 10 << 20

var (
	errUploadTooLarge     = errors.New("upload exceeds size limit")
	errUnsupportedContent = errors.New("unsupported content type")
)

// RegisterRoutes wires the HTTP handlers to the Gin router. Every route except
// /health runs behind authMiddleware.
func RegisterRoutes(router *gin.Engine, uc *usecase.ComparisonUseCase, authMiddleware gin.HandlerFunc) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	protected := router.Group("/")
	protected.Use(authMiddleware)

	protected.POST("/compare", func(c *gin.Context) {
		userID, ok := auth.GetUserID(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadSize)

		candidate, err := readImagePart(c, "candidate")
		if err != nil {
			writeUploadError(c, "candidate", err)
			return
		}
		control, err := readImagePart(c, "control")
		if err != nil {
			writeUploadError(c, "control", err)
			return
		}

		threshold := uc.DefaultThreshold()
		if raw := strings.TrimSpace(c.PostForm("threshold")); raw != "" {
			threshold, err = strconv.ParseFloat(raw, 64)
			if err != nil || math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "threshold must be a number between 0 and 1"})
				return
			}
		}

		requestID, result, err := uc.CompareImages(c.Request.Context(), userID, candidate, control, threshold)
		if err != nil {
			writeCompareError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"request_id": requestID,
			"similar":    result.Similar,
			"score":      result.Score,
			"threshold":  result.Threshold,
			"width":      result.Width,
			"height":     result.Height,
			"message":    result.Message,
		})
	})

	protected.GET("/result/:id", func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		log, err := uc.GetResult(c.Request.Context(), userID, c.Param("id"))
		if err != nil {
			writeLookupError(c, err)
			return
		}
		c.JSON(http.StatusOK, logResponse(log))
	})

	protected.GET("/result/:id/duplicates", func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		report, err := uc.GetDuplicateReport(c.Request.Context(), userID, c.Param("id"))
		if err != nil {
			writeLookupError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"request_id": report.Request.RequestID,
			"control":    report.Request.ControlSHA1,
			"exact":      summaries(report.Exact),
			"near":       summaries(report.Near),
		})
	})

	protected.GET("/metrics", func(c *gin.Context) {
		summary, err := uc.GetMetricsSummary(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load metrics"})
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}

func requireUser(c *gin.Context) (string, bool) {
	userID, ok := auth.GetUserID(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", false
	}
	return userID, true
}

// readImagePart returns the bytes of the named multipart file after checking
// its declared content type.
func readImagePart(c *gin.Context, field string) ([]byte, error) {
	file, err := c.FormFile(field)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) || errors.Is(err, multipart.ErrMessageTooLarge) ||
			strings.Contains(err.Error(), "request body too large") {
			return nil, errUploadTooLarge
		}
		return nil, err
	}
	if file.Size > MaxUploadSize {
		return nil, errUploadTooLarge
	}
	if !strings.HasPrefix(strings.ToLower(file.Header.Get("Content-Type")), "image/") {
		return nil, errUnsupportedContent
	}

	src, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return io.ReadAll(src)
}

func writeUploadError(c *gin.Context, field string, err error) {
	switch {
	case errors.Is(err, errUploadTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload exceeds 10MiB limit"})
	case errors.Is(err, errUnsupportedContent):
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": field + " must be an image"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": field + " image file is required"})
	}
}

func writeCompareError(c *gin.Context, err error) {
	var dimErr *similarity.DimensionMismatchError
	switch {
	case errors.As(err, &dimErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":     "images have different dimensions",
			"candidate": gin.H{"width": dimErr.Candidate.X, "height": dimErr.Candidate.Y},
			"control":   gin.H{"width": dimErr.Control.X, "height": dimErr.Control.Y},
		})
	case errors.Is(err, similarity.ErrDegenerateInput):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "images have no colour content"})
	case errors.Is(err, imageprocessor.ErrInvalidImage):
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unable to decode image"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "comparison failed"})
	}
}

func writeLookupError(c *gin.Context, err error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load result"})
}

func logResponse(log *repository.ComparisonLog) gin.H {
	return gin.H{
		"request_id": log.RequestID,
		"user_id":    log.UserID,
		"score":      log.Score,
		"threshold":  log.Threshold,
		"similar":    log.Similar,
		"width":      log.Width,
		"height":     log.Height,
		"details":    log.Details,
		"created_at": log.CreatedAt,
	}
}

func summaries(logs []*repository.ComparisonLog) []gin.H {
	out := make([]gin.H, 0, len(logs))
	for _, l := range logs {
		out = append(out, gin.H{
			"request_id": l.RequestID,
			"score":      l.Score,
			"similar":    l.Similar,
			"created_at": l.CreatedAt,
		})
	}
	return out
}
