package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/shotcmp/internal/auth"
	"github.com/example/shotcmp/internal/imageprocessor"
	"github.com/example/shotcmp/internal/repository"
	"github.com/example/shotcmp/internal/usecase"
	"github.com/example/shotcmp/pkg/similarity"
)

const testJWTSecret = "test-secret"

type filePart struct {
	field       string
	contentType string
	payload     []byte
}

type memoryRepo struct {
	mu   sync.Mutex
	logs map[string]*repository.ComparisonLog
}

func (r *memoryRepo) SaveLog(_ context.Context, log *repository.ComparisonLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs[log.RequestID] = log
	return nil
}

func (r *memoryRepo) FindByRequestIDAndUser(_ context.Context, requestID, userID string) (*repository.ComparisonLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	log, ok := r.logs[requestID]
	if !ok || log.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	return log, nil
}

func (r *memoryRepo) FindDuplicatesByHash(_ context.Context, userID, hash, exclude string) ([]*repository.ComparisonLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*repository.ComparisonLog
	for _, l := range r.logs {
		if l.UserID == userID && l.ControlSHA1 == hash && l.RequestID != exclude {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *memoryRepo) FindCandidatesForNearMatch(context.Context, string, string, string, int, int) ([]*repository.ComparisonLog, error) {
	return nil, nil
}

func (r *memoryRepo) AggregateMetrics(context.Context) (*repository.MetricsAggregation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	agg := &repository.MetricsAggregation{TotalCount: int64(len(r.logs))}
	for _, l := range r.logs {
		if l.Similar {
			agg.SimilarCount++
		}
	}
	return agg, nil
}

type memoryCache struct {
	mu     sync.Mutex
	values map[string]string
}

func (c *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value.(string)
	return nil
}

func (c *memoryCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	if !ok {
		return "", usecase.ErrCacheMiss
	}
	return v, nil
}

func newTestRouter(uc *usecase.ComparisonUseCase) *gin.Engine {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.MaxMultipartMemory = MaxUploadSize
	RegisterRoutes(router, uc, auth.JWTMiddleware(testJWTSecret, ""))
	return router
}

func newWiredRouter() *gin.Engine {
	repo := &memoryRepo{logs: map[string]*repository.ComparisonLog{}}
	cache := &memoryCache{values: map[string]string{}}
	processor := imageprocessor.NewLocal(similarity.NewScorer(), zap.NewNop())
	return newTestRouter(usecase.NewComparisonUseCase(repo, cache, processor, zap.NewNop(), similarity.DefaultThreshold))
}

func TestCompareRejectsLargeUpload(t *testing.T) {
	router := newTestRouter(&usecase.ComparisonUseCase{})

	token := buildTestToken(t, "user-123")
	body, contentType := buildMultipartBody(t, nil, filePart{"candidate", "image/png", bytes.Repeat([]byte("a"), MaxUploadSize+1)})

	resp := serve(router, http.MethodPost, "/compare", body, contentType, token)
	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status %d, got %d", http.StatusRequestEntityTooLarge, resp.Code)
	}
}

func TestCompareRejectsUnsupportedContentType(t *testing.T) {
	router := newTestRouter(&usecase.ComparisonUseCase{})

	token := buildTestToken(t, "user-123")
	body, contentType := buildMultipartBody(t, nil,
		filePart{"candidate", "text/plain", []byte("hello")},
		filePart{"control", "image/png", pngOf(t, 2, 2, color.White)},
	)

	resp := serve(router, http.MethodPost, "/compare", body, contentType, token)
	if resp.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected status %d, got %d", http.StatusUnsupportedMediaType, resp.Code)
	}
}

func TestCompareRequiresToken(t *testing.T) {
	router := newTestRouter(&usecase.ComparisonUseCase{})
	body, contentType := buildMultipartBody(t, nil, filePart{"candidate", "image/png", []byte("x")})

	resp := serve(router, http.MethodPost, "/compare", body, contentType, "")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, resp.Code)
	}
}

func TestCompareRejectsBadThreshold(t *testing.T) {
	router := newWiredRouter()
	token := buildTestToken(t, "user-123")
	img := pngOf(t, 2, 2, color.White)

	for _, raw := range []string{"abc", "NaN", "-0.1", "1.5"} {
		body, contentType := buildMultipartBody(t, map[string]string{"threshold": raw},
			filePart{"candidate", "image/png", img},
			filePart{"control", "image/png", img},
		)
		resp := serve(router, http.MethodPost, "/compare", body, contentType, token)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("threshold %q: expected status %d, got %d", raw, http.StatusBadRequest, resp.Code)
		}
	}
}

func TestCompareAndFetchResult(t *testing.T) {
	router := newWiredRouter()
	token := buildTestToken(t, "user-123")
	img := pngOf(t, 4, 4, color.RGBA{R: 200, G: 100, B: 50, A: 255})

	body, contentType := buildMultipartBody(t, map[string]string{"threshold": "0.9"},
		filePart{"candidate", "image/png", img},
		filePart{"control", "image/png", img},
	)
	resp := serve(router, http.MethodPost, "/compare", body, contentType, token)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, resp.Code, resp.Body.String())
	}

	var compared struct {
		RequestID string  `json:"request_id"`
		Similar   bool    `json:"similar"`
		Score     float64 `json:"score"`
		Threshold float64 `json:"threshold"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &compared); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if !compared.Similar || compared.Score != 1 || compared.Threshold != 0.9 {
		t.Fatalf("unexpected comparison: %+v", compared)
	}

	resp = serve(router, http.MethodGet, "/result/"+compared.RequestID, nil, "", token)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected result, got %d", resp.Code)
	}

	resp = serve(router, http.MethodGet, "/result/"+compared.RequestID, nil, "", buildTestToken(t, "someone-else"))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected %d for another user, got %d", http.StatusNotFound, resp.Code)
	}

	resp = serve(router, http.MethodGet, "/result/"+compared.RequestID+"/duplicates", nil, "", token)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected duplicate report, got %d", resp.Code)
	}

	resp = serve(router, http.MethodGet, "/metrics", nil, "", token)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected metrics, got %d", resp.Code)
	}
	var metrics usecase.MetricsSummary
	if err := json.Unmarshal(resp.Body.Bytes(), &metrics); err != nil {
		t.Fatalf("invalid metrics: %v", err)
	}
	if metrics.TotalComparisons != 1 || metrics.SimilarRate != 1 {
		t.Fatalf("unexpected metrics: %+v", metrics)
	}
}

func TestCompareMapsDimensionMismatch(t *testing.T) {
	router := newWiredRouter()
	token := buildTestToken(t, "user-123")

	body, contentType := buildMultipartBody(t, nil,
		filePart{"candidate", "image/png", pngOf(t, 10, 4, color.White)},
		filePart{"control", "image/png", pngOf(t, 10, 5, color.White)},
	)
	resp := serve(router, http.MethodPost, "/compare", body, contentType, token)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status %d, got %d", http.StatusUnprocessableEntity, resp.Code)
	}
}

func TestCompareMapsUndecodableImage(t *testing.T) {
	router := newWiredRouter()
	token := buildTestToken(t, "user-123")

	body, contentType := buildMultipartBody(t, nil,
		filePart{"candidate", "image/png", []byte("not really a png")},
		filePart{"control", "image/png", pngOf(t, 2, 2, color.White)},
	)
	resp := serve(router, http.MethodPost, "/compare", body, contentType, token)
	if resp.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected status %d, got %d", http.StatusUnsupportedMediaType, resp.Code)
	}
}

func TestResultNotFound(t *testing.T) {
	router := newWiredRouter()
	resp := serve(router, http.MethodGet, "/result/missing", nil, "", buildTestToken(t, "user-123"))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, resp.Code)
	}
}

func serve(router *gin.Engine, method, path string, body *bytes.Buffer, contentType, token string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, body)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func pngOf(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

func buildMultipartBody(t *testing.T, fields map[string]string, parts ...filePart) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for _, p := range parts {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="`+p.field+`"; filename="upload"`)
		header.Set("Content-Type", p.contentType)

		part, err := writer.CreatePart(header)
		if err != nil {
			t.Fatalf("failed to create multipart part: %v", err)
		}
		if _, err := part.Write(p.payload); err != nil {
			t.Fatalf("failed to write payload: %v", err)
		}
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	return body, writer.FormDataContentType()
}

func buildTestToken(t *testing.T, subject string) string {
	t.Helper()

	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}
