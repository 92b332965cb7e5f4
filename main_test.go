package main

import (
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/readtheplaque/plaqued/cache"
	"github.com/readtheplaque/plaqued/config"
	"github.com/readtheplaque/plaqued/picker"
	"github.com/readtheplaque/plaqued/services"
	"github.com/readtheplaque/plaqued/storage"
)

func TestEnvironmentDetection(t *testing.T) {
	tests := []struct {
		name           string
		envVars        map[string]string
		expectedLambda bool
	}{
		{
			name:           "No Lambda environment variables",
			envVars:        map[string]string{},
			expectedLambda: false,
		},
		{
			name: "AWS_LAMBDA_FUNCTION_NAME set",
			envVars: map[string]string{
				"AWS_LAMBDA_FUNCTION_NAME": "plaqued",
			},
			expectedLambda: true,
		},
		{
			name: "Other environment variables",
			envVars: map[string]string{
				"SOME_VAR": "value",
			},
			expectedLambda: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Unsetenv("AWS_LAMBDA_FUNCTION_NAME")
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			if got := isLambdaEnvironment(); got != tt.expectedLambda {
				t.Errorf("isLambdaEnvironment() = %v, want %v", got, tt.expectedLambda)
			}
		})
	}
}

func newTestRouter(t *testing.T, cfg *config.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := storage.NewFilesystemStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	images, err := storage.NewLocalImageStore(t.TempDir(), "/img")
	if err != nil {
		t.Fatalf("Failed to create image store: %v", err)
	}
	backing := cache.NewMemoryCache()
	bounds := cache.NewBoundsCache(backing, time.Hour)
	pk := picker.New(store, bounds)
	service := services.NewPlaqueService(store, images, pk, bounds, cfg)
	return setupRouter(service, images, backing, cfg)
}

func TestRouterHealthAndNotFound(t *testing.T) {
	router := newTestRouter(t, &config.Config{Scope: "v"})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	if w.Code != 200 {
		t.Errorf("expected 200 from /health, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/no/such/route", nil))
	if w.Code != 404 {
		t.Errorf("expected 404 from unknown route, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "error") {
		t.Errorf("expected JSON error body, got %q", w.Body.String())
	}
}

func TestRouterMetricsExposed(t *testing.T) {
	router := newTestRouter(t, &config.Config{Scope: "v"})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if w.Code != 200 {
		t.Fatalf("expected 200 from /metrics, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Error("expected Prometheus metrics output")
	}
}

func TestAdminAuthDeniesWithoutCredentials(t *testing.T) {
	router := newTestRouter(t, &config.Config{Scope: "v", APIKey: "sekrit"})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/admin/pending", nil))
	if w.Code != 401 {
		t.Errorf("expected 401 without credentials, got %d", w.Code)
	}
}

func TestAdminAuthAcceptsAPIKey(t *testing.T) {
	router := newTestRouter(t, &config.Config{Scope: "v", APIKey: "sekrit"})

	req := httptest.NewRequest("GET", "/admin/pending", nil)
	req.Header.Set("X-Api-Key", "sekrit")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != 200 {
		t.Errorf("expected 200 with API key, got %d: %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest("GET", "/admin/pending", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != 200 {
		t.Errorf("expected 200 with bearer key, got %d", w.Code)
	}
}

func TestAdminAuthAcceptsBcryptBasicAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	router := newTestRouter(t, &config.Config{Scope: "v", AdminPasswordHash: string(hash)})

	req := httptest.NewRequest("GET", "/admin/pending", nil)
	req.SetBasicAuth("admin", "hunter2")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != 200 {
		t.Errorf("expected 200 with basic auth, got %d: %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest("GET", "/admin/pending", nil)
	req.SetBasicAuth("admin", "wrong")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != 401 {
		t.Errorf("expected 401 with wrong password, got %d", w.Code)
	}
}

func TestRouterServesIndex(t *testing.T) {
	router := newTestRouter(t, &config.Config{Scope: "v"})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	if w.Code != 200 {
		t.Fatalf("expected 200 from /, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "Read the Plaque") {
		t.Error("expected site title on index page")
	}
}
