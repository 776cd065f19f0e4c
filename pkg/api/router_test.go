package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/temporalmem/temporalmem/config"
	"github.com/temporalmem/temporalmem/pkg/api/handlers"
	"github.com/temporalmem/temporalmem/pkg/embedding/mock"
	"github.com/temporalmem/temporalmem/pkg/logger"
	"github.com/temporalmem/temporalmem/pkg/memory"
	"github.com/temporalmem/temporalmem/pkg/store/memstore"
	"github.com/temporalmem/temporalmem/pkg/vector/local"
)

func testRouterConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			HTTP: config.HTTPConfig{
				ReadTimeout: 30 * time.Second,
			},
			CORS: config.CORSConfig{
				Enabled: false,
			},
		},
	}
}

func testRouterLogger() logger.Logger {
	return logger.New(&logger.Config{
		Level:  logger.ErrorLevel,
		Format: "json",
		Output: "stdout",
	})
}

// createTestHandlers creates test handlers with a running engine
func createTestHandlers(t *testing.T) *Handlers {
	t.Helper()

	log := testRouterLogger()
	eng := memory.NewEngine(memory.EngineConfig{RetryBudget: 3},
		memstore.New(),
		local.New(mock.DefaultDimension),
		mock.New(mock.DefaultDimension),
		nil, nil, nil,
	)

	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Failed to start engine: %v", err)
	}
	t.Cleanup(func() { eng.Stop(ctx) })

	return &Handlers{
		Memory: handlers.NewMemoryHandler(eng, log),
		Health: handlers.NewHealthHandler(eng),
	}
}

func TestNewRouter(t *testing.T) {
	router := NewRouter(testRouterConfig(), testRouterLogger(), &Handlers{})

	if router == nil {
		t.Fatal("NewRouter returned nil")
	}
}

func TestRegisterRoutes_HealthEndpoints(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		method     string
		wantStatus int
	}{
		{
			name:       "health check",
			path:       "/health",
			method:     http.MethodGet,
			wantStatus: http.StatusOK,
		},
		{
			name:       "ready check",
			path:       "/ready",
			method:     http.MethodGet,
			wantStatus: http.StatusOK,
		},
		{
			name:       "status check",
			path:       "/status",
			method:     http.MethodGet,
			wantStatus: http.StatusOK,
		},
	}

	router := NewRouter(testRouterConfig(), testRouterLogger(), createTestHandlers(t))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %v, want %v", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestRegisterRoutes_MemoryEndpoints(t *testing.T) {
	router := NewRouter(testRouterConfig(), testRouterLogger(), createTestHandlers(t))

	// Write a fact through the full middleware chain.
	body := bytes.NewBufferString(`{"facts":[{"text":"User prefers espresso","category":"preference","slot":"coffee_preference","confidence":0.9}]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/user-1/memories", body)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("write status = %v, want %v: %s", w.Code, http.StatusOK, w.Body.String())
	}

	// List should show the active record.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/users/user-1/memories", nil)
	w = httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("list status = %v, want %v", w.Code, http.StatusOK)
	}

	// Search goes through the same routes.
	body = bytes.NewBufferString(`{"query":"coffee"}`)
	req = httptest.NewRequest(http.MethodPost, "/api/v1/users/user-1/memories/search", body)
	w = httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("search status = %v, want %v", w.Code, http.StatusOK)
	}
}

func TestRegisterRoutes_UnknownRoute(t *testing.T) {
	router := NewRouter(testRouterConfig(), testRouterLogger(), createTestHandlers(t))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/unknown", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %v, want %v", w.Code, http.StatusNotFound)
	}
}
