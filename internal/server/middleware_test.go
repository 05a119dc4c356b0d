package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lumenfeed/ingest/internal/common"
	"github.com/lumenfeed/ingest/internal/models"
)

type fakePublisherStore struct {
	byKey map[string]*models.Publisher
}

func (f *fakePublisherStore) Create(ctx context.Context, name, domain, email string, config models.PublisherConfig) (*models.Publisher, string, error) {
	return nil, "", nil
}
func (f *fakePublisherStore) ByAPIKey(ctx context.Context, key string) (*models.Publisher, error) {
	return f.byKey[key], nil
}
func (f *fakePublisherStore) ByDomain(ctx context.Context, domain string, allowSubdomain bool) (*models.Publisher, error) {
	return nil, nil
}
func (f *fakePublisherStore) ByID(ctx context.Context, id string) (*models.Publisher, error) {
	return nil, nil
}
func (f *fakePublisherStore) ReserveSlot(ctx context.Context, publisherID string) error { return nil }
func (f *fakePublisherStore) ReleaseSlot(ctx context.Context, publisherID string, processed bool) error {
	return nil
}
func (f *fakePublisherStore) Update(ctx context.Context, publisherID string, patch models.PublisherConfig, apiKey string) (*models.Publisher, error) {
	return nil, nil
}
func (f *fakePublisherStore) ReconcileSlots(ctx context.Context, publisherID string, activeJobCount int) error {
	return nil
}
func (f *fakePublisherStore) ListIDs(ctx context.Context) ([]string, error) { return nil, nil }

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestPublisherAuthMiddleware_MissingHeaderIs401(t *testing.T) {
	mw := publisherAuthMiddleware(&fakePublisherStore{})(okHandler())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/jobs/process", nil)

	mw.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestPublisherAuthMiddleware_UnknownKeyIs401(t *testing.T) {
	mw := publisherAuthMiddleware(&fakePublisherStore{byKey: map[string]*models.Publisher{}})(okHandler())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/jobs/process", nil)
	req.Header.Set("X-API-Key", "does-not-exist")

	mw.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestPublisherAuthMiddleware_ValidKeyAttachesPublisherToContext(t *testing.T) {
	publisher := &models.Publisher{ID: "pub-1", Domain: "example.com"}
	store := &fakePublisherStore{byKey: map[string]*models.Publisher{"good-key": publisher}}

	var seen *models.Publisher
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = publisherFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	mw := publisherAuthMiddleware(store)(inner)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/jobs/process", nil)
	req.Header.Set("X-API-Key", "good-key")
	mw.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if seen == nil || seen.ID != "pub-1" {
		t.Errorf("expected publisher to be attached to request context, got %+v", seen)
	}
}

func testConfig() *common.Config {
	cfg := common.NewDefaultConfig()
	cfg.Auth.AdminKeySecret = "super-secret"
	return cfg
}

func TestAdminAuthMiddleware_ValidKeyPasses(t *testing.T) {
	mw := adminAuthMiddleware(testConfig())(okHandler())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/jobs/stats", nil)
	req.Header.Set("X-Admin-Key", "super-secret")

	mw.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestAdminAuthMiddleware_WrongKeyIs401(t *testing.T) {
	mw := adminAuthMiddleware(testConfig())(okHandler())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/jobs/stats", nil)
	req.Header.Set("X-Admin-Key", "wrong")

	mw.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestAdminAuthMiddleware_NoCredentialsIs401(t *testing.T) {
	mw := adminAuthMiddleware(testConfig())(okHandler())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/jobs/stats", nil)

	mw.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestAdminAuthMiddleware_ValidSessionTokenPasses(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.TokenExpiry = "1h"
	token, err := issueAdminSessionToken(cfg)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	mw := adminAuthMiddleware(cfg)(okHandler())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/jobs/stats", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	mw.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for a valid admin session token, got %d", rec.Code)
	}
}

func TestAdminAuthMiddleware_ExpiredSessionTokenIs401(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.TokenExpiry = "-1h" // already expired
	token, err := issueAdminSessionToken(cfg)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	mw := adminAuthMiddleware(cfg)(okHandler())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/jobs/stats", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	mw.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for an expired admin session token, got %d", rec.Code)
	}
}
