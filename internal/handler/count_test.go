package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/viewtally/viewtally/internal/cache"
	"github.com/viewtally/viewtally/internal/handler/dto"
	"github.com/viewtally/viewtally/internal/model"
	"github.com/viewtally/viewtally/internal/service"
)

// countStore is an in-memory ViewStore capturing bucket writes.
type countStore struct {
	contents map[int64]bool
	writes   int
}

func (s *countStore) IncrementView(ctx context.Context, contentID int64, bucket model.BucketType, periodKey string, amount int64) error {
	s.writes++
	return nil
}

func (s *countStore) IncrementAllBuckets(ctx context.Context, contentID int64, keys [5]string, amount int64) error {
	s.writes += len(keys)
	return nil
}

func (s *countStore) ContentExists(ctx context.Context, id int64) (bool, error) {
	return s.contents[id], nil
}

// countStateStore is an in-memory StateStore for cookieless requests.
type countStateStore struct {
	states map[string]string
}

func (s *countStateStore) GetVisitorState(ctx context.Context, key string) (string, error) {
	encoded, ok := s.states[key]
	if !ok {
		return "", cache.ErrCacheMiss
	}
	return encoded, nil
}

func (s *countStateStore) SetVisitorState(ctx context.Context, key, encoded string, expiresAt time.Time) error {
	s.states[key] = encoded
	return nil
}

// newCountRouter wires a CountHandler over in-memory stores behind a chi
// router so URL parameters resolve as they do in production.
func newCountRouter(t *testing.T, states *countStateStore) (*chi.Mux, *countStore) {
	t.Helper()

	store := &countStore{contents: map[int64]bool{7: true, 8: true}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	counter := service.NewCounter(store, nil, states, service.NewExclusions(), nil,
		service.CounterConfig{Cooldown: 24 * time.Hour}, logger, nil)

	h := NewCountHandler(counter, logger)
	r := chi.NewRouter()
	r.Post("/api/v1/views/{id}", h.Count)
	return r, store
}

func doCount(t *testing.T, router http.Handler, target string, mutate func(*http.Request)) (*httptest.ResponseRecorder, dto.CountResponse) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, target, nil)
	req.Header.Set("User-Agent", "Mozilla/5.0")
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var body dto.CountResponse
	if rec.Code == http.StatusOK {
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
	}
	return rec, body
}

func TestCountHandler_CookieRoundTrip(t *testing.T) {
	router, store := newCountRouter(t, nil)

	rec, body := doCount(t, router, "/api/v1/views/7", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !body.Counted {
		t.Error("expected first view to be counted")
	}
	if store.writes != 5 {
		t.Errorf("expected 5 bucket writes, got %d", store.writes)
	}

	cookies := rec.Result().Cookies()
	var state *http.Cookie
	for _, c := range cookies {
		if c.Name == "vt_state_0" {
			state = c
		}
	}
	if state == nil {
		t.Fatalf("expected vt_state_0 cookie, got %v", cookies)
	}
	if !strings.Contains(state.Value, "b7") {
		t.Errorf("state cookie missing entry for content 7: %q", state.Value)
	}
	if !state.HttpOnly || !state.Secure || state.SameSite != http.SameSiteNoneMode {
		t.Errorf("unexpected cookie attributes: %+v", state)
	}

	// Replaying the cookie within the cooldown must not count again.
	rec, body = doCount(t, router, "/api/v1/views/7", func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "vt_state_0", Value: state.Value})
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if body.Counted {
		t.Error("expected repeat view to be suppressed")
	}
	if store.writes != 5 {
		t.Errorf("expected no additional writes, got %d", store.writes)
	}
}

func TestCountHandler_ExpiresSurplusChunkCookies(t *testing.T) {
	router, _ := newCountRouter(t, nil)

	rec, _ := doCount(t, router, "/api/v1/views/7", func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "vt_state_0", Value: "not-a-state"})
		r.AddCookie(&http.Cookie{Name: "vt_state_1", Value: "leftover"})
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var expired bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == "vt_state_1" && c.MaxAge < 0 {
			expired = true
		}
	}
	if !expired {
		t.Error("expected surplus vt_state_1 cookie to be expired")
	}
}

func TestCountHandler_CookielessRoundTrip(t *testing.T) {
	states := &countStateStore{states: make(map[string]string)}
	router, _ := newCountRouter(t, states)

	rec, body := doCount(t, router, "/api/v1/views/7", func(r *http.Request) {
		r.Header.Set("X-Visitor-Key", "")
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !body.Counted {
		t.Error("expected first view to be counted")
	}
	if body.VisitorKey == "" {
		t.Fatal("expected an issued visitor key")
	}
	if got := rec.Header().Get("X-Visitor-Key"); got != body.VisitorKey {
		t.Errorf("header key %q does not match body key %q", got, body.VisitorKey)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Error("cookieless response must not set cookies")
	}
	if _, ok := states.states[body.VisitorKey]; !ok {
		t.Error("expected state persisted under the issued key")
	}

	rec, repeat := doCount(t, router, "/api/v1/views/7", func(r *http.Request) {
		r.Header.Set("X-Visitor-Key", body.VisitorKey)
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if repeat.Counted {
		t.Error("expected repeat view to be suppressed")
	}
	if repeat.VisitorKey != body.VisitorKey {
		t.Errorf("expected key %q to be retained, got %q", body.VisitorKey, repeat.VisitorKey)
	}
}

func TestCountHandler_InvalidID(t *testing.T) {
	router, _ := newCountRouter(t, nil)

	for _, target := range []string{"/api/v1/views/0", "/api/v1/views/-3", "/api/v1/views/abc"} {
		rec, _ := doCount(t, router, target, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d", target, rec.Code)
		}
	}
}

func TestCountHandler_UnknownContent(t *testing.T) {
	router, store := newCountRouter(t, nil)

	rec, _ := doCount(t, router, "/api/v1/views/99", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
	if store.writes != 0 {
		t.Errorf("expected no writes for unknown content, got %d", store.writes)
	}
}

func TestCountHandler_BodySelectsCookielessMode(t *testing.T) {
	states := &countStateStore{states: make(map[string]string)}
	router, _ := newCountRouter(t, states)

	rec, body := doCount(t, router, "/api/v1/views/8", func(r *http.Request) {
		r.Body = io.NopCloser(strings.NewReader(`{"mode":"cookieless"}`))
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if body.VisitorKey == "" {
		t.Error("expected an issued visitor key")
	}
}
