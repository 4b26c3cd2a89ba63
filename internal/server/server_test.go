package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/crazyjump/crazyjump-bot/internal/storage"
)

type recordingHandler struct {
	mu      sync.Mutex
	updates []tgbotapi.Update
}

func (r *recordingHandler) HandleUpdate(_ context.Context, u tgbotapi.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func newTestServer(t *testing.T) (*recordingHandler, http.Handler) {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "srv.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	h := &recordingHandler{}
	return h, New(s, h, zerolog.Nop())
}

func TestRootAndHealth(t *testing.T) {
	_, e := newTestServer(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET / = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET /healthz = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestWebhookRejectsNonJSON(t *testing.T) {
	h, e := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("update_id=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("non-json webhook = %d, want 400", rec.Code)
	}
	if len(h.updates) != 0 {
		t.Error("handler should not have been called")
	}
}

func TestWebhookFeedsUpdates(t *testing.T) {
	h, e := newTestServer(t)

	body := `{"update_id":7,"message":{"message_id":1,"chat":{"id":42},"text":"/start"}}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("webhook = %d", rec.Code)
	}
	if len(h.updates) != 1 || h.updates[0].UpdateID != 7 {
		t.Fatalf("updates = %+v", h.updates)
	}
}
