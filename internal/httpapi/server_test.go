package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"kudobot/internal/engine"
	"kudobot/internal/runtime/supervisor"
	"kudobot/internal/storage"
	logx "kudobot/pkg/logx"
)

type apiStub struct {
	mu    sync.Mutex
	feed  []engine.FeedEntry
	kudos []int64
}

func (a *apiStub) EnsureAuth(ctx context.Context) error { return nil }

func (a *apiStub) RelatedActivities(ctx context.Context, id int64) ([]int64, error) {
	return nil, nil
}

func (a *apiStub) FollowingFeed(ctx context.Context) ([]engine.FeedEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]engine.FeedEntry(nil), a.feed...), nil
}

func (a *apiStub) GiveKudos(ctx context.Context, id int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.kudos = append(a.kudos, id)
	return nil
}

func newTestServer(t *testing.T) (*Server, *apiStub, storage.Store) {
	t.Helper()
	store, err := storage.Open(storage.Config{
		Driver: "file",
		Path:   filepath.Join(t.TempDir(), "kudobot"),
	}, logx.Nop())
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	api := &apiStub{}
	eng := engine.New(engine.Config{SelfAthleteID: 99}, store, api, logx.Nop(), nil, nil)

	sup := supervisor.New(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = sup.Stop(ctx)
	})

	srv := New(Config{VerifyToken: "secret"}, eng, sup, logx.Nop())
	return srv, api, store
}

func waitForQueue(t *testing.T, store storage.Store, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		size, _, err := store.PendingState(context.Background())
		if err != nil {
			t.Fatalf("pending state: %v", err)
		}
		if size == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("queue = %d, want %d", size, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebhookVerify(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestServer(t)
	h := srv.routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=secret&hub.challenge=abc123", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["hub.challenge"] != "abc123" {
		t.Fatalf("challenge = %q", body["hub.challenge"])
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=abc123", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d for bad token, want 403", rec.Code)
	}
}

func TestWebhookEventAckedAndProcessed(t *testing.T) {
	t.Parallel()
	srv, _, store := newTestServer(t)
	h := srv.routes()

	payload := `{"object_type":"activity","aspect_type":"create","object_id":123,"owner_id":5}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(payload)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	// Processing happens after the ack.
	waitForQueue(t, store, 1)
}

func TestWebhookEventBadPayload(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestServer(t)
	h := srv.routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{not json")))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestTrawlEndpoint(t *testing.T) {
	t.Parallel()
	srv, api, store := newTestServer(t)
	api.feed = []engine.FeedEntry{
		{ActivityID: 1, AthleteID: 5},
		{ActivityID: 2, AthleteID: 6},
	}
	h := srv.routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/trawl", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	waitForQueue(t, store, 2)
}

func TestFireEndpoint(t *testing.T) {
	t.Parallel()
	srv, api, store := newTestServer(t)
	if _, err := store.AddPending(context.Background(), []int64{1, 2, 3}, time.Now()); err != nil {
		t.Fatalf("add pending: %v", err)
	}
	h := srv.routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/fire", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var res engine.FlushResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Sent != 3 {
		t.Fatalf("sent = %d, want 3", res.Sent)
	}
	api.mu.Lock()
	sent := len(api.kudos)
	api.mu.Unlock()
	if sent != 3 {
		t.Fatalf("api sends = %d, want 3", sent)
	}
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()
	srv, _, store := newTestServer(t)
	if _, err := store.AddPending(context.Background(), []int64{1, 2}, time.Now()); err != nil {
		t.Fatalf("add pending: %v", err)
	}
	h := srv.routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var st engine.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.QueueSize != 2 {
		t.Fatalf("QueueSize = %d, want 2", st.QueueSize)
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestServer(t)
	h := srv.routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestDashboardRenders(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestServer(t)
	h := srv.routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "total kudos sent") {
		t.Fatal("dashboard missing expected content")
	}
}
