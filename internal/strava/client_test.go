package strava

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	logx "kudobot/pkg/logx"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{AccessToken: "test-token", BaseURL: srv.URL}, logx.Nop())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestRelatedActivities(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/activities/500/related" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("auth header = %q", got)
		}
		w.Write([]byte(`[{"id": 10}, {"id": 11}]`))
	}))

	ids, err := c.RelatedActivities(context.Background(), 500)
	if err != nil {
		t.Fatalf("related: %v", err)
	}
	if len(ids) != 2 || ids[0] != 10 || ids[1] != 11 {
		t.Fatalf("ids = %v, want [10 11]", ids)
	}
}

func TestFollowingFeed(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/activities/following" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("per_page"); got != "50" {
			t.Errorf("per_page = %q", got)
		}
		w.Write([]byte(`[
			{"id": 100, "athlete": {"id": 7}},
			{"id": 101, "athlete": {"id": 8}}
		]`))
	}))

	feed, err := c.FollowingFeed(context.Background())
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(feed) != 2 {
		t.Fatalf("feed = %v", feed)
	}
	if feed[0].ActivityID != 100 || feed[0].AthleteID != 7 {
		t.Fatalf("entry = %+v", feed[0])
	}
}

func TestGiveKudos(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	var posted []string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		mu.Lock()
		posted = append(posted, r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}))

	if err := c.GiveKudos(context.Background(), 42); err != nil {
		t.Fatalf("kudos: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(posted) != 1 || posted[0] != "/activities/42/kudos" {
		t.Fatalf("posted = %v", posted)
	}
}

func TestUnauthorizedWrapsErrAuth(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Authorization Error"}`, http.StatusUnauthorized)
	}))

	err := c.GiveKudos(context.Background(), 42)
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("err = %v, want ErrAuth", err)
	}
	_, err = c.FollowingFeed(context.Background())
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("feed err = %v, want ErrAuth", err)
	}
}

func TestServerErrorIsAPIError(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "flaky", http.StatusInternalServerError)
	}))

	err := c.GiveKudos(context.Background(), 42)
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %T, want *APIError", err)
	}
	if apiErr.Status != http.StatusInternalServerError {
		t.Fatalf("status = %d", apiErr.Status)
	}
	if errors.Is(err, ErrAuth) {
		t.Fatal("5xx must not map to ErrAuth")
	}
}

func TestMissingCredentialsRejected(t *testing.T) {
	t.Parallel()
	_, err := New(Config{}, logx.Nop())
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("err = %v, want ErrAuth", err)
	}
}

func TestEnsureAuthStaticToken(t *testing.T) {
	t.Parallel()
	c, err := New(Config{AccessToken: "tok"}, logx.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := c.EnsureAuth(context.Background()); err != nil {
		t.Fatalf("ensure auth: %v", err)
	}
}
