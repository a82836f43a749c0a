package rankings

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSnapshotURL(t *testing.T) {
	c := NewClient(Options{BaseURL: "https://example.github.io/pythonMusic/"})

	tests := []struct {
		name     string
		board    string
		category string
		date     string
		want     string
	}{
		{
			name:     "apple country",
			board:    "apple",
			category: "global",
			date:     "2025-01-01",
			want:     "https://example.github.io/pythonMusic/apple/global/globalTop100_2025-01-01.json",
		},
		{
			name:     "korea platform",
			board:    "korea",
			category: "melon",
			date:     "2025-02-14",
			want:     "https://example.github.io/pythonMusic/korea/melon/melonTop100_2025-02-14.json",
		},
		{
			name:     "path characters are escaped",
			board:    "korea",
			category: "melon",
			date:     "../x",
			want:     "https://example.github.io/pythonMusic/korea/melon/melonTop100_..%2Fx.json",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.SnapshotURL(tt.board, tt.category, tt.date); got != tt.want {
				t.Errorf("SnapshotURL() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/korea/melon/melonTop100_2025-01-01.json" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"ranking":1,"title":"A","artist":"B","image":"u","youtubeID":"yt1"},
			{"ranking":2,"title":"C","artist":"D","image":"v","youtubeID":""}
		]`))
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL})
	entries, err := c.Fetch(context.Background(), "korea", "melon", "2025-01-01")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].Ranking != 1 || entries[0].Title != "A" || entries[0].YoutubeID != "yt1" {
		t.Errorf("entries[0] = %+v", entries[0])
	}
	if entries[1].IsPlayable() {
		t.Error("entry without youtubeID should not be playable")
	}
}

func TestFetchFailures(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus bool
	}{
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.NotFound(w, r)
			},
			wantStatus: true,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			wantStatus: true,
		},
		{
			name: "malformed json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`[{"ranking":1,`))
			},
		},
		{
			name: "object instead of array",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"ranking":1}`))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := NewClient(Options{BaseURL: srv.URL})
			entries, err := c.Fetch(context.Background(), "apple", "global", "2025-01-01")
			if err == nil {
				t.Fatalf("Fetch() = %v, want error", entries)
			}
			if !errors.Is(err, ErrFetchFailed) {
				t.Errorf("error %v does not match ErrFetchFailed", err)
			}
			if got := IsStatusFailure(err); got != tt.wantStatus {
				t.Errorf("IsStatusFailure() = %v, want %v", got, tt.wantStatus)
			}
		})
	}
}

func TestFetchTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	c := NewClient(Options{BaseURL: base, Timeout: time.Second})
	_, err := c.Fetch(context.Background(), "apple", "global", "2025-01-01")
	if !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("error = %v, want ErrFetchFailed", err)
	}
	if IsStatusFailure(err) {
		t.Error("transport failure reported as status failure")
	}

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("error %T is not a *FetchError", err)
	}
	if cause := fe.Cause(); cause == "" || strings.Contains(cause, base) {
		t.Errorf("Cause() = %q, want a message without the snapshot URL", cause)
	}
}

func TestFetchErrorCause(t *testing.T) {
	tests := []struct {
		name string
		err  *FetchError
		want string
	}{
		{"status", &FetchError{URL: "http://x/a.json", StatusCode: 404}, "HTTP 404"},
		{"wrapped", &FetchError{URL: "http://x/a.json", Err: fmt.Errorf("failed to decode snapshot: %w", errors.New("unexpected EOF"))}, "unexpected EOF"},
		{"bare", &FetchError{URL: "http://x/a.json", Err: errors.New("rate: Wait(n=1) would exceed context deadline")}, "rate: Wait(n=1) would exceed context deadline"},
		{"empty", &FetchError{URL: "http://x/a.json"}, "snapshot fetch failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Cause(); got != tt.want {
				t.Errorf("Cause() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFetchEmptyArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	entries, err := NewClient(Options{BaseURL: srv.URL}).Fetch(context.Background(), "apple", "usa", "2025-01-01")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if entries == nil || len(entries) != 0 {
		t.Errorf("entries = %#v, want empty non-nil slice", entries)
	}
}

func TestFetchCoalescesConcurrentRequests(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		w.Write([]byte(`[{"ranking":1,"title":"A","artist":"B","image":"u","youtubeID":"yt1"}]`))
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL})

	var wg sync.WaitGroup
	results := make([]int, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entries, err := c.Fetch(context.Background(), "korea", "genie", "2025-01-01")
			if err == nil {
				results[i] = len(entries)
			}
		}(i)
	}

	// let every caller join the in-flight request before answering
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := hits.Load(); got != 1 {
		t.Errorf("upstream hits = %d, want 1", got)
	}
	for i, n := range results {
		if n != 1 {
			t.Errorf("caller %d got %d entries, want 1", i, n)
		}
	}
}

func TestFetchCallerCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(Options{BaseURL: srv.URL})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := c.Fetch(ctx, "apple", "japan", "2025-01-01")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if !errors.Is(err, ErrFetchFailed) {
		t.Errorf("error = %v, want ErrFetchFailed", err)
	}
}
