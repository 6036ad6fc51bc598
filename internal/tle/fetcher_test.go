package tle

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

const (
	issTLE      = "ISS (ZARYA)\n1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005\n2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09\n"
	starlinkTLE = "STARLINK-1007\n1 44713U 19074A   24100.50000000  .00001000  00000-0  10000-4 0  9995\n2 44713  53.0000 200.0000 0001500  90.0000 270.0000 15.06000000    05\n"
)

func serveText(body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
}

func serveStatus(code int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
	}))
}

// TestFetcherBodyLimit verifies that oversized catalog responses are rejected
// instead of being read into memory.
func TestFetcherBodyLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		chunk := []byte(strings.Repeat("A", 1<<20))
		for i := 0; i < 52; i++ {
			if _, err := w.Write(chunk); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	_, err := NewFetcher(server.URL, testLogger).Fetch(context.Background())
	if err == nil {
		t.Fatal("expected error for oversized response, got nil")
	}
	if !strings.Contains(err.Error(), "byte limit") {
		t.Errorf("expected body limit error, got: %v", err)
	}
}

func TestFetcherSources(t *testing.T) {
	primary := serveText(starlinkTLE)
	defer primary.Close()
	extra := serveText(issTLE)
	defer extra.Close()
	failing := serveStatus(http.StatusInternalServerError)
	defer failing.Close()

	tests := []struct {
		name    string
		primary string
		extras  []string
		wantIDs []int
		wantErr bool
	}{
		{"primary only", primary.URL, nil, []int{44713}, false},
		{"extra appended", primary.URL, []string{extra.URL}, []int{44713, 25544}, false},
		{"failing extra ignored", primary.URL, []string{failing.URL}, []int{44713}, false},
		{"failing primary", failing.URL, []string{extra.URL}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := NewFetcher(tt.primary, testLogger, tt.extras...).Fetch(context.Background())
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			entries, err := Parse(strings.NewReader(string(data)), testLogger)
			if err != nil {
				t.Fatalf("parse error: %v", err)
			}
			if len(entries) != len(tt.wantIDs) {
				t.Fatalf("got %d entries, want %d", len(entries), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if entries[i].NORADID != id {
					t.Errorf("entry %d: got NORAD %d, want %d", i, entries[i].NORADID, id)
				}
			}
		})
	}
}

func TestFetcherExtraWithoutTrailingNewline(t *testing.T) {
	primary := serveText(strings.TrimSuffix(starlinkTLE, "\n"))
	defer primary.Close()
	extra := serveText(issTLE)
	defer extra.Close()

	data, err := NewFetcher(primary.URL, testLogger, extra.URL).Fetch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entries, _ := Parse(strings.NewReader(string(data)), testLogger)
	if len(entries) != 2 {
		t.Errorf("got %d entries, want 2", len(entries))
	}
}
