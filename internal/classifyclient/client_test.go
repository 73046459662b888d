package classifyclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"audiotox-go/internal/types"
)

func TestClassify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/predict" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"comment":"you idiot","label":"toxic","confidence":0.91}`))
	}))
	defer srv.Close()

	got, err := New(srv.URL+"/", time.Second).Classify(context.Background(), "you idiot")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	want := types.Verdict{Label: types.LabelToxic, Confidence: 0.91}
	if got != want {
		t.Fatalf("Classify() = %+v, want %+v", got, want)
	}
}

func TestClassifyErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "overloaded", status: http.StatusServiceUnavailable, body: "busy", want: types.ErrClassifierUnreachable},
		{name: "rate limited", status: http.StatusTooManyRequests, want: types.ErrClassifierUnreachable},
		{name: "bad gateway", status: http.StatusBadGateway, want: types.ErrClassifierUnreachable},
		{name: "gateway timeout", status: http.StatusGatewayTimeout, want: types.ErrClassifierUnreachable},
		{name: "model failure", status: http.StatusInternalServerError, body: "boom", want: types.ErrClassifierProtocol},
		{name: "bad request", status: http.StatusBadRequest, want: types.ErrClassifierProtocol},
		{name: "malformed json", status: http.StatusOK, body: "{", want: types.ErrClassifierProtocol},
		{name: "unknown label", status: http.StatusOK, body: `{"label":"spam","confidence":0.5}`, want: types.ErrClassifierProtocol},
		{name: "confidence out of range", status: http.StatusOK, body: `{"label":"toxic","confidence":1.5}`, want: types.ErrClassifierProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New(srv.URL, time.Second).Classify(context.Background(), "x")
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestClassifyUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := New(url, time.Second).Classify(context.Background(), "x")
	if !errors.Is(err, types.ErrClassifierUnreachable) {
		t.Fatalf("error = %v, want ErrClassifierUnreachable", err)
	}
	if !types.Retryable(err) {
		t.Fatal("unreachable classifier should be retryable")
	}
}

func TestClassifyTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := New(srv.URL, 50*time.Millisecond).Classify(context.Background(), "x")
	if !errors.Is(err, types.ErrClassifierUnreachable) {
		t.Fatalf("error = %v, want ErrClassifierUnreachable", err)
	}
}

func TestWaitReady(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	if err := New(srv.URL, time.Second).WaitReady(context.Background(), 10*time.Second); err != nil {
		t.Fatalf("WaitReady() error = %v", err)
	}
	if hits.Load() != 3 {
		t.Fatalf("pings = %d, want 3", hits.Load())
	}
}

func TestWaitReadyGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := New(srv.URL, time.Second).WaitReady(context.Background(), 300*time.Millisecond)
	if !errors.Is(err, types.ErrClassifierUnreachable) {
		t.Fatalf("error = %v, want ErrClassifierUnreachable", err)
	}
}
