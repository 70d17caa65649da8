package media

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"
)

func newTestFetcher(t *testing.T, maxBytes int64, timeout time.Duration) *Fetcher {
	t.Helper()
	f, err := NewFetcher("test/1.0", maxBytes, timeout, t.TempDir())
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	return f
}

func TestNewFetcher_Invalid(t *testing.T) {
	if _, err := NewFetcher("test/1.0", 0, time.Second, ""); err == nil {
		t.Error("expected error for zero max size")
	}
	if _, err := NewFetcher("test/1.0", 1, 0, ""); err == nil {
		t.Error("expected error for zero timeout")
	}
}

func TestAcquire_Success(t *testing.T) {
	body := strings.Repeat("v", 1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "test/1.0" {
			t.Errorf("user-agent = %q, want test/1.0", got)
		}
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	f := newTestFetcher(t, 4096, 5*time.Second)
	file, err := f.Acquire(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer file.Release()

	if file.Size != int64(len(body)) {
		t.Errorf("size = %d, want %d", file.Size, len(body))
	}

	data, err := os.ReadFile(file.Path)
	if err != nil {
		t.Fatalf("read acquired file: %v", err)
	}
	if string(data) != body {
		t.Error("acquired bytes do not match served bytes")
	}
}

func TestAcquire_TooLargeByContentLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000000")
		_, _ = w.Write(make([]byte, 1000000))
	}))
	defer srv.Close()

	f := newTestFetcher(t, 1024, 5*time.Second)
	_, err := f.Acquire(context.Background(), srv.URL)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("error = %v, want ErrTooLarge", err)
	}
}

func TestAcquire_TooLargeByBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Chunked response, no Content-Length advertised.
		for i := 0; i < 64; i++ {
			_, _ = w.Write(make([]byte, 128))
		}
	}))
	defer srv.Close()

	f := newTestFetcher(t, 1024, 5*time.Second)
	_, err := f.Acquire(context.Background(), srv.URL)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("error = %v, want ErrTooLarge", err)
	}
}

func TestAcquire_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	f := newTestFetcher(t, 1024, 50*time.Millisecond)
	_, err := f.Acquire(context.Background(), srv.URL)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
}

func TestAcquire_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := newTestFetcher(t, 1024, 5*time.Second)
	_, err := f.Acquire(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if errors.Is(err, ErrTooLarge) || errors.Is(err, ErrTimeout) {
		t.Errorf("status error must not map to a budget kind, got %v", err)
	}
}

func TestRelease(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("data"))
	}))
	defer srv.Close()

	f := newTestFetcher(t, 1024, 5*time.Second)
	file, err := f.Acquire(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	path := file.Path
	file.Release()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("release must delete the temp file")
	}

	// Double release is harmless.
	file.Release()
}
