// Package media retrieves reddit-hosted video into bounded temp files.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Acquisition failure kinds the caller can branch on with errors.Is.
var (
	ErrTooLarge = errors.New("media: exceeds size budget")
	ErrTimeout  = errors.New("media: exceeds time budget")
)

// File is one acquired media resource. Release must be called once the
// file has been consumed or abandoned; nothing acquired outlives a cycle step.
type File struct {
	Path string
	Size int64
}

// Release deletes the underlying temp file. Safe to call more than once.
func (f *File) Release() {
	if f == nil || f.Path == "" {
		return
	}
	_ = os.Remove(f.Path)
	f.Path = ""
}

// Fetcher downloads media within a size and time budget.
type Fetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
	timeout   time.Duration
	dir       string // temp dir; empty means the OS default
}

// NewFetcher creates a media fetcher. maxBytes and timeout must be positive.
func NewFetcher(userAgent string, maxBytes int64, timeout time.Duration, dir string) (*Fetcher, error) {
	if maxBytes <= 0 {
		return nil, errors.New("media: max size must be positive")
	}
	if timeout <= 0 {
		return nil, errors.New("media: timeout must be positive")
	}
	return &Fetcher{
		client:    &http.Client{},
		userAgent: userAgent,
		maxBytes:  maxBytes,
		timeout:   timeout,
		dir:       dir,
	}, nil
}

// Acquire fetches the resource at url into a temp file. It fails fast with
// ErrTooLarge when the size budget is breached and ErrTimeout when the time
// budget is. The caller owns the returned file and must Release it.
func (f *Fetcher) Acquire(ctx context.Context, url string) (*File, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("media: url is required")
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, f.wrapErr(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch media: status %d", resp.StatusCode)
	}
	if resp.ContentLength > f.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, resp.ContentLength)
	}

	tmp, err := os.CreateTemp(f.dir, "relaypan-*.mp4")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	// Copy one byte past the budget so an unreported oversize body is caught.
	n, err := io.Copy(tmp, io.LimitReader(resp.Body, f.maxBytes+1))
	closeErr := tmp.Close()
	if err != nil {
		_ = os.Remove(tmp.Name())
		return nil, f.wrapErr(ctx, err)
	}
	if closeErr != nil {
		_ = os.Remove(tmp.Name())
		return nil, fmt.Errorf("close temp file: %w", closeErr)
	}
	if n > f.maxBytes {
		_ = os.Remove(tmp.Name())
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.maxBytes)
	}

	return &File{Path: tmp.Name(), Size: n}, nil
}

func (f *Fetcher) wrapErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || os.IsTimeout(err) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("fetch media: %w", err)
}
