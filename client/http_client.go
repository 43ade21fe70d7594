package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdmime "mime"
	"net/http"
	"time"

	"thermal-render/mime"
	"thermal-render/pool"
)

var httpClient *http.Client

var (
	// ErrTooLarge is returned when a remote matrix file exceeds the size limit.
	ErrTooLarge = errors.New("matrix file exceeds size limit")
	// ErrContentType is returned when the remote does not serve a matrix file.
	ErrContentType = errors.New("content type is not a matrix file")
)

func init() {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	httpClient = &http.Client{
		Transport: transport,
		Timeout:   30 * time.Second,
	}
}

// StatusError reports a non-2xx answer from the remote.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: remote answered %d", e.URL, e.StatusCode)
}

// FetchMatrix downloads a matrix file of at most maxBytes bytes. A missing
// Content-Type is accepted, a non-matrix one is not.
func FetchMatrix(ctx context.Context, url string, maxBytes int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		parsed, _, err := stdmime.ParseMediaType(ct)
		if err != nil || !mime.IsMatrixMime(parsed) {
			return nil, fmt.Errorf("%w: %q", ErrContentType, ct)
		}
	}

	if maxBytes > 0 && resp.ContentLength > maxBytes {
		return nil, ErrTooLarge
	}

	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	r := io.Reader(resp.Body)
	if maxBytes > 0 {
		r = io.LimitReader(resp.Body, maxBytes+1)
	}
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	if maxBytes > 0 && int64(buf.Len()) > maxBytes {
		return nil, ErrTooLarge
	}
	return pool.Bytes(buf), nil
}
