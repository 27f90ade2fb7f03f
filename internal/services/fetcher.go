package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bobarin/shortform/internal/apperr"
)

// HTTPDoer is the transport the fetcher issues requests through.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ResourceFetcher retrieves a remote binary resource within a timeout.
type ResourceFetcher interface {
	Fetch(ctx context.Context, url string, timeout time.Duration) ([]byte, error)
}

// Fetcher downloads remote audio and video resources. Every call is bounded by a
// caller-supplied timeout that cancels the in-flight request when it fires.
// Fetcher never retries.
type Fetcher struct {
	client HTTPDoer
}

// NewFetcher creates a fetcher. A nil client uses a pooled http.Client with no
// client-level timeout; the per-call timeout governs instead.
func NewFetcher(client HTTPDoer) *Fetcher {
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &Fetcher{client: client}
}

// Fetch GETs url and returns the body. Failures are *apperr.Error values of kind
// download with cause timeout, http-status or network.
func (f *Fetcher) Fetch(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperr.Download(apperr.CauseNetwork, fmt.Sprintf("invalid download url %q", url), err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classifyFetchError(ctx, fetchCtx, url, timeout, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, apperr.DownloadStatus(url, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyFetchError(ctx, fetchCtx, url, timeout, err)
	}

	return data, nil
}

// classifyFetchError separates our own timer firing from every other transport failure,
// including cancellation of the caller's context.
func classifyFetchError(parent, fetchCtx context.Context, url string, timeout time.Duration, err error) error {
	if parent.Err() == nil && errors.Is(fetchCtx.Err(), context.DeadlineExceeded) {
		return apperr.Download(apperr.CauseTimeout,
			fmt.Sprintf("download of %s timed out after %dms", url, timeout.Milliseconds()), err)
	}
	return apperr.Download(apperr.CauseNetwork, fmt.Sprintf("download of %s failed", url), err)
}
