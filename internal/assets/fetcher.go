// Package assets downloads the game's static asset libraries and keeps the
// derived tables the login and analytics payloads need.
package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
	"github.com/rs/zerolog"

	"github.com/sagereplay/sagereplay/internal/util"
)

// DefaultBaseURL is the asset library location used by the live client.
const DefaultBaseURL = "https://ns-assets.ninjasage.id/static/lib/"

// DefaultLibraryURL holds the item-level table.
const DefaultLibraryURL = DefaultBaseURL + "library.bin"

// maxAssetSize bounds a single download.
const maxAssetSize = 256 << 20

// AssetFetchError reports a failed asset download or decode.
type AssetFetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *AssetFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("asset %s: HTTP %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("asset %s: %v", e.URL, e.Err)
}

func (e *AssetFetchError) Unwrap() error {
	return e.Err
}

// Getter downloads raw asset bytes.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Fetcher downloads assets over HTTP.
type Fetcher struct {
	client *http.Client
	logger zerolog.Logger
}

// NewFetcher creates a Fetcher with a per-request timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 90 * time.Second,
			},
		},
		logger: util.ComponentLogger("assets"),
	}
}

// Get downloads url and returns the body bytes as served.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &AssetFetchError{URL: url, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &AssetFetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &AssetFetchError{URL: url, StatusCode: resp.StatusCode, Err: errors.New(resp.Status)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetSize+1))
	if err != nil {
		return nil, &AssetFetchError{URL: url, Err: fmt.Errorf("reading body: %w", err)}
	}
	if len(data) > maxAssetSize {
		return nil, &AssetFetchError{URL: url, Err: fmt.Errorf("asset exceeds %d bytes", maxAssetSize)}
	}

	f.logger.Debug().
		Str("url", url).
		Int("bytes", len(data)).
		Dur("took", time.Since(start)).
		Msg("asset downloaded")
	return data, nil
}

// Inflate decompresses a zlib stream, falling back to raw deflate for
// assets stored without the zlib header.
func Inflate(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err == nil {
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err == nil {
			return out, nil
		}
	}

	fr := flate.NewReader(bytes.NewReader(data))
	defer fr.Close()
	out, ferr := io.ReadAll(fr)
	if ferr != nil {
		return nil, fmt.Errorf("inflating asset: %w", ferr)
	}
	return out, nil
}
