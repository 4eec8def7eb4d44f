// Package connector implements the HTTP transport for the game's AMF
// remoting gateway.
package connector

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/rs/zerolog"

	"github.com/sagereplay/sagereplay/internal/protocol"
	"github.com/sagereplay/sagereplay/internal/util"
)

const (
	DefaultBaseURL      = "https://play.ninjasage.id"
	DefaultEndpointPath = "/amf"
	DefaultTimeout      = 20 * time.Second

	referer      = "app:/NinjaSage.swf"
	userAgent    = "Mozilla/5.0 (Windows; U; en) AppleWebKit/533.19.4 (KHTML, like Gecko) AdobeAIR/51.1"
	flashVersion = "51,1,3,10"
	contentType  = "application/x-amf"
	accept       = "text/xml, application/xml, application/xhtml+xml, text/html;q=0.9, text/plain;q=0.8, " +
		"text/css, image/png, image/jpeg, image/gif;q=0.8, application/x-shockwave-flash, " +
		"video/mp4;q=0.9, flv-application/octet-stream;q=0.8, video/x-flv;q=0.7, audio/mp4, " +
		"application/futuresplash, */*;q=0.5, application/x-mpegURL"

	maxResponseSize = 64 << 20
)

// Options configures an AMFClient.
type Options struct {
	BaseURL            string
	EndpointPath       string
	Timeout            time.Duration
	InsecureSkipVerify bool
	// Headers override or extend the default header set.
	Headers map[string]string
}

// Stats counts traffic through a client.
type Stats struct {
	Calls     int64 `json:"calls"`
	BytesSent int64 `json:"bytes_sent"`
	BytesRecv int64 `json:"bytes_received"`
}

// AMFClient posts single-call envelopes to the remoting endpoint. It is
// safe for concurrent use; each call blocks until response or timeout.
type AMFClient struct {
	endpoint string
	host     string
	headers  map[string]string
	client   *http.Client
	logger   zerolog.Logger

	calls     atomic.Int64
	bytesSent atomic.Int64
	bytesRecv atomic.Int64
}

// NewAMFClient validates the base URL and builds the client.
func NewAMFClient(opts Options) (*AMFClient, error) {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", opts.BaseURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url %q: scheme must be http or https", opts.BaseURL)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: missing host", opts.BaseURL)
	}

	path := opts.EndpointPath
	if path == "" {
		path = DefaultEndpointPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	headers := map[string]string{
		"Referer":         referer,
		"Accept":          accept,
		"x-flash-version": flashVersion,
		"Content-Type":    contentType,
		"User-Agent":      userAgent,
		"Accept-Encoding": "gzip,deflate",
		"Connection":      "keep-alive",
	}
	for k, v := range opts.Headers {
		headers[k] = v
	}

	return &AMFClient{
		endpoint: base + path,
		host:     parsed.Host,
		headers:  headers,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:              http.ProxyFromEnvironment,
				MaxIdleConns:       10,
				IdleConnTimeout:    90 * time.Second,
				DisableCompression: true,
				TLSClientConfig:    &tls.Config{InsecureSkipVerify: opts.InsecureSkipVerify},
			},
		},
		logger: util.ComponentLogger("amf_client"),
	}, nil
}

// Endpoint returns the full gateway URL.
func (c *AMFClient) Endpoint() string {
	return c.endpoint
}

// Stats returns a snapshot of the traffic counters.
func (c *AMFClient) Stats() Stats {
	return Stats{
		Calls:     c.calls.Load(),
		BytesSent: c.bytesSent.Load(),
		BytesRecv: c.bytesRecv.Load(),
	}
}

// Invoke encodes target(args...) under response path "/1", posts it and
// returns the decoded response body.
func (c *AMFClient) Invoke(ctx context.Context, target string, args []any) (protocol.Value, error) {
	payload, err := protocol.EncodeRequest(target, args, protocol.DefaultResponsePath)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", target, err)
	}

	env, err := c.Send(ctx, target, payload)
	if err != nil {
		return nil, err
	}

	msg, ok := env.Get(protocol.DefaultResponsePath)
	if !ok {
		if env.Len() == 0 {
			return nil, nil
		}
		msg = env.Messages[0]
	}
	if msg.Status == protocol.StatusFault {
		return nil, newRemoteFault(target, msg.Body)
	}
	return msg.Body, nil
}

// Send posts an already encoded envelope and decodes the reply.
func (c *AMFClient) Send(ctx context.Context, target string, payload []byte) (*protocol.Envelope, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &TransportError{Target: target, URL: c.endpoint, Err: err}
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	req.Host = c.host

	c.calls.Add(1)
	c.bytesSent.Add(int64(len(payload)))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransportError{Target: target, URL: c.endpoint, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, &TransportError{Target: target, URL: c.endpoint, StatusCode: resp.StatusCode, Err: fmt.Errorf("reading body: %w", err)}
	}
	if len(raw) > maxResponseSize {
		return nil, &TransportError{Target: target, URL: c.endpoint, StatusCode: resp.StatusCode, Err: fmt.Errorf("response exceeds %d bytes", maxResponseSize)}
	}
	c.bytesRecv.Add(int64(len(raw)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{Target: target, URL: c.endpoint, StatusCode: resp.StatusCode, Err: errors.New(resp.Status)}
	}

	body, err := decodeContent(resp.Header.Get("Content-Encoding"), raw)
	if err != nil {
		return nil, &TransportError{Target: target, URL: c.endpoint, StatusCode: resp.StatusCode, Err: err}
	}

	env, err := protocol.DecodeResponse(body)
	if err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", target, err)
	}

	c.logger.Debug().
		Str("target", target).
		Int("status", resp.StatusCode).
		Int("sent", len(payload)).
		Int("received", len(raw)).
		Dur("took", time.Since(start)).
		Msg("amf call")

	return env, nil
}

// decodeContent undoes the Content-Encoding the gateway applied.
func decodeContent(encoding string, raw []byte) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return raw, nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("gzip response: %w", err)
		}
		defer zr.Close()
		return readLimited(zr)
	case "deflate":
		// Servers disagree on whether deflate means zlib-wrapped or raw.
		if zr, err := zlib.NewReader(bytes.NewReader(raw)); err == nil {
			defer zr.Close()
			return readLimited(zr)
		}
		fr := flate.NewReader(bytes.NewReader(raw))
		defer fr.Close()
		return readLimited(fr)
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}

func readLimited(r io.Reader) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(r, maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("decompressing response: %w", err)
	}
	if len(out) > maxResponseSize {
		return nil, fmt.Errorf("decompressed response exceeds %d bytes", maxResponseSize)
	}
	return out, nil
}

// DecodeFile decodes a captured envelope from disk.
func DecodeFile(path string) (*protocol.Envelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	env, err := protocol.DecodeResponse(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return env, nil
}
