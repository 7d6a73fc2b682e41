// Package upstream is the HTTP client for the upscaling servers.
//
// The producer server serves the snapshot (GET /get-status), accepts
// submissions (POST /submit-topic), and lists finished jobs
// (GET /get-super-resolution-images). The consumer server pushes
// incremental events on a server-sent event stream.
//
// Every failure surfaces as a TRANSPORT_FAILURE topic.Error.
package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ekifun/esrgan-super-resolution-golang/internal/topic"
)

// Server paths.
const (
	PathStatus  = "/get-status"
	PathSubmit  = "/submit-topic"
	PathHistory = "/get-super-resolution-images"
)

// DefaultTimeout bounds request/response calls when no timeout is set.
const DefaultTimeout = 10 * time.Second

// maxErrorBody caps how much of an error response is quoted in errors.
const maxErrorBody = 512

// Client talks to the producer and consumer servers.
type Client struct {
	apiURL    string
	eventsURL string
	http      *http.Client
	stream    *http.Client
	log       *zap.SugaredLogger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the client used for request/response calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithStreamClient replaces the client used for the event stream. It should
// have no overall timeout.
func WithStreamClient(hc *http.Client) Option {
	return func(c *Client) { c.stream = hc }
}

// WithTimeout sets the timeout of request/response calls.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http = &http.Client{Timeout: d}
	}
}

// WithLogger sets the client's logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Client) { c.log = l }
}

// New creates a client. apiURL is the producer base URL; eventsURL is the
// full URL of the event stream.
func New(apiURL, eventsURL string, opts ...Option) *Client {
	c := &Client{
		apiURL:    strings.TrimRight(apiURL, "/"),
		eventsURL: eventsURL,
		http:      &http.Client{Timeout: DefaultTimeout},
		stream:    &http.Client{},
		log:       zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EventsURL returns the stream URL.
func (c *Client) EventsURL() string {
	return c.eventsURL
}

// RawSnapshot is the status response with records left undecoded. Each
// record still has to go through topic.NormalizeJobRecord.
type RawSnapshot struct {
	Processed  []json.RawMessage `json:"processed"`
	Processing []json.RawMessage `json:"processing"`
}

// Status fetches the full current state.
func (c *Client) Status(ctx context.Context) (RawSnapshot, error) {
	var snap RawSnapshot
	if err := c.getJSON(ctx, PathStatus, &snap); err != nil {
		return RawSnapshot{}, err
	}
	return snap, nil
}

// History fetches the most recent completed jobs, newest first. Records
// that cannot be normalized are skipped.
func (c *Client) History(ctx context.Context) ([]topic.Job, error) {
	var raw []json.RawMessage
	if err := c.getJSON(ctx, PathHistory, &raw); err != nil {
		return nil, err
	}

	jobs := make([]topic.Job, 0, len(raw))
	for i, r := range raw {
		job, err := topic.NormalizeJobRecord(r)
		if err != nil {
			c.log.Warnw("skipping history record", "index", i, "error", err)
			continue
		}
		job.Progress = 0
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Submit asks the producer to start a job. Any non-2xx status is a failure.
func (c *Client) Submit(ctx context.Context, req topic.SubmitRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return topic.NewTransportFailure("encode submit request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+PathSubmit, bytes.NewReader(body))
	if err != nil {
		return topic.NewTransportFailure("build submit request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return topic.NewTransportFailure("submit topic", err)
	}
	defer drainClose(resp.Body)

	if err := checkStatus(resp, http.MethodPost, PathSubmit); err != nil {
		return err
	}
	c.log.Debugw("submit accepted", "name", req.TopicName)
	return nil
}

// OpenEvents connects to the event stream and returns its body. The caller
// owns the body and must close it; closing it ends the connection.
//
// The request is bound to ctx, so cancelling ctx also closes the stream.
func (c *Client) OpenEvents(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.eventsURL, nil)
	if err != nil {
		return nil, topic.NewTransportFailure("build events request", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, topic.NewTransportFailure("connect to event stream", err)
	}
	if err := checkStatus(resp, http.MethodGet, req.URL.Path); err != nil {
		drainClose(resp.Body)
		return nil, err
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		c.log.Warnw("event stream has unexpected content type", "contentType", ct)
	}
	return resp.Body, nil
}

func (c *Client) getJSON(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+path, nil)
	if err != nil {
		return topic.NewTransportFailure("build request "+path, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return topic.NewTransportFailure("GET "+path, err)
	}
	defer drainClose(resp.Body)

	if err := checkStatus(resp, http.MethodGet, path); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return topic.NewTransportFailure("decode "+path+" response", err)
	}
	return nil
}

func checkStatus(resp *http.Response, method, path string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := fmt.Sprintf("%s %s: status %d", method, path, resp.StatusCode)
	if s := strings.TrimSpace(string(snippet)); s != "" {
		msg += ": " + s
	}
	return topic.NewTransportFailure(msg, nil)
}

func drainClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}
