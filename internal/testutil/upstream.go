package testutil

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/ekifun/esrgan-super-resolution-golang/internal/topic"
)

// HelloFrame is the first frame the consumer server writes on every stream.
const HelloFrame = "data: {\"type\":\"info\",\"message\":\"connected\"}\n\n"

// FakeUpstream serves the producer and consumer endpoints from two
// httptest servers, the way the real deployment splits them across ports.
//
// Thread-safety: all methods are safe for concurrent use.
type FakeUpstream struct {
	t      testing.TB
	api    *httptest.Server
	events *httptest.Server

	mu           sync.Mutex
	statusCode   int
	statusBody   string
	statusCalls  int
	historyBody  string
	submitStatus int
	hold         chan struct{}
	submits      []topic.SubmitRequest
	clients      map[chan string]struct{}
	connects     int
	drop         chan struct{}

	shutdown chan struct{}
}

// NewFakeUpstream starts both servers and stops them when the test ends.
//
// The status endpoint starts out empty and every submit succeeds.
func NewFakeUpstream(t testing.TB) *FakeUpstream {
	t.Helper()
	f := &FakeUpstream{
		t:            t,
		statusCode:   http.StatusOK,
		statusBody:   `{"processed":[],"processing":[]}`,
		historyBody:  `null`,
		submitStatus: http.StatusOK,
		clients:      make(map[chan string]struct{}),
		drop:         make(chan struct{}),
		shutdown:     make(chan struct{}),
	}

	api := chi.NewRouter()
	api.Use(middleware.Recoverer)
	api.Get("/get-status", f.handleStatus)
	api.Get("/get-super-resolution-images", f.handleHistory)
	api.Post("/submit-topic", f.handleSubmit)
	api.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})

	events := chi.NewRouter()
	events.Use(middleware.Recoverer)
	events.Get("/events", f.handleEvents)

	f.api = httptest.NewServer(api)
	f.events = httptest.NewServer(events)

	t.Cleanup(func() {
		// Streams only end when told to; release them before Close waits.
		close(f.shutdown)
		f.mu.Lock()
		if f.hold != nil {
			close(f.hold)
			f.hold = nil
		}
		f.mu.Unlock()
		f.events.Close()
		f.api.Close()
	})
	return f
}

// APIURL is the producer base URL.
func (f *FakeUpstream) APIURL() string { return f.api.URL }

// EventsURL is the full event stream URL.
func (f *FakeUpstream) EventsURL() string { return f.events.URL + "/events" }

// SetStatus sets the body served by the status endpoint.
func (f *FakeUpstream) SetStatus(body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCode = http.StatusOK
	f.statusBody = body
}

// FailStatus makes the status endpoint answer with code until the next
// SetStatus.
func (f *FakeUpstream) FailStatus(code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCode = code
}

// StatusCalls returns how many times the status endpoint was fetched.
func (f *FakeUpstream) StatusCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls
}

// SetHistory sets the body served by the history endpoint.
func (f *FakeUpstream) SetHistory(body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyBody = body
}

// SetSubmitStatus sets the status code returned for submissions.
func (f *FakeUpstream) SetSubmitStatus(code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitStatus = code
}

// HoldSubmits makes submissions wait until release is called.
func (f *FakeUpstream) HoldSubmits() (release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	hold := make(chan struct{})
	f.hold = hold
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			if f.hold == hold {
				close(hold)
				f.hold = nil
			}
			f.mu.Unlock()
		})
	}
}

// Submits returns the submissions received so far.
func (f *FakeUpstream) Submits() []topic.SubmitRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]topic.SubmitRequest(nil), f.submits...)
}

// Send broadcasts payload as one data frame. Strings and byte slices are
// sent verbatim; anything else is JSON-encoded.
func (f *FakeUpstream) Send(payload any) {
	f.t.Helper()
	var data string
	switch p := payload.(type) {
	case string:
		data = p
	case []byte:
		data = string(p)
	default:
		b, err := json.Marshal(p)
		require.NoError(f.t, err)
		data = string(b)
	}
	f.SendRaw(fmt.Sprintf("data: %s\n\n", data))
}

// SendRaw broadcasts frame exactly as given.
func (f *FakeUpstream) SendRaw(frame string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.clients {
		select {
		case ch <- frame:
		default:
			f.t.Logf("fake upstream: dropping frame for slow client")
		}
	}
}

// Clients returns the number of open streams.
func (f *FakeUpstream) Clients() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// Connects returns how many streams were ever opened.
func (f *FakeUpstream) Connects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

// WaitForClients blocks until at least n streams are open.
func (f *FakeUpstream) WaitForClients(n int) {
	f.t.Helper()
	require.Eventually(f.t, func() bool { return f.Clients() >= n },
		5*time.Second, 5*time.Millisecond, "expected %d stream client(s)", n)
}

// DropClients ends every open stream. Clients see EOF.
func (f *FakeUpstream) DropClients() {
	f.mu.Lock()
	defer f.mu.Unlock()
	close(f.drop)
	f.drop = make(chan struct{})
}

func (f *FakeUpstream) handleStatus(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	code, body := f.statusCode, f.statusBody
	f.statusCalls++
	f.mu.Unlock()

	if code != http.StatusOK {
		http.Error(w, "Error fetching processed tasks", code)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, body)
}

func (f *FakeUpstream) handleHistory(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	body := f.historyBody
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, body)
}

func (f *FakeUpstream) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req topic.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.submits = append(f.submits, req)
	hold := f.hold
	f.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-r.Context().Done():
			return
		}
	}

	f.mu.Lock()
	code := f.submitStatus
	f.mu.Unlock()

	if code != http.StatusOK {
		http.Error(w, "Failed to submit task", code)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"message":"Task submitted successfully"}`)
}

func (f *FakeUpstream) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, HelloFrame)
	flusher.Flush()

	ch := make(chan string, 64)
	f.mu.Lock()
	f.clients[ch] = struct{}{}
	f.connects++
	drop := f.drop
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		delete(f.clients, ch)
		f.mu.Unlock()
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-f.shutdown:
			return
		case <-drop:
			return
		case frame := <-ch:
			if _, err := io.WriteString(w, frame); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
