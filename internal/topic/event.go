package topic

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// EventKind is the discriminator of a stream message.
type EventKind string

const (
	// EventProgress reports a job's progress.
	EventProgress EventKind = "progress"

	// EventComplete reports a finished job and its result URL.
	EventComplete EventKind = "complete"

	// EventInfo is the server's connection hello frame. It carries no job
	// and is ignored by the store.
	EventInfo EventKind = "info"
)

// Event is one incremental update for a single job.
type Event struct {
	Kind      EventKind `json:"type"`
	Name      string    `json:"topic_id,omitempty"`
	Progress  int       `json:"progress,omitempty"`
	SourceURL string    `json:"imageURL,omitempty"`
	ResultURL string    `json:"upscaledURL,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// wireEvent is the tolerant decoding target for stream payloads.
type wireEvent struct {
	Type        string          `json:"type"`
	TopicID     string          `json:"topic_id"`
	Progress    json.RawMessage `json:"progress"`
	ImageURL    string          `json:"imageURL"`
	UpscaledURL string          `json:"upscaledURL"`
	Result      string          `json:"result"`
	Message     string          `json:"message"`
}

// ParseEvent decodes one stream payload.
//
// Returns a MALFORMED_EVENT error when the payload is not a JSON object,
// the type tag is missing or unknown, or a required field is absent.
func ParseEvent(data []byte) (Event, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Event{}, NewMalformedEvent("payload is not a JSON object", nil)
	}

	var w wireEvent
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return Event{}, NewMalformedEvent("invalid JSON", err)
	}

	switch EventKind(w.Type) {
	case EventProgress:
		name := NormalizeName(w.TopicID)
		if name == "" {
			return Event{}, NewMalformedEvent("progress event missing topic_id", nil)
		}
		if isAbsent(w.Progress) {
			return Event{}, &Error{Code: ErrCodeMalformedEvent, Message: "progress event missing progress", Name: name}
		}
		p, err := ParseProgress(w.Progress)
		if err != nil {
			return Event{}, &Error{Code: ErrCodeMalformedEvent, Message: "bad progress value", Name: name, Err: err}
		}
		return Event{Kind: EventProgress, Name: name, Progress: p}, nil

	case EventComplete:
		name := NormalizeName(w.TopicID)
		if name == "" {
			return Event{}, NewMalformedEvent("complete event missing topic_id", nil)
		}
		result := w.UpscaledURL
		if result == "" {
			result = w.Result
		}
		if result == "" {
			return Event{}, &Error{Code: ErrCodeMalformedEvent, Message: "complete event missing upscaledURL/result", Name: name}
		}
		return Event{
			Kind:      EventComplete,
			Name:      name,
			SourceURL: strings.TrimSpace(w.ImageURL),
			ResultURL: strings.TrimSpace(result),
		}, nil

	case EventInfo:
		return Event{Kind: EventInfo, Message: w.Message}, nil

	case "":
		return Event{}, NewMalformedEvent("missing type tag", nil)

	default:
		return Event{}, NewMalformedEvent(fmt.Sprintf("unknown type tag %q", w.Type), nil)
	}
}

// ParseProgress decodes a progress value that may arrive as a JSON number
// or as a numeric string (the status endpoint reads progress from a Redis
// hash, where every value is a string).
//
// Fractional values are truncated, values above MaxProgress are clamped.
// Negative and non-finite values are rejected.
func ParseProgress(raw json.RawMessage) (int, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0, fmt.Errorf("empty progress")
	}

	var v float64
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return 0, fmt.Errorf("decode progress string: %w", err)
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%")), 64)
		if err != nil {
			return 0, fmt.Errorf("parse progress %q: %w", s, err)
		}
		v = parsed
	} else if err := json.Unmarshal(trimmed, &v); err != nil {
		return 0, fmt.Errorf("decode progress: %w", err)
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("progress is not finite")
	}
	if v < 0 {
		return 0, fmt.Errorf("progress %v is negative", v)
	}
	if v > MaxProgress {
		return MaxProgress, nil
	}
	return int(v), nil
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
