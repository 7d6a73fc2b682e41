package topic

import (
	"bytes"
	"strings"

	"github.com/goccy/go-json"
)

// maxRecordDepth bounds how many layers of JSON-in-a-string a snapshot
// record may be wrapped in.
const maxRecordDepth = 4

// wireRecord is the tolerant decoding target for snapshot records. Field
// aliases cover the shapes written by the different upstream services.
type wireRecord struct {
	Name      string `json:"name"`
	TopicID   string `json:"topic_id"`
	TopicName string `json:"topicName"`

	ImageURL      string `json:"imageURL"`
	SourceURL     string `json:"sourceUrl"`
	ImageURLSnake string `json:"image_url"`

	UpscaledURL string `json:"upscaledURL"`
	Result      string `json:"result"`
	ResultURL   string `json:"resultUrl"`

	Progress json.RawMessage `json:"progress"`
}

// NormalizeJobRecord turns one raw snapshot record into a Job.
//
// A record may legally arrive as:
//   - a JSON object: {"name":"a","progress":"40"}
//   - a JSON-encoded string holding such an object: "{\"name\":\"a\"}"
//   - an object whose name holds a JSON-encoded record:
//     {"name":"{\"name\":\"a\",\"upscaledURL\":\"...\"}"}
//   - a bare string, taken as the job name
//
// Fields of a nested record win over the fields of the record that wraps it;
// the wrapper only fills gaps. Any other shape returns a MALFORMED_RECORD
// error and never panics.
func NormalizeJobRecord(raw []byte) (Job, error) {
	return normalizeRecord(raw, 0)
}

func normalizeRecord(raw []byte, depth int) (Job, error) {
	if depth > maxRecordDepth {
		return Job{}, NewMalformedRecord("record nested too deeply", nil)
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Job{}, NewMalformedRecord("empty record", nil)
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return Job{}, NewMalformedRecord("invalid JSON string", err)
		}
		s = strings.TrimSpace(s)
		if looksEncoded(s) {
			return normalizeRecord([]byte(s), depth+1)
		}
		name := NormalizeName(s)
		if name == "" {
			return Job{}, NewMalformedRecord("empty name", nil)
		}
		return Job{Name: name}, nil

	case '{':
		var w wireRecord
		if err := json.Unmarshal(trimmed, &w); err != nil {
			return Job{}, NewMalformedRecord("invalid JSON object", err)
		}
		return w.toJob(depth)

	default:
		return Job{}, NewMalformedRecord("record is neither an object nor a string", nil)
	}
}

func (w wireRecord) toJob(depth int) (Job, error) {
	job := Job{
		Name:      NormalizeName(firstNonEmpty(w.Name, w.TopicID, w.TopicName)),
		SourceURL: strings.TrimSpace(firstNonEmpty(w.ImageURL, w.SourceURL, w.ImageURLSnake)),
		ResultURL: strings.TrimSpace(firstNonEmpty(w.UpscaledURL, w.Result, w.ResultURL)),
	}

	if !isAbsent(w.Progress) {
		p, err := ParseProgress(w.Progress)
		if err != nil {
			return Job{}, &Error{Code: ErrCodeMalformedRecord, Message: "bad progress value", Name: job.Name, Err: err}
		}
		job.Progress = p
	}

	if looksEncoded(job.Name) {
		inner, err := normalizeRecord([]byte(job.Name), depth+1)
		if err != nil {
			return Job{}, err
		}
		return mergeRecords(inner, job), nil
	}

	if job.Name == "" {
		return Job{}, NewMalformedRecord("record has no name", nil)
	}
	return job, nil
}

// mergeRecords fills the empty fields of inner from outer.
func mergeRecords(inner, outer Job) Job {
	if inner.SourceURL == "" {
		inner.SourceURL = outer.SourceURL
	}
	if inner.ResultURL == "" {
		inner.ResultURL = outer.ResultURL
	}
	if inner.Progress == 0 {
		inner.Progress = outer.Progress
	}
	return inner
}

func looksEncoded(s string) bool {
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "\"")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
