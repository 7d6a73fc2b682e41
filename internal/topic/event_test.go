package topic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvent_Progress(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"type":"progress","topic_id":"cat","progress":42}`))
	require.NoError(t, err)
	assert.Equal(t, Event{Kind: EventProgress, Name: "cat", Progress: 42}, ev)
}

func TestParseEvent_ProgressAsString(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"type":"progress","topic_id":"cat","progress":"55"}`))
	require.NoError(t, err)
	assert.Equal(t, 55, ev.Progress)
}

func TestParseEvent_ProgressClampedAndTruncated(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"type":"progress","topic_id":"cat","progress":150}`))
	require.NoError(t, err)
	assert.Equal(t, MaxProgress, ev.Progress)

	ev, err = ParseEvent([]byte(`{"type":"progress","topic_id":"cat","progress":12.9}`))
	require.NoError(t, err)
	assert.Equal(t, 12, ev.Progress)
}

func TestParseEvent_NormalizesName(t *testing.T) {
	// "e" followed by a combining acute accent normalizes to the precomposed form.
	ev, err := ParseEvent([]byte(`{"type":"progress","topic_id":"  cafe\u0301 ","progress":1}`))
	require.NoError(t, err)
	assert.Equal(t, "caf\u00e9", ev.Name)
}

func TestParseEvent_CompleteWithUpscaledURL(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"type":"complete","topic_id":"cat","imageURL":"http://x/in.png","upscaledURL":"http://x/out.png"}`))
	require.NoError(t, err)
	assert.Equal(t, Event{
		Kind:      EventComplete,
		Name:      "cat",
		SourceURL: "http://x/in.png",
		ResultURL: "http://x/out.png",
	}, ev)
}

func TestParseEvent_CompleteWithResultField(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"type":"complete","topic_id":"cat","result":"http://x/out.png"}`))
	require.NoError(t, err)
	assert.Equal(t, "http://x/out.png", ev.ResultURL)
	assert.Empty(t, ev.SourceURL)
}

func TestParseEvent_Info(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"type":"info","message":"connected"}`))
	require.NoError(t, err)
	assert.Equal(t, EventInfo, ev.Kind)
	assert.Equal(t, "connected", ev.Message)
}

func TestParseEvent_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"empty", ``},
		{"not json", `hello`},
		{"array", `[1,2]`},
		{"truncated", `{"type":"progress"`},
		{"missing type", `{"topic_id":"cat","progress":1}`},
		{"unknown type", `{"type":"paused","topic_id":"cat"}`},
		{"progress without topic", `{"type":"progress","progress":1}`},
		{"progress without value", `{"type":"progress","topic_id":"cat"}`},
		{"progress null", `{"type":"progress","topic_id":"cat","progress":null}`},
		{"negative progress", `{"type":"progress","topic_id":"cat","progress":-5}`},
		{"non numeric progress", `{"type":"progress","topic_id":"cat","progress":"half"}`},
		{"complete without result", `{"type":"complete","topic_id":"cat","imageURL":"http://x/in.png"}`},
		{"complete without topic", `{"type":"complete","upscaledURL":"http://x/out.png"}`},
		{"blank topic", `{"type":"complete","topic_id":"   ","upscaledURL":"http://x/out.png"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEvent([]byte(tt.payload))
			require.Error(t, err)
			assert.True(t, IsMalformed(err), "expected malformed error, got %v", err)
			assert.Equal(t, ErrCodeMalformedEvent, CodeOf(err))
		})
	}
}

func TestParseProgress(t *testing.T) {
	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{`0`, 0, false},
		{`100`, 100, false},
		{`"40"`, 40, false},
		{`" 7 "`, 7, false},
		{`"80%"`, 80, false},
		{`99.99`, 99, false},
		{`1e3`, 100, false},
		{`""`, 0, true},
		{`true`, 0, true},
		{`{}`, 0, true},
		{`-1`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseProgress([]byte(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
