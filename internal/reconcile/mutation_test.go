package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekifun/esrgan-super-resolution-golang/internal/topic"
)

func TestApply_Dispatch(t *testing.T) {
	s := New()

	out, h, err := s.Apply(Submit("job1", "http://x/in.png", "tok-1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeInserted, out)
	assert.Equal(t, topic.Handle{Name: "job1", Token: "tok-1"}, h)

	out, _, err = s.Apply(Confirm(h))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, out)

	out, _, err = s.Apply(Progress("job1", 30))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, out)

	out, _, err = s.Apply(Complete("job1", "http://x/out.png", ""))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAppended, out)

	out, _, err = s.Apply(Rollback(h))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoOp, out)

	out, _, err = s.Apply(Seed(topic.Snapshot{}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSeeded, out)
	assert.Equal(t, Counts{Completed: 1}, s.View().Counts())
}

func TestApply_RejectedSubmit(t *testing.T) {
	s := New()

	out, h, err := s.Apply(Submit("  ", "http://x/in.png", "tok-1"))
	require.Error(t, err)
	assert.True(t, topic.IsInvalidInput(err))
	assert.Equal(t, OutcomeRejected, out)
	assert.True(t, h.IsZero())
}

func TestApply_Invalid(t *testing.T) {
	s := New()

	_, _, err := s.Apply(Mutation{Kind: "explode"})
	assert.Error(t, err)

	_, _, err = s.Apply(Mutation{Kind: KindSeed})
	assert.Error(t, err)
}

func TestFromEvent(t *testing.T) {
	m, ok := FromEvent(topic.Event{Kind: topic.EventProgress, Name: "a", Progress: 12})
	require.True(t, ok)
	assert.Equal(t, Progress("a", 12), m)

	m, ok = FromEvent(topic.Event{Kind: topic.EventComplete, Name: "a", ResultURL: "http://x/o.png", SourceURL: "http://x/i.png"})
	require.True(t, ok)
	assert.Equal(t, Complete("a", "http://x/o.png", "http://x/i.png"), m)

	_, ok = FromEvent(topic.Event{Kind: topic.EventInfo, Message: "connected"})
	assert.False(t, ok)
}

func TestMutationString(t *testing.T) {
	assert.Equal(t, `progress("a", 10)`, Progress("a", 10).String())
	assert.Equal(t, `complete("a")`, Complete("a", "http://x/o.png", "").String())
	assert.Equal(t, `rollback("a")`, Rollback(topic.Handle{Name: "a", Token: "t"}).String())
	assert.Equal(t, "seed(processing=1, processed=0)", Seed(topic.Snapshot{Processing: []topic.Job{{Name: "a"}}}).String())
}

func TestOutcomeChanged(t *testing.T) {
	assert.True(t, OutcomeInserted.Changed())
	assert.True(t, OutcomeSeeded.Changed())
	assert.False(t, OutcomeStale.Changed())
	assert.False(t, OutcomeDuplicate.Changed())
	assert.False(t, OutcomeNoOp.Changed())
	assert.False(t, OutcomeRejected.Changed())
}
