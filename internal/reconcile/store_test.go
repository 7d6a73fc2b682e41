package reconcile

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekifun/esrgan-super-resolution-golang/internal/topic"
)

func TestApplyProgress_InsertsAbsentName(t *testing.T) {
	s := New()

	assert.Equal(t, OutcomeInserted, s.ApplyProgress("a", 10))

	v := s.View()
	require.Len(t, v.InFlight, 1)
	assert.Equal(t, InFlightJob{Name: "a", Progress: 10, State: topic.StateInFlight}, v.InFlight[0])
}

func TestApplyProgress_MonotonicGuard(t *testing.T) {
	s := New()
	s.ApplyProgress("a", 40)

	assert.Equal(t, OutcomeStale, s.ApplyProgress("a", 30))
	assert.Equal(t, OutcomeNoOp, s.ApplyProgress("a", 40))
	assert.Equal(t, OutcomeUpdated, s.ApplyProgress("a", 41))

	j, ok := s.View().FindInFlight("a")
	require.True(t, ok)
	assert.Equal(t, 41, j.Progress)
}

func TestApplyProgress_MaxWinsInAnyOrder(t *testing.T) {
	values := []int{0, 5, 17, 17, 42, 99, 100, 3}
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		perm := rng.Perm(len(values))
		s := New()
		for _, idx := range perm {
			s.ApplyProgress("a", values[idx])
		}

		j, ok := s.View().FindInFlight("a")
		require.True(t, ok)
		assert.Equal(t, 100, j.Progress, "order %v", perm)
	}
}

func TestApplyProgress_ClampsAndNormalizesName(t *testing.T) {
	s := New()
	s.ApplyProgress("  a ", 250)

	v := s.View()
	require.Len(t, v.InFlight, 1)
	assert.Equal(t, "a", v.InFlight[0].Name)
	assert.Equal(t, topic.MaxProgress, v.InFlight[0].Progress)
}

func TestApplyProgress_EmptyNameIsNoOp(t *testing.T) {
	s := New()
	assert.Equal(t, OutcomeNoOp, s.ApplyProgress("  ", 10))
	assert.Empty(t, s.View().InFlight)
}

func TestApplyProgress_AfterCompletionIsStale(t *testing.T) {
	s := New()
	s.ApplyCompletion("a", "http://x/a.png", "")

	assert.Equal(t, OutcomeStale, s.ApplyProgress("a", 90))

	v := s.View()
	assert.Empty(t, v.InFlight)
	assert.Len(t, v.Completed, 1)
}

func TestApplyCompletion_MovesToCompleted(t *testing.T) {
	s := New()
	s.ApplyProgress("b", 10)

	assert.Equal(t, OutcomeAppended, s.ApplyCompletion("b", "http://x/out.png", ""))

	v := s.View()
	assert.Empty(t, v.InFlight)
	assert.Equal(t, []CompletedJob{{Name: "b", ResultURL: "http://x/out.png"}}, v.Completed)
}

func TestApplyCompletion_WithoutPriorProgress(t *testing.T) {
	s := New()

	assert.Equal(t, OutcomeAppended, s.ApplyCompletion("c", "http://x/c.png", "http://x/in.png"))

	v := s.View()
	assert.Empty(t, v.InFlight)
	assert.Equal(t, []CompletedJob{{Name: "c", SourceURL: "http://x/in.png", ResultURL: "http://x/c.png"}}, v.Completed)
}

func TestApplyCompletion_SourceURLDefaultsToInFlight(t *testing.T) {
	s := New()
	_, err := s.SubmitOptimistic("d", "http://x/d.png", "tok-1")
	require.NoError(t, err)

	s.ApplyCompletion("d", "http://x/d-out.png", "")

	c, ok := s.View().FindCompleted("d")
	require.True(t, ok)
	assert.Equal(t, "http://x/d.png", c.SourceURL)
}

func TestApplyCompletion_EventSourceURLWins(t *testing.T) {
	s := New()
	_, err := s.SubmitOptimistic("d", "http://x/local.png", "tok-1")
	require.NoError(t, err)

	s.ApplyCompletion("d", "http://x/out.png", "http://x/server.png")

	c, ok := s.View().FindCompleted("d")
	require.True(t, ok)
	assert.Equal(t, "http://x/server.png", c.SourceURL)
}

func TestApplyCompletion_Idempotent(t *testing.T) {
	s := New()
	s.ApplyProgress("e", 50)

	assert.Equal(t, OutcomeAppended, s.ApplyCompletion("e", "http://x/first.png", ""))
	assert.Equal(t, OutcomeDuplicate, s.ApplyCompletion("e", "http://x/second.png", ""))

	v := s.View()
	assert.Empty(t, v.InFlight)
	assert.Equal(t, []CompletedJob{{Name: "e", ResultURL: "http://x/first.png"}}, v.Completed)
}

func TestApplyCompletion_AnyOrderWithProgress(t *testing.T) {
	muts := []Mutation{
		Progress("f", 10),
		Progress("f", 60),
		Complete("f", "http://x/f.png", ""),
		Complete("f", "http://x/f.png", ""),
		Progress("f", 30),
	}
	rng := rand.New(rand.NewSource(11))

	for i := 0; i < 200; i++ {
		perm := rng.Perm(len(muts))
		s := New()
		for _, idx := range perm {
			_, _, err := s.Apply(muts[idx])
			require.NoError(t, err)
		}

		v := s.View()
		assert.Empty(t, v.InFlight, "order %v", perm)
		assert.Equal(t, []CompletedJob{{Name: "f", ResultURL: "http://x/f.png"}}, v.Completed, "order %v", perm)
	}
}

func TestSubmitOptimistic_InsertsPending(t *testing.T) {
	s := New()

	h, err := s.SubmitOptimistic(" job1 ", "http://x/in.png", "tok-1")
	require.NoError(t, err)
	assert.Equal(t, topic.Handle{Name: "job1", Token: "tok-1"}, h)

	v := s.View()
	require.Len(t, v.InFlight, 1)
	assert.Equal(t, InFlightJob{Name: "job1", SourceURL: "http://x/in.png", Progress: 0, State: topic.StatePending}, v.InFlight[0])
	assert.Equal(t, Counts{Pending: 1}, v.Counts())
}

func TestSubmitOptimistic_EmptyNameRejected(t *testing.T) {
	s := New()
	s.ApplyProgress("a", 20)
	before := s.View()

	for _, name := range []string{"", "   ", "\t\n"} {
		_, err := s.SubmitOptimistic(name, "http://x/in.png", "tok-1")
		require.Error(t, err)
		assert.True(t, topic.IsInvalidInput(err))
	}

	assert.Equal(t, before, s.View())
}

func TestSubmitOptimistic_DuplicateNameRejected(t *testing.T) {
	s := New()
	s.ApplyProgress("a", 20)
	s.ApplyCompletion("b", "http://x/b.png", "")
	before := s.View()

	_, err := s.SubmitOptimistic("a", "http://x/in.png", "tok-1")
	assert.True(t, topic.IsInvalidInput(err))

	_, err = s.SubmitOptimistic("b", "http://x/in.png", "tok-2")
	assert.True(t, topic.IsInvalidInput(err))

	assert.Equal(t, before, s.View())
}

func TestSubmitOptimistic_EmptyTokenRejected(t *testing.T) {
	s := New()
	_, err := s.SubmitOptimistic("a", "http://x/in.png", "")
	assert.True(t, topic.IsInvalidInput(err))
	assert.Empty(t, s.View().InFlight)
}

func TestRollback_LeavesNoTrace(t *testing.T) {
	s := New()
	empty := s.View()

	h, err := s.SubmitOptimistic("job1", "http://x/in.png", "tok-1")
	require.NoError(t, err)

	assert.Equal(t, OutcomeRemoved, s.Rollback(h))
	assert.Equal(t, empty, s.View())
	assert.Equal(t, topic.StateRemoved, s.View().StateOf("job1"))
}

func TestRollback_ByNameAfterInterleavedEvents(t *testing.T) {
	s := New()
	s.ApplyProgress("a", 10)
	h, err := s.SubmitOptimistic("job1", "http://x/in.png", "tok-1")
	require.NoError(t, err)
	s.ApplyProgress("b", 20)
	s.ApplyCompletion("a", "http://x/a.png", "")

	assert.Equal(t, OutcomeRemoved, s.Rollback(h))

	v := s.View()
	require.Len(t, v.InFlight, 1)
	assert.Equal(t, "b", v.InFlight[0].Name)
	assert.Len(t, v.Completed, 1)
}

func TestRollback_Twice(t *testing.T) {
	s := New()
	h, err := s.SubmitOptimistic("job1", "", "tok-1")
	require.NoError(t, err)

	assert.Equal(t, OutcomeRemoved, s.Rollback(h))
	assert.Equal(t, OutcomeNoOp, s.Rollback(h))
}

func TestRollback_KeepsServerConfirmedEntry(t *testing.T) {
	s := New()
	h, err := s.SubmitOptimistic("job1", "", "tok-1")
	require.NoError(t, err)

	// The server reported progress before the submit call failed on our side.
	s.ApplyProgress("job1", 5)

	assert.Equal(t, OutcomeNoOp, s.Rollback(h))
	j, ok := s.View().FindInFlight("job1")
	require.True(t, ok)
	assert.Equal(t, topic.StateInFlight, j.State)
}

func TestRollback_IgnoresNewerSubmission(t *testing.T) {
	s := New()
	old, err := s.SubmitOptimistic("job1", "", "tok-1")
	require.NoError(t, err)
	require.Equal(t, OutcomeRemoved, s.Rollback(old))

	newer, err := s.SubmitOptimistic("job1", "", "tok-2")
	require.NoError(t, err)

	// A late rollback for the first submission must not remove the second.
	assert.Equal(t, OutcomeNoOp, s.Rollback(old))
	assert.Equal(t, OutcomeNoOp, s.Confirm(old))

	j, ok := s.View().FindInFlight("job1")
	require.True(t, ok)
	assert.Equal(t, topic.StatePending, j.State)
	assert.Equal(t, OutcomeRemoved, s.Rollback(newer))
}

func TestRollback_ZeroHandle(t *testing.T) {
	s := New()
	assert.Equal(t, OutcomeNoOp, s.Rollback(topic.Handle{}))
	assert.Equal(t, OutcomeNoOp, s.Confirm(topic.Handle{}))
}

func TestConfirm(t *testing.T) {
	s := New()
	h, err := s.SubmitOptimistic("job1", "http://x/in.png", "tok-1")
	require.NoError(t, err)

	assert.Equal(t, OutcomeUpdated, s.Confirm(h))
	assert.Equal(t, OutcomeNoOp, s.Confirm(h))

	j, ok := s.View().FindInFlight("job1")
	require.True(t, ok)
	assert.Equal(t, topic.StateInFlight, j.State)
	assert.Equal(t, 0, j.Progress)

	// A confirmed entry survives a rollback for the same handle.
	assert.Equal(t, OutcomeNoOp, s.Rollback(h))
	assert.Equal(t, 1, s.View().Counts().InFlight)
}

func TestConfirm_AfterCompletion(t *testing.T) {
	s := New()
	h, err := s.SubmitOptimistic("job1", "", "tok-1")
	require.NoError(t, err)
	s.ApplyCompletion("job1", "http://x/out.png", "")

	assert.Equal(t, OutcomeNoOp, s.Confirm(h))
	assert.Equal(t, OutcomeNoOp, s.Rollback(h))
	assert.Equal(t, topic.StateCompleted, s.View().StateOf("job1"))
}

func TestSeed_ThenStaleProgress(t *testing.T) {
	s := New()
	s.Seed(topic.Snapshot{Processing: []topic.Job{{Name: "a", Progress: 40}}})

	assert.Equal(t, OutcomeStale, s.ApplyProgress("a", 30))

	j, ok := s.View().FindInFlight("a")
	require.True(t, ok)
	assert.Equal(t, 40, j.Progress)
}

func TestSeed_ReplacesInFlightKeepsCompleted(t *testing.T) {
	s := New()
	s.ApplyProgress("old", 10)
	s.ApplyCompletion("gone", "http://x/gone.png", "")

	assert.Equal(t, OutcomeSeeded, s.Seed(topic.Snapshot{
		Processing: []topic.Job{{Name: "a", Progress: 40}, {Name: "b", Progress: 5}},
		Processed:  []topic.Job{{Name: "c", SourceURL: "http://x/c.png", ResultURL: "http://x/c2.png"}},
	}))

	v := s.View()
	assert.Equal(t, []InFlightJob{
		{Name: "a", Progress: 40, State: topic.StateInFlight},
		{Name: "b", Progress: 5, State: topic.StateInFlight},
	}, v.InFlight)
	assert.Equal(t, []CompletedJob{
		{Name: "gone", ResultURL: "http://x/gone.png"},
		{Name: "c", SourceURL: "http://x/c.png", ResultURL: "http://x/c2.png"},
	}, v.Completed)
}

func TestSeed_StaleSnapshotKeepsHigherProgress(t *testing.T) {
	s := New()
	s.ApplyProgress("b", 60)

	s.Seed(topic.Snapshot{Processing: []topic.Job{{Name: "b", Progress: 40, SourceURL: "http://x/b.png"}}})

	j, ok := s.View().FindInFlight("b")
	require.True(t, ok)
	assert.Equal(t, InFlightJob{Name: "b", SourceURL: "http://x/b.png", Progress: 60, State: topic.StateInFlight}, j)
}

func TestSeed_StaleSnapshotDoesNotResurrectCompleted(t *testing.T) {
	s := New()
	s.ApplyProgress("a", 60)
	s.ApplyCompletion("a", "http://x/a-4x.png", "")

	s.Seed(topic.Snapshot{Processing: []topic.Job{{Name: "a", Progress: 40}}})

	v := s.View()
	assert.Empty(t, v.InFlight)
	assert.Equal(t, []CompletedJob{{Name: "a", ResultURL: "http://x/a-4x.png"}}, v.Completed)
}

func TestSeed_CommutesWithEvents(t *testing.T) {
	snap := topic.Snapshot{
		Processing: []topic.Job{{Name: "a", Progress: 40}, {Name: "b", Progress: 30}},
		Processed:  []topic.Job{{Name: "c", ResultURL: "http://x/c-4x.png"}},
	}
	events := func(s *Store) {
		s.ApplyProgress("a", 60)
		s.ApplyCompletion("b", "http://x/b-4x.png", "")
	}

	seedFirst := New()
	seedFirst.Seed(snap)
	events(seedFirst)

	seedLast := New()
	events(seedLast)
	seedLast.Seed(snap)

	for _, s := range []*Store{seedFirst, seedLast} {
		v := s.View()
		assert.Equal(t, []InFlightJob{{Name: "a", Progress: 60, State: topic.StateInFlight}}, v.InFlight)
		assert.Equal(t, topic.StateCompleted, v.StateOf("b"))
		assert.Equal(t, topic.StateCompleted, v.StateOf("c"))
		assert.Len(t, v.Completed, 2)
	}
}

func TestSeed_EnforcesInvariants(t *testing.T) {
	s := New()
	s.Seed(topic.Snapshot{
		Processing: []topic.Job{
			{Name: "a", Progress: 20},
			{Name: "done", Progress: 90},
			{Name: "a", Progress: 70, SourceURL: "http://x/a.png"},
			{Name: "a", Progress: 30},
			{Name: " ", Progress: 1},
		},
		Processed: []topic.Job{
			{Name: "done", ResultURL: "http://x/first.png", Progress: 100},
			{Name: "done", ResultURL: "http://x/second.png"},
		},
	})

	v := s.View()
	assert.Equal(t, []InFlightJob{{Name: "a", SourceURL: "http://x/a.png", Progress: 70, State: topic.StateInFlight}}, v.InFlight)
	assert.Equal(t, []CompletedJob{{Name: "done", ResultURL: "http://x/first.png"}}, v.Completed)
}

func TestSeed_TwiceDoesNotDuplicateCompleted(t *testing.T) {
	snap := topic.Snapshot{Processed: []topic.Job{{Name: "a", ResultURL: "http://x/a.png"}}}
	s := New()
	s.Seed(snap)
	s.ApplyCompletion("a", "http://x/a.png", "")
	s.Seed(snap)

	assert.Len(t, s.View().Completed, 1)
}

func TestSeed_CarriesUnmentionedOptimisticEntries(t *testing.T) {
	s := New()
	h, err := s.SubmitOptimistic("mine", "http://x/mine.png", "tok-1")
	require.NoError(t, err)
	s.ApplyProgress("theirs", 50)

	s.Seed(topic.Snapshot{Processing: []topic.Job{{Name: "other", Progress: 10}}})

	v := s.View()
	assert.Equal(t, []InFlightJob{
		{Name: "other", Progress: 10, State: topic.StateInFlight},
		{Name: "mine", SourceURL: "http://x/mine.png", State: topic.StatePending},
	}, v.InFlight)

	// The carried entry still belongs to its submission.
	assert.Equal(t, OutcomeRemoved, s.Rollback(h))
}

func TestSeed_ConfirmsMentionedOptimisticEntry(t *testing.T) {
	s := New()
	h, err := s.SubmitOptimistic("mine", "http://x/mine.png", "tok-1")
	require.NoError(t, err)

	s.Seed(topic.Snapshot{Processing: []topic.Job{{Name: "mine", Progress: 15}}})

	j, ok := s.View().FindInFlight("mine")
	require.True(t, ok)
	assert.Equal(t, InFlightJob{Name: "mine", SourceURL: "http://x/mine.png", Progress: 15, State: topic.StateInFlight}, j)

	// The server knows the job, so a failed submit call must not remove it.
	assert.Equal(t, OutcomeNoOp, s.Rollback(h))
	assert.Equal(t, OutcomeNoOp, s.Confirm(h))
}

func TestSeed_DropsOptimisticEntryThatCompleted(t *testing.T) {
	s := New()
	_, err := s.SubmitOptimistic("mine", "", "tok-1")
	require.NoError(t, err)

	s.Seed(topic.Snapshot{Processed: []topic.Job{{Name: "mine", ResultURL: "http://x/mine.png"}}})

	v := s.View()
	assert.Empty(t, v.InFlight)
	assert.Equal(t, topic.StateCompleted, v.StateOf("mine"))
}

func TestView_IsDetached(t *testing.T) {
	s := New()
	s.ApplyProgress("a", 10)
	v := s.View()

	s.ApplyProgress("a", 90)
	s.ApplyCompletion("a", "http://x/a.png", "")

	require.Len(t, v.InFlight, 1)
	assert.Equal(t, 10, v.InFlight[0].Progress)
	assert.Empty(t, v.Completed)
}

func TestView_InsertionOrder(t *testing.T) {
	s := New()
	for _, name := range []string{"z", "a", "m"} {
		s.ApplyProgress(name, 1)
	}
	s.ApplyProgress("a", 50)

	var names []string
	for _, j := range s.View().InFlight {
		names = append(names, j.Name)
	}
	assert.Equal(t, []string{"z", "a", "m"}, names)
}

func TestInvariants_RandomMutations(t *testing.T) {
	names := []string{"a", "b", "c"}
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		s := New()
		var handles []topic.Handle
		for step := 0; step < 100; step++ {
			name := names[rng.Intn(len(names))]
			switch rng.Intn(6) {
			case 0:
				s.ApplyProgress(name, rng.Intn(120))
			case 1:
				s.ApplyCompletion(name, "http://x/"+name+".png", "")
			case 2:
				if h, err := s.SubmitOptimistic(name, "", randToken(rng)); err == nil {
					handles = append(handles, h)
				}
			case 3:
				if len(handles) > 0 {
					s.Confirm(handles[rng.Intn(len(handles))])
				}
			case 4:
				if len(handles) > 0 {
					s.Rollback(handles[rng.Intn(len(handles))])
				}
			case 5:
				if rng.Intn(4) == 0 {
					s.Seed(topic.Snapshot{Processing: []topic.Job{{Name: name, Progress: rng.Intn(100)}}})
				}
			}
			assertInvariants(t, s.View())
		}
	}
}

func assertInvariants(t *testing.T, v View) {
	t.Helper()

	inFlight := make(map[string]bool)
	for _, j := range v.InFlight {
		require.False(t, inFlight[j.Name], "duplicate in-flight name %q", j.Name)
		inFlight[j.Name] = true
		require.GreaterOrEqual(t, j.Progress, 0)
		require.LessOrEqual(t, j.Progress, topic.MaxProgress)
	}

	completed := make(map[string]bool)
	for _, j := range v.Completed {
		require.False(t, completed[j.Name], "duplicate completed name %q", j.Name)
		require.False(t, inFlight[j.Name], "name %q both in flight and completed", j.Name)
		completed[j.Name] = true
	}
}

func randToken(rng *rand.Rand) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	b := make([]byte, 8)
	for i := range b {
		b[i] = letters[rng.Intn(len(letters))]
	}
	return string(b)
}
