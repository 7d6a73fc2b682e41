package reconcile

import "github.com/ekifun/esrgan-super-resolution-golang/internal/topic"

// InFlightJob is a job still being processed, as seen by renderers.
type InFlightJob struct {
	Name      string      `json:"name"`
	SourceURL string      `json:"imageURL,omitempty"`
	Progress  int         `json:"progress"`
	State     topic.State `json:"state"`
}

// CompletedJob is a finished job. It has no progress field.
type CompletedJob struct {
	Name      string `json:"name"`
	SourceURL string `json:"imageURL,omitempty"`
	ResultURL string `json:"upscaledURL,omitempty"`
}

// View is a read-only projection of the store at one point in time.
//
// Slices are freshly allocated on every call to Store.View and are never
// touched by the store afterwards, so a View can be handed to any goroutine.
type View struct {
	// Seq is the logical clock value of the last mutation reflected in the
	// view. Zero means no mutation has been applied yet.
	Seq int64 `json:"seq"`

	// InFlight lists pending and in-flight jobs in insertion order.
	InFlight []InFlightJob `json:"inFlight"`

	// Completed lists completed jobs in the order they completed.
	Completed []CompletedJob `json:"completed"`
}

// Counts summarizes a view by lifecycle state.
type Counts struct {
	Pending   int `json:"pending"`
	InFlight  int `json:"inFlight"`
	Completed int `json:"completed"`
}

// Counts tallies the view's entries.
func (v View) Counts() Counts {
	c := Counts{Completed: len(v.Completed)}
	for _, j := range v.InFlight {
		if j.State == topic.StatePending {
			c.Pending++
		} else {
			c.InFlight++
		}
	}
	return c
}

// FindInFlight returns the in-flight entry for name.
func (v View) FindInFlight(name string) (InFlightJob, bool) {
	name = topic.NormalizeName(name)
	for _, j := range v.InFlight {
		if j.Name == name {
			return j, true
		}
	}
	return InFlightJob{}, false
}

// FindCompleted returns the completed record for name.
func (v View) FindCompleted(name string) (CompletedJob, bool) {
	name = topic.NormalizeName(name)
	for _, j := range v.Completed {
		if j.Name == name {
			return j, true
		}
	}
	return CompletedJob{}, false
}

// StateOf classifies name in this view. Names the view does not hold are
// reported as StateRemoved.
func (v View) StateOf(name string) topic.State {
	if j, ok := v.FindInFlight(name); ok {
		return j.State
	}
	if _, ok := v.FindCompleted(name); ok {
		return topic.StateCompleted
	}
	return topic.StateRemoved
}
