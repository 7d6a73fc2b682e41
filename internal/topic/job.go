package topic

// Job is one upscaling task.
//
// ResultURL is empty until the job is complete. Progress is only meaningful
// while the job is in flight; completed jobs carry zero.
type Job struct {
	Name      string `json:"name" yaml:"name"`
	SourceURL string `json:"imageURL,omitempty" yaml:"imageURL,omitempty"`
	Progress  int    `json:"progress" yaml:"progress,omitempty"`
	ResultURL string `json:"upscaledURL,omitempty" yaml:"upscaledURL,omitempty"`
}

// Origin records how an in-flight entry came to exist.
type Origin string

const (
	// OriginOptimistic marks an entry inserted locally before the server
	// acknowledged it.
	OriginOptimistic Origin = "optimistic"

	// OriginConfirmed marks an entry the server knows about, either because
	// the submit call succeeded or because a snapshot or progress event
	// mentioned it.
	OriginConfirmed Origin = "confirmed"
)

// State classifies a job's lifecycle position. It is derived, never stored.
type State string

const (
	StatePending   State = "pending"
	StateInFlight  State = "in_flight"
	StateCompleted State = "completed"
	StateRemoved   State = "removed"
)

// StateOf maps an in-flight origin to its lifecycle state.
func StateOf(o Origin) State {
	if o == OriginOptimistic {
		return StatePending
	}
	return StateInFlight
}

// Handle identifies one optimistic insert. Token distinguishes two
// submissions of the same name so a late rollback cannot remove a newer
// entry.
type Handle struct {
	Name  string `json:"name"`
	Token string `json:"token"`
}

// IsZero reports whether h was never issued.
func (h Handle) IsZero() bool {
	return h.Name == "" && h.Token == ""
}

// Snapshot is a full point-in-time state of all jobs, already normalized.
type Snapshot struct {
	Processed  []Job `json:"processed" yaml:"processed"`
	Processing []Job `json:"processing" yaml:"processing"`
}

// SubmitRequest is the body of the upstream submit call.
type SubmitRequest struct {
	TopicName string `json:"topicName"`
	ImageURL  string `json:"imageURL"`
}
