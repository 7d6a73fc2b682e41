package logger

// Component names used with For.
const (
	ComponentEngine    = "Engine"
	ComponentStream    = "Stream"
	ComponentSnapshot  = "Snapshot"
	ComponentUpstream  = "Upstream"
	ComponentDashboard = "Dashboard"
	ComponentJournal   = "Journal"
	ComponentHTTP      = "HTTP"
	ComponentCLI       = "CLI"
)
