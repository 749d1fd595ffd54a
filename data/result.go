package data

import (
	"time"

	"github.com/google/uuid"
	"github.com/m-lab/go/prometheusx"
)

// CurrentSchemaVersion is the current version of the Result struct below.
// The version should be incremented for every structure change to Result so
// that consumers of saved results can keep historical rows parsable.
const CurrentSchemaVersion = 1

// Identity is the best-effort metadata reported by the identity endpoint.
// Fields that could not be resolved are empty strings.
type Identity struct {
	IP      string `json:"ip"`
	Country string `json:"country"`
	Org     string `json:"org"`
	Colo    string `json:"colo"`
}

// Result is the record of one complete measurement run. Speeds are bits per
// second, latency values milliseconds.
type Result struct {
	// UUID identifies this run.
	UUID string `json:"uuid"`
	// SchemaVersion tracks evolving changes to this structure over time.
	SchemaVersion int `json:"schema_version"`
	// GitShortCommit is the git commit this binary was built from.
	GitShortCommit string `json:"git_short_commit,omitempty"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	DownloadSpeed float64 `json:"download_speed"`
	UploadSpeed   float64 `json:"upload_speed"`
	PingMS        float64 `json:"ping_ms"`
	JitterMS      float64 `json:"jitter_ms"`

	// Latencies holds the individual ping samples, in probe order.
	Latencies []float64 `json:"latencies"`

	Identity Identity `json:"identity"`
}

// NewResult allocates a Result for a run starting now, with a fresh UUID.
func NewResult() *Result {
	return &Result{
		UUID:           uuid.NewString(),
		SchemaVersion:  CurrentSchemaVersion,
		GitShortCommit: prometheusx.GitShortCommit,
		StartTime:      time.Now().UTC(),
	}
}
