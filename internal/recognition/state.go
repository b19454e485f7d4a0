package recognition

import (
	"time"

	"github.com/okian/facegate/internal/domain/model"
)

// State is the worker lifecycle: Stopped -> Running -> Stopping -> Stopped.
type State int32

const (
	Stopped State = iota
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "stopped"
	}
}

// Result is the outcome of the latest processed frame.
type Result struct {
	Match        model.MatchResult `json:"match"`
	Faces        int               `json:"faces"`
	Box          *model.Box        `json:"box,omitempty"`
	FrameSeq     uint64            `json:"frame_seq"`
	ProcessingMs float64           `json:"processing_ms"`
	At           time.Time         `json:"at"`
}

// Status is a point-in-time view of a worker.
type Status struct {
	Channel         model.Channel          `json:"channel"`
	Source          string                 `json:"source"`
	State           string                 `json:"state"`
	Running         bool                   `json:"running"`
	FramesRead      uint64                 `json:"frames_read"`
	FramesProcessed uint64                 `json:"frames_processed"`
	LastResult      *Result                `json:"last_result,omitempty"`
	LastEvent       *model.AttendanceEvent `json:"last_event,omitempty"`
	LastError       string                 `json:"last_error,omitempty"`
	UpdatedAt       time.Time              `json:"updated_at"`
}
