package engine

import "context"

// Level classifies one line of engine output.
type Level int

const (
	LevelDebug Level = iota
	LevelWarning
	LevelError
	// LevelRecord carries a JSON metadata record emitted after a download.
	LevelRecord
)

func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	case LevelRecord:
		return "record"
	default:
		return "debug"
	}
}

// Line is one classified output line with its reserved prefix removed.
type Line struct {
	Level Level
	Text  string
}

// Action tells the engine whether to keep running.
type Action int

const (
	Continue Action = iota
	Abort
)

// RawProgress mirrors the engine's progress hook payload. Absent numeric
// fields are nil.
type RawProgress struct {
	Status             string   `json:"status"`
	Filename           string   `json:"filename"`
	DownloadedBytes    *float64 `json:"downloaded_bytes"`
	TotalBytes         *float64 `json:"total_bytes"`
	TotalBytesEstimate *float64 `json:"total_bytes_estimate"`
	FragmentIndex      *float64 `json:"fragment_index"`
	FragmentCount      *float64 `json:"fragment_count"`
	ETA                *float64 `json:"eta"`
	Speed              *float64 `json:"speed"`
}

// Sink receives engine output. All calls happen on the goroutine that
// called Engine.Run.
type Sink interface {
	Line(line Line) Action
	Progress(p RawProgress) Action
}

// Engine runs one invocation to completion or until the sink aborts.
type Engine interface {
	Run(ctx context.Context, inv Invocation, sink Sink) error
}
