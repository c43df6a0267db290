// Package progress converts engine progress payloads into controller events.
package progress

import (
	"log/slog"
	"math"

	"vidworker/internal/controller"
	"vidworker/internal/engine"
	"vidworker/internal/logging"
)

const unknown = -1

// Normalize maps a raw engine payload onto a controller event. Only the
// "downloading" and "finished" statuses produce an event.
//
// Byte counts are preferred; fragment counts are used when no byte totals
// are known. A finished payload reports unknown progress, eta and speed.
func Normalize(raw engine.RawProgress) (controller.Event, bool) {
	if raw.Status != "downloading" && raw.Status != "finished" {
		return controller.Event{}, false
	}

	ev := controller.Event{
		Filename:   raw.Filename,
		Progress:   unknown,
		Bytes:      unknown,
		BytesTotal: unknown,
		ETA:        unknown,
		Speed:      unknown,
	}

	total := raw.TotalBytes
	if total == nil {
		total = raw.TotalBytesEstimate
	}
	if raw.DownloadedBytes != nil {
		ev.Bytes = int64(*raw.DownloadedBytes)
	}
	if total != nil {
		ev.BytesTotal = int64(*total)
	}

	switch {
	case raw.DownloadedBytes != nil && total != nil:
		if *total > 0 {
			ev.Progress = clamp(*raw.DownloadedBytes / *total)
		}
	case raw.FragmentIndex != nil && raw.FragmentCount != nil:
		if *raw.FragmentCount > 0 {
			ev.Progress = clamp(*raw.FragmentIndex / *raw.FragmentCount)
		}
	}

	if raw.ETA != nil {
		ev.ETA = int64(math.Round(*raw.ETA))
	}
	if raw.Speed != nil {
		ev.Speed = int64(math.Round(*raw.Speed))
	}

	if raw.Status == "finished" {
		ev.Progress = unknown
		ev.ETA = unknown
		ev.Speed = unknown
	}
	return ev, true
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Reporter forwards normalized events to the controller.
type Reporter struct {
	ctrl   controller.Controller
	logger *slog.Logger
}

// NewReporter builds a reporter bound to ctrl.
func NewReporter(ctrl controller.Controller, logger *slog.Logger) *Reporter {
	return &Reporter{ctrl: ctrl, logger: logging.NewComponentLogger(logger, "progress")}
}

// Report normalizes raw and, when it yields an event, sends it to the
// controller. A controller failure is returned to the caller.
func (r *Reporter) Report(raw engine.RawProgress) error {
	ev, ok := Normalize(raw)
	if !ok {
		r.logger.Debug("progress status ignored", logging.String("status", raw.Status))
		return nil
	}
	return r.ctrl.LoadProgress(ev)
}
