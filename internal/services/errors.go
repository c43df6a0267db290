package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSkipped marks an item that was skipped because authentication was
	// declined or suppressed. It never fails the run.
	ErrSkipped = errors.New("item skipped")
	// ErrItemFailed marks a failure scoped to one item; sibling items proceed.
	ErrItemFailed = errors.New("item failed")
	// ErrWorkerFatal marks a failure that terminates the worker.
	ErrWorkerFatal = errors.New("worker fatal")
	// ErrProtocol marks a malformed or missing controller reply.
	ErrProtocol      = errors.New("controller protocol error")
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrWorkerFatal
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Tier reports the error tier used by the orchestrator's propagation policy.
type Tier int

const (
	TierNone Tier = iota
	TierSkipped
	TierItem
	TierWorker
)

func (t Tier) String() string {
	switch t {
	case TierSkipped:
		return "skipped"
	case TierItem:
		return "item"
	case TierWorker:
		return "worker"
	default:
		return "none"
	}
}

// Classify maps an error to its tier. Unknown errors are worker-fatal so that
// nothing is silently absorbed.
func Classify(err error) Tier {
	switch {
	case err == nil:
		return TierNone
	case errors.Is(err, ErrSkipped):
		return TierSkipped
	case errors.Is(err, ErrItemFailed):
		return TierItem
	default:
		return TierWorker
	}
}

// IsItemFatal reports whether err only fails the current item.
func IsItemFatal(err error) bool {
	return Classify(err) == TierItem
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "worker failure"
	}
	return strings.Join(parts, ": ")
}
