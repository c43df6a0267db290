// Package auth decides how the worker reacts to engine errors that ask for
// credentials.
//
// During discovery a login or video-password error prompts the controller
// and retries the engine invocation with the answer. A declined prompt of
// either kind is remembered for the rest of the run: further authentication
// errors count the item as skipped instead of prompting again. Once downloads start, prompts
// are disabled and authentication errors are always counted as skipped.
package auth

import (
	"log/slog"
	"strings"

	"vidworker/internal/controller"
	"vidworker/internal/engine"
	"vidworker/internal/logging"
)

// Kind classifies an engine error message.
type Kind int

const (
	KindOther Kind = iota
	KindLogin
	KindVideoPassword
)

func (k Kind) String() string {
	switch k {
	case KindLogin:
		return "login"
	case KindVideoPassword:
		return "video_password"
	default:
		return "other"
	}
}

// Classify maps an engine error message onto a Kind.
func Classify(msg string) Kind {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "please sign in"), strings.Contains(lower, "--username"):
		return KindLogin
	case strings.Contains(lower, "--video-password"):
		return KindVideoPassword
	default:
		return KindOther
	}
}

// Action is the machine's response to one error.
type Action int

const (
	// Suppress swallows the error; the affected item is counted as skipped.
	Suppress Action = iota
	// Retry restarts the engine invocation with updated credentials.
	Retry
	// Fail reports the error and fails the current item.
	Fail
)

func (a Action) String() string {
	switch a {
	case Retry:
		return "retry"
	case Fail:
		return "fail"
	default:
		return "suppress"
	}
}

// Verdict is the outcome of HandleError.
type Verdict struct {
	Kind   Kind
	Action Action
}

// State is the run-wide credential state.
type State struct {
	PromptsAllowed bool
	// Declined is set once the controller declines any prompt.
	Declined bool
	Skipped  int
}

// Machine tracks credential prompts for one worker run. It is not safe for
// concurrent use; the worker drives it from a single goroutine.
type Machine struct {
	ctrl     controller.Controller
	opts     *engine.Options
	logger   *slog.Logger
	state    State
	prompted map[Kind]bool
}

// NewMachine builds a machine that stores answers into opts. Prompts start
// enabled.
func NewMachine(ctrl controller.Controller, opts *engine.Options, logger *slog.Logger) *Machine {
	return &Machine{
		ctrl:     ctrl,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "auth"),
		state:    State{PromptsAllowed: true},
		prompted: make(map[Kind]bool),
	}
}

// State returns a copy of the run-wide credential state.
func (m *Machine) State() State { return m.state }

// Skipped returns the run-wide skip count.
func (m *Machine) Skipped() int { return m.state.Skipped }

// DisablePrompts switches to the download phase.
func (m *Machine) DisablePrompts() { m.state.PromptsAllowed = false }

// BeginAttempt clears the per-attempt prompt marks and returns the skip
// counter to pass to SkippedSince.
func (m *Machine) BeginAttempt() int {
	clear(m.prompted)
	return m.state.Skipped
}

// SkippedSince reports how many items were skipped after snapshot.
func (m *Machine) SkippedSince(snapshot int) int {
	return m.state.Skipped - snapshot
}

// HandleError decides what to do with one engine error line. The returned
// error is a controller failure and is fatal to the worker.
func (m *Machine) HandleError(msg string) (Verdict, error) {
	kind := Classify(msg)
	if kind == KindOther {
		return Verdict{Kind: kind, Action: Fail}, m.ctrl.Error(msg)
	}

	if !m.state.PromptsAllowed || m.state.Declined || m.prompted[kind] {
		return m.skip(kind, "prompt not permitted"), nil
	}

	switch kind {
	case KindLogin:
		creds, err := m.ctrl.LoginRequest()
		if err != nil {
			return Verdict{Kind: kind, Action: Fail}, err
		}
		if creds.Empty() {
			m.state.Declined = true
			return m.skip(kind, "login declined"), nil
		}
		m.opts.Username = creds.Username
		m.opts.Password = creds.Password
	case KindVideoPassword:
		password, err := m.ctrl.VideoPasswordRequest()
		if err != nil {
			return Verdict{Kind: kind, Action: Fail}, err
		}
		if password == "" {
			m.state.Declined = true
			return m.skip(kind, "video password declined"), nil
		}
		m.opts.VideoPassword = password
	}

	m.prompted[kind] = true
	m.logger.Info("credentials received, retrying",
		logging.String(logging.FieldEventType, "auth_retry"),
		logging.String("kind", kind.String()),
	)
	return Verdict{Kind: kind, Action: Retry}, nil
}

func (m *Machine) skip(kind Kind, reason string) Verdict {
	m.state.Skipped++
	m.logger.Info("authentication required, item skipped",
		logging.String(logging.FieldEventType, "auth_skip"),
		logging.String("kind", kind.String()),
		logging.String("reason", reason),
		logging.Int("skipped_total", m.state.Skipped),
	)
	return Verdict{Kind: kind, Action: Suppress}
}
