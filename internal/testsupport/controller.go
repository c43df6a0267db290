package testsupport

import (
	"fmt"
	"sync"

	"vidworker/internal/controller"
)

// Call records one request made against a FakeController.
type Call struct {
	Method string
	Args   []any
}

// FakeController answers controller requests from scripted values and
// records every call in order.
type FakeController struct {
	mu sync.Mutex

	Request controller.Request

	// Logins and Passwords are consumed in order; once exhausted every
	// further prompt is declined.
	Logins    []controller.Credentials
	Passwords []string
	// Playlist answers on_playlist_request.
	Playlist bool

	calls []Call
}

func (f *FakeController) record(method string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Method: method, Args: args})
}

// Calls returns a copy of the recorded calls.
func (f *FakeController) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// Count returns how many times method was called.
func (f *FakeController) Count(method string) int {
	n := 0
	for _, call := range f.Calls() {
		if call.Method == method {
			n++
		}
	}
	return n
}

// Methods lists the recorded method names, filtered to the given set when
// one is provided.
func (f *FakeController) Methods(only ...string) []string {
	keep := make(map[string]bool, len(only))
	for _, m := range only {
		keep[m] = true
	}
	var out []string
	for _, call := range f.Calls() {
		if len(keep) == 0 || keep[call.Method] {
			out = append(out, call.Method)
		}
	}
	return out
}

func (f *FakeController) URL() (string, error) {
	f.record("get_url")
	return f.Request.URL, nil
}

func (f *FakeController) DownloadDir() (string, error) {
	f.record("get_download_dir")
	return f.Request.DownloadDir, nil
}

func (f *FakeController) Mode() (controller.Mode, error) {
	f.record("get_mode")
	if f.Request.Mode == "" {
		return controller.ModeVideo, nil
	}
	return f.Request.Mode, nil
}

func (f *FakeController) Resolution() (int, error) {
	f.record("get_resolution")
	return f.Request.Resolution, nil
}

func (f *FakeController) PreferMPEG() (bool, error) {
	f.record("get_prefer_mpeg")
	return f.Request.PreferMPEG, nil
}

func (f *FakeController) LoginRequest() (controller.Credentials, error) {
	f.record("on_login_request")
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Logins) == 0 {
		return controller.Credentials{}, nil
	}
	creds := f.Logins[0]
	f.Logins = f.Logins[1:]
	return creds, nil
}

func (f *FakeController) VideoPasswordRequest() (string, error) {
	f.record("on_videopassword_request")
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Passwords) == 0 {
		return "", nil
	}
	pw := f.Passwords[0]
	f.Passwords = f.Passwords[1:]
	return pw, nil
}

func (f *FakeController) PlaylistRequest() (bool, error) {
	f.record("on_playlist_request")
	return f.Playlist, nil
}

func (f *FakeController) Error(message string) error {
	f.record("on_error", message)
	return nil
}

func (f *FakeController) ProgressStart(index, total int, title, thumbnail string) error {
	f.record("on_progress_start", index, total, title, thumbnail)
	return nil
}

func (f *FakeController) ProgressEnd(filename string) error {
	f.record("on_progress_end", filename)
	return nil
}

func (f *FakeController) LoadProgress(ev controller.Event) error {
	f.record("on_load_progress", ev)
	return nil
}

// Errors returns the messages passed to Error.
func (f *FakeController) Errors() []string {
	var out []string
	for _, call := range f.Calls() {
		if call.Method == "on_error" {
			out = append(out, fmt.Sprint(call.Args[0]))
		}
	}
	return out
}

var _ controller.Controller = (*FakeController)(nil)
