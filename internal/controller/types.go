package controller

import "strings"

// Mode selects between keeping the video or extracting audio.
type Mode string

const (
	ModeVideo Mode = "video"
	ModeAudio Mode = "audio"
)

// ParseMode maps a controller answer onto a Mode. Anything other than
// "audio" is treated as video.
func ParseMode(raw string) Mode {
	if strings.EqualFold(strings.TrimSpace(raw), string(ModeAudio)) {
		return ModeAudio
	}
	return ModeVideo
}

// IsAudio reports whether the mode extracts audio.
func (m Mode) IsAudio() bool { return m == ModeAudio }

// MaxResolution is used in audio mode, where the resolution is never asked.
const MaxResolution = 4320

// Credentials carries an answer to a login prompt.
type Credentials struct {
	Username string
	Password string
}

// Empty reports whether the controller declined the prompt.
func (c Credentials) Empty() bool {
	return c.Username == "" && c.Password == ""
}

// Event is a normalized progress update. Unknown numeric values are -1.
type Event struct {
	Filename   string
	Progress   float64
	Bytes      int64
	BytesTotal int64
	ETA        int64
	Speed      int64
}

// Request holds the per-run decisions obtained from the controller.
type Request struct {
	URL         string
	DownloadDir string
	Mode        Mode
	Resolution  int
	PreferMPEG  bool
}

// Controller exposes one blocking operation per controller capability.
// Calls are strictly sequential and have no timeout: the controller is the
// worker's only decision source.
type Controller interface {
	URL() (string, error)
	DownloadDir() (string, error)
	Mode() (Mode, error)
	Resolution() (int, error)
	PreferMPEG() (bool, error)
	LoginRequest() (Credentials, error)
	VideoPasswordRequest() (string, error)
	PlaylistRequest() (bool, error)
	Error(message string) error
	ProgressStart(index, total int, title, thumbnail string) error
	ProgressEnd(filename string) error
	LoadProgress(ev Event) error
}
