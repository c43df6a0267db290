package controller

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"vidworker/internal/services"
)

const (
	methodGetURL          = "get_url"
	methodGetDownloadDir  = "get_download_dir"
	methodGetMode         = "get_mode"
	methodGetResolution   = "get_resolution"
	methodGetPreferMPEG   = "get_prefer_mpeg"
	methodLoginRequest    = "on_login_request"
	methodVideoPassword   = "on_videopassword_request"
	methodPlaylistRequest = "on_playlist_request"
	methodError           = "on_error"
	methodProgressStart   = "on_progress_start"
	methodProgressEnd     = "on_progress_end"
	methodLoadProgress    = "on_load_progress"
)

const maxReplyLineBytes = 16 << 20

type wireRequest struct {
	Method string `json:"method"`
	Args   []any  `json:"args"`
}

// Client speaks the line-oriented request/reply protocol: the worker writes
// one JSON request per line and blocks until one JSON reply line arrives.
type Client struct {
	mu     sync.Mutex
	reader *bufio.Reader
	writer io.Writer
}

// NewClient wraps the reply stream r and the request stream w.
func NewClient(r io.Reader, w io.Writer) *Client {
	return &Client{reader: bufio.NewReaderSize(r, 64*1024), writer: w}
}

func (c *Client) call(method string, result any, args ...any) error {
	if args == nil {
		args = []any{}
	}
	payload, err := json.Marshal(wireRequest{Method: method, Args: args})
	if err != nil {
		return services.Wrap(services.ErrProtocol, "controller", method, "encode request", err)
	}
	payload = append(payload, '\n')

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.writer.Write(payload); err != nil {
		return services.Wrap(services.ErrProtocol, "controller", method, "write request", err)
	}
	if f, ok := c.writer.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return services.Wrap(services.ErrProtocol, "controller", method, "flush request", err)
		}
	}

	line, err := c.readLine()
	if err != nil {
		return services.Wrap(services.ErrProtocol, "controller", method, "read reply", err)
	}
	raw, err := decodeReply(line)
	if err != nil {
		return services.Wrap(services.ErrProtocol, "controller", method, "malformed reply", err)
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return services.Wrap(services.ErrProtocol, "controller", method, "unexpected result type", err)
	}
	return nil
}

func (c *Client) readLine() ([]byte, error) {
	var buf bytes.Buffer
	for {
		chunk, err := c.reader.ReadSlice('\n')
		buf.Write(chunk)
		if buf.Len() > maxReplyLineBytes {
			return nil, fmt.Errorf("reply exceeds %d bytes", maxReplyLineBytes)
		}
		if err == nil {
			return bytes.TrimRight(buf.Bytes(), "\r\n"), nil
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) {
			if buf.Len() > 0 {
				return bytes.TrimRight(buf.Bytes(), "\r\n"), nil
			}
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
}

func decodeReply(line []byte) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		return nil, err
	}
	raw, ok := fields["result"]
	if !ok {
		return nil, errors.New("reply has no result field")
	}
	return raw, nil
}

func (c *Client) URL() (string, error) {
	var url string
	err := c.call(methodGetURL, &url)
	return url, err
}

func (c *Client) DownloadDir() (string, error) {
	var dir string
	err := c.call(methodGetDownloadDir, &dir)
	return dir, err
}

func (c *Client) Mode() (Mode, error) {
	var mode string
	if err := c.call(methodGetMode, &mode); err != nil {
		return "", err
	}
	return ParseMode(mode), nil
}

func (c *Client) Resolution() (int, error) {
	var resolution int
	err := c.call(methodGetResolution, &resolution)
	return resolution, err
}

func (c *Client) PreferMPEG() (bool, error) {
	var prefer bool
	err := c.call(methodGetPreferMPEG, &prefer)
	return prefer, err
}

// LoginRequest expects a [username, password] pair; null means declined.
func (c *Client) LoginRequest() (Credentials, error) {
	var pair []*string
	if err := c.call(methodLoginRequest, &pair); err != nil {
		return Credentials{}, err
	}
	var creds Credentials
	if len(pair) > 0 && pair[0] != nil {
		creds.Username = *pair[0]
	}
	if len(pair) > 1 && pair[1] != nil {
		creds.Password = *pair[1]
	}
	return creds, nil
}

func (c *Client) VideoPasswordRequest() (string, error) {
	var password *string
	if err := c.call(methodVideoPassword, &password); err != nil {
		return "", err
	}
	if password == nil {
		return "", nil
	}
	return *password, nil
}

func (c *Client) PlaylistRequest() (bool, error) {
	var expand bool
	err := c.call(methodPlaylistRequest, &expand)
	return expand, err
}

func (c *Client) Error(message string) error {
	return c.call(methodError, nil, message)
}

func (c *Client) ProgressStart(index, total int, title, thumbnail string) error {
	return c.call(methodProgressStart, nil, index, total, title, thumbnail)
}

func (c *Client) ProgressEnd(filename string) error {
	return c.call(methodProgressEnd, nil, filename)
}

func (c *Client) LoadProgress(ev Event) error {
	return c.call(methodLoadProgress, nil, ev.Filename, ev.Progress, ev.Bytes, ev.BytesTotal, ev.ETA, ev.Speed)
}

// Gather fetches the immutable per-run request. Audio mode never asks for a
// resolution or codec preference.
func Gather(ctrl Controller) (Request, error) {
	var req Request
	var err error
	if req.URL, err = ctrl.URL(); err != nil {
		return Request{}, err
	}
	if req.DownloadDir, err = ctrl.DownloadDir(); err != nil {
		return Request{}, err
	}
	if req.Mode, err = ctrl.Mode(); err != nil {
		return Request{}, err
	}
	if req.Mode.IsAudio() {
		req.Resolution = MaxResolution
		return req, nil
	}
	if req.Resolution, err = ctrl.Resolution(); err != nil {
		return Request{}, err
	}
	if req.PreferMPEG, err = ctrl.PreferMPEG(); err != nil {
		return Request{}, err
	}
	return req, nil
}
