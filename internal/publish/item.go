package publish

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"vidworker/internal/formats"
)

// ItemInfo is one item's metadata record. Fields the worker does not use are
// kept as decoded so that Save writes them back unchanged.
type ItemInfo struct {
	fields map[string]any
}

// ParseItem decodes a metadata record.
func ParseItem(data []byte) (*ItemInfo, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("decode metadata record: %w", err)
	}
	if fields == nil {
		return nil, fmt.Errorf("decode metadata record: not an object")
	}
	return &ItemInfo{fields: fields}, nil
}

// ErrPlaylistRecord is returned by LoadItem for a record that describes a
// playlist rather than a single item.
var ErrPlaylistRecord = errors.New("metadata record describes a playlist")

// LoadItem reads a single item's metadata record from path.
func LoadItem(path string) (*ItemInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metadata record: %w", err)
	}
	item, err := ParseItem(data)
	if err != nil {
		return nil, err
	}
	if item.IsPlaylist() {
		return nil, ErrPlaylistRecord
	}
	return item, nil
}

// IsPlaylist reports whether the record describes a playlist.
func (i *ItemInfo) IsPlaylist() bool {
	switch i.str("_type") {
	case "playlist", "multi_video":
		return true
	}
	return false
}

// Save writes the record to path.
func (i *ItemInfo) Save(path string) error {
	data, err := json.Marshal(i.fields)
	if err != nil {
		return fmt.Errorf("encode metadata record: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write metadata record: %w", err)
	}
	return nil
}

func (i *ItemInfo) str(key string) string {
	switch v := i.fields[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// ID returns the item id.
func (i *ItemInfo) ID() string { return i.str("id") }

// Title returns the item title, which may be empty.
func (i *ItemInfo) Title() string { return i.str("title") }

// DisplayTitle falls back from the title to the id, then to "video".
func (i *ItemInfo) DisplayTitle() string {
	if t := i.Title(); t != "" {
		return t
	}
	if id := i.ID(); id != "" {
		return id
	}
	return "video"
}

// Filename returns the base name of the produced media file as reported in a
// post-download record.
func (i *ItemInfo) Filename() string {
	for _, key := range []string{"filepath", "_filename", "filename"} {
		if v := i.str(key); v != "" {
			return filepath.Base(v)
		}
	}
	return ""
}

// Formats returns the format descriptors. The returned maps are shared with
// the record.
func (i *ItemInfo) Formats() []formats.Format {
	raw, _ := i.fields["formats"].([]any)
	out := make([]formats.Format, 0, len(raw))
	for _, entry := range raw {
		if m, ok := entry.(map[string]any); ok {
			out = append(out, formats.Format(m))
		}
	}
	return out
}

// SetFormats replaces the format descriptors.
func (i *ItemInfo) SetFormats(list []formats.Format) {
	if _, ok := i.fields["formats"]; !ok && len(list) == 0 {
		return
	}
	raw := make([]any, 0, len(list))
	for _, f := range list {
		raw = append(raw, map[string]any(f))
	}
	i.fields["formats"] = raw
}

// Thumbnails returns the thumbnail descriptors.
func (i *ItemInfo) Thumbnails() []map[string]any {
	raw, _ := i.fields["thumbnails"].([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, entry := range raw {
		if m, ok := entry.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// SetThumbnail points every thumbnail descriptor at path. Both the legacy
// "filename" key and yt-dlp's "filepath" key are set.
func (i *ItemInfo) SetThumbnail(path string) {
	for _, thumb := range i.Thumbnails() {
		thumb["filename"] = path
		thumb["filepath"] = path
	}
}

// FindThumbnail returns the thumbnail written next to the metadata record at
// infoPath, or "" when there is none.
func FindThumbnail(infoPath string) string {
	dir := filepath.Dir(infoPath)
	prefix := strings.TrimSuffix(filepath.Base(infoPath), "info.json")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) {
			continue
		}
		if strings.EqualFold(filepath.Ext(name), ".json") {
			continue
		}
		return filepath.Join(dir, name)
	}
	return ""
}
