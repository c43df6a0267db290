// Package formats orders the format descriptors of one item so the engine's
// "last is best" choice matches the requested resolution and codec
// preference, and builds the matching engine format selector.
package formats

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"vidworker/internal/controller"
)

// Format is one format descriptor as found in a metadata record.
type Format map[string]any

// Height returns the vertical resolution, or 0 when unknown.
func (f Format) Height() int {
	return int(number(f["height"]))
}

// Bitrate returns the total bitrate, or 0 when unknown.
func (f Format) Bitrate() float64 {
	return number(f["tbr"])
}

// HasVideo reports whether the format carries a video stream. An absent
// codec field counts as present.
func (f Format) HasVideo() bool { return codecPresent(f["vcodec"]) }

// HasAudio reports whether the format carries an audio stream.
func (f Format) HasAudio() bool { return codecPresent(f["acodec"]) }

func (f Format) str(key string) string {
	s, _ := f[key].(string)
	return strings.ToLower(s)
}

// mpegScore counts MPEG-family traits: AVC video, AAC audio, MP4 container.
func (f Format) mpegScore() int {
	score := 0
	if v := f.str("vcodec"); strings.HasPrefix(v, "avc") || strings.HasPrefix(v, "h264") {
		score++
	}
	if a := f.str("acodec"); strings.HasPrefix(a, "mp4a") || strings.HasPrefix(a, "aac") {
		score++
	}
	if ext := f.str("ext"); ext == "mp4" || ext == "m4a" {
		score++
	}
	return score
}

func codecPresent(v any) bool {
	s, ok := v.(string)
	if !ok {
		return v == nil
	}
	return s != "none"
}

func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

type rank struct {
	fits      int
	closeness int
	kind      int
	mpeg      int
	bitrate   float64
}

func rankOf(f Format, resolution int, preferMPEG bool) rank {
	r := rank{bitrate: f.Bitrate()}
	height := f.Height()
	if height <= resolution {
		r.fits = 1
		r.closeness = height
	} else {
		r.closeness = -height
	}
	switch {
	case f.HasVideo() && f.HasAudio():
		r.kind = 2
	case f.HasVideo():
		r.kind = 1
	}
	if preferMPEG {
		r.mpeg = f.mpegScore()
	}
	return r
}

func (a rank) less(b rank) bool {
	if a.fits != b.fits {
		return a.fits < b.fits
	}
	if a.closeness != b.closeness {
		return a.closeness < b.closeness
	}
	if a.kind != b.kind {
		return a.kind < b.kind
	}
	if a.mpeg != b.mpeg {
		return a.mpeg < b.mpeg
	}
	return a.bitrate < b.bitrate
}

// Sort orders formats in ascending preference, best last. Formats that fit
// within resolution rank above those that exceed it, and the nearer a height
// is to the target the better. Combined audio and video ranks above video
// only, which ranks above audio only. MPEG-family codecs win ties when
// preferMPEG is set. The sort is stable.
func Sort(formats []Format, resolution int, preferMPEG bool) {
	ranks := make(map[int]rank, len(formats))
	idx := make([]int, len(formats))
	for i := range formats {
		idx[i] = i
		ranks[i] = rankOf(formats[i], resolution, preferMPEG)
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return ranks[idx[a]].less(ranks[idx[b]])
	})
	sorted := make([]Format, len(formats))
	for i, j := range idx {
		sorted[i] = formats[j]
	}
	copy(formats, sorted)
}

// Selector returns the engine format selector and sort keys for a request.
func Selector(mode controller.Mode, resolution int, preferMPEG bool) (string, []string) {
	if mode.IsAudio() {
		return "bestaudio/best", nil
	}
	keys := []string{fmt.Sprintf("res:%d", resolution)}
	if preferMPEG {
		keys = append(keys, "vcodec:h264", "acodec:aac", "ext:mp4:m4a")
	}
	return "bestvideo*+bestaudio/best", keys
}
