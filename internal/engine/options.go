package engine

import (
	"errors"
	"strconv"
	"strings"
)

// Reserved output prefixes used to recognise structured engine output.
const (
	ProgressPrefix = "[vidworker-progress] "
	RecordPrefix   = "[vidworker-record] "
)

// Options configures one engine invocation.
type Options struct {
	Retries         int
	FragmentRetries int
	Format          string
	FormatSort      []string
	OutputTemplate  string
	CookieFile      string

	WriteInfoJSON  bool
	WriteThumbnail bool
	SkipDownload   bool
	// PlaylistEnd caps playlist expansion; 0 means uncapped.
	PlaylistEnd  int
	NoPlaylist   bool
	IgnoreErrors bool
	Fixup        string
	XAttrs       bool

	ExtractAudio   bool
	AudioCodec     string
	AudioQuality   string
	EmbedThumbnail bool

	Username      string
	Password      string
	VideoPassword string

	// EmitRecord prints the final metadata record of every downloaded item.
	EmitRecord bool
}

// Args renders the options as yt-dlp flags. It is pure.
func (o Options) Args() []string {
	args := []string{
		"--ignore-config",
		"--newline",
		"--no-color",
		"--progress",
		"--progress-template", "download:" + ProgressPrefix + "%(progress)j",
	}
	if o.Retries > 0 {
		args = append(args, "--retries", strconv.Itoa(o.Retries))
	}
	if o.FragmentRetries > 0 {
		args = append(args, "--fragment-retries", strconv.Itoa(o.FragmentRetries))
	}
	if o.Format != "" {
		args = append(args, "--format", o.Format)
	}
	if len(o.FormatSort) > 0 {
		args = append(args, "--format-sort", strings.Join(o.FormatSort, ","))
	}
	if o.OutputTemplate != "" {
		args = append(args, "--output", o.OutputTemplate)
	}
	if o.CookieFile != "" {
		args = append(args, "--cookies", o.CookieFile)
	}
	if o.WriteInfoJSON {
		// Playlist-level records would otherwise land beside the entries.
		args = append(args, "--write-info-json", "--no-write-playlist-metafiles")
	}
	if o.WriteThumbnail {
		args = append(args, "--write-thumbnail")
	}
	if o.SkipDownload {
		args = append(args, "--skip-download")
	}
	if o.PlaylistEnd > 0 {
		args = append(args, "--playlist-end", strconv.Itoa(o.PlaylistEnd))
	}
	if o.NoPlaylist {
		args = append(args, "--no-playlist")
	} else {
		args = append(args, "--yes-playlist")
	}
	if o.IgnoreErrors {
		args = append(args, "--ignore-errors")
	}
	if o.Fixup != "" {
		args = append(args, "--fixup", o.Fixup)
	}
	if o.XAttrs {
		args = append(args, "--xattrs")
	}
	if o.ExtractAudio {
		args = append(args, "--extract-audio")
		if o.AudioCodec != "" {
			args = append(args, "--audio-format", o.AudioCodec)
		}
		if o.AudioQuality != "" {
			args = append(args, "--audio-quality", o.AudioQuality)
		}
	}
	if o.EmbedThumbnail {
		args = append(args, "--embed-thumbnail")
	}
	if o.Username != "" {
		args = append(args, "--username", o.Username)
	}
	if o.Password != "" {
		args = append(args, "--password", o.Password)
	}
	if o.VideoPassword != "" {
		args = append(args, "--video-password", o.VideoPassword)
	}
	if o.EmitRecord {
		// --print implies --simulate; the download must still happen.
		args = append(args, "--print", "after_move:"+RecordPrefix+"%()j", "--no-simulate")
	}
	return args
}

// Invocation is one engine run against exactly one source.
type Invocation struct {
	Dir      string
	URL      string
	InfoFile string
	Options  Options
}

// Args renders the complete argument list for the invocation.
func (inv Invocation) Args() ([]string, error) {
	hasURL := strings.TrimSpace(inv.URL) != ""
	hasInfo := strings.TrimSpace(inv.InfoFile) != ""
	switch {
	case hasURL && hasInfo:
		return nil, errors.New("invocation has both url and info file")
	case !hasURL && !hasInfo:
		return nil, errors.New("invocation has no source")
	}
	args := inv.Options.Args()
	if hasInfo {
		return append(args, "--load-info-json", inv.InfoFile), nil
	}
	return append(args, "--", inv.URL), nil
}
