package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"vidworker/internal/controller"
	"vidworker/internal/engine"
	"vidworker/internal/logging"
	"vidworker/internal/publish"
	"vidworker/internal/services"
	"vidworker/internal/testsupport"
	"vidworker/internal/transcode"
	"vidworker/internal/worker"
)

type fakeItem struct {
	ID    string
	Title string
	// Login requires credentials before the item can be probed.
	Login bool
	// Fail makes the download report an engine error without a record.
	Fail string
}

// fakeEngine emulates yt-dlp: probes write numbered metadata records and a
// thumbnail, downloads write the media file and print the final record.
type fakeEngine struct {
	t     *testing.T
	items []fakeItem
	// single is the number of items visible with playlist expansion off.
	single int
	// username unlocks items that require a login.
	username string
	// playlistRecord writes a playlist-level record beside the entries, as
	// yt-dlp does unless playlist metafiles are disabled.
	playlistRecord bool
	// runErr is returned by every invocation.
	runErr error

	mu          sync.Mutex
	invocations []engine.Invocation
}

func (e *fakeEngine) Run(ctx context.Context, inv engine.Invocation, sink engine.Sink) error {
	e.mu.Lock()
	e.invocations = append(e.invocations, inv)
	e.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.runErr != nil {
		return e.runErr
	}
	if inv.Options.SkipDownload {
		return e.probe(inv, sink)
	}
	return e.download(inv, sink)
}

func (e *fakeEngine) probe(inv engine.Invocation, sink engine.Sink) error {
	limit := len(e.items)
	if inv.Options.NoPlaylist {
		limit = e.single
	}
	if inv.Options.PlaylistEnd > 0 && inv.Options.PlaylistEnd < limit {
		limit = inv.Options.PlaylistEnd
	}
	if e.playlistRecord && !inv.Options.NoPlaylist {
		testsupport.WriteText(e.t, filepath.Join(inv.Dir, "00000.info.json"), `{"_type": "playlist", "id": "PL1", "title": "Channel uploads"}`)
		testsupport.WriteText(e.t, filepath.Join(inv.Dir, "00000.jpg"), "playlist thumbnail")
	}
	n := 0
	for _, item := range e.items[:limit] {
		if item.Login && inv.Options.Username != e.username {
			if sink.Line(engine.Line{Level: engine.LevelError, Text: "ERROR: [site] " + item.ID + ": Please sign in to view this video"}) == engine.Abort {
				return engine.ErrAborted
			}
			continue
		}
		n++
		base := filepath.Join(inv.Dir, fmt.Sprintf("%05d", n))
		record := map[string]any{
			"id":    item.ID,
			"title": item.Title,
			"formats": []any{
				map[string]any{"format_id": "18", "height": 360, "vcodec": "avc1", "acodec": "mp4a"},
				map[string]any{"format_id": "22", "height": 720, "vcodec": "avc1", "acodec": "mp4a"},
			},
			"thumbnails": []any{map[string]any{"url": "https://example.invalid/t.jpg"}},
		}
		data, err := json.Marshal(record)
		if err != nil {
			e.t.Fatalf("marshal record: %v", err)
		}
		testsupport.WriteText(e.t, base+".info.json", string(data))
		testsupport.WriteText(e.t, base+".webp", "thumbnail")
	}
	return nil
}

func (e *fakeEngine) download(inv engine.Invocation, sink engine.Sink) error {
	item, err := publish.LoadItem(inv.InfoFile)
	if err != nil {
		e.t.Fatalf("load info file: %v", err)
	}
	for _, fi := range e.items {
		if fi.ID == item.ID() && fi.Fail != "" {
			sink.Line(engine.Line{Level: engine.LevelError, Text: "ERROR: " + fi.Fail})
			return nil
		}
	}
	done := 50.0
	total := 100.0
	sink.Progress(engine.RawProgress{Status: "downloading", DownloadedBytes: &done, TotalBytes: &total})
	sink.Progress(engine.RawProgress{Status: "finished", DownloadedBytes: &total, TotalBytes: &total})

	produced := filepath.Join(inv.Dir, item.ID()+".22.mp4")
	testsupport.WriteText(e.t, produced, "media "+item.ID())
	if inv.Options.ExtractAudio {
		testsupport.WriteText(e.t, filepath.Join(inv.Dir, item.ID()+".22.mp3"), "audio "+item.ID())
	}
	data, err := json.Marshal(map[string]any{"id": item.ID(), "filepath": produced})
	if err != nil {
		e.t.Fatalf("marshal record: %v", err)
	}
	sink.Line(engine.Line{Level: engine.LevelRecord, Text: string(data)})
	return nil
}

func (e *fakeEngine) downloads() []engine.Invocation {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []engine.Invocation
	for _, inv := range e.invocations {
		if !inv.Options.SkipDownload {
			out = append(out, inv)
		}
	}
	return out
}

type fakeThumbnailer struct {
	err error
}

func (f fakeThumbnailer) Convert(_ context.Context, src string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	dst := src + "-converted.jpg"
	if err := os.Rename(src, dst); err != nil {
		return "", err
	}
	return dst, nil
}

func (fakeThumbnailer) Binary() string { return "ffmpeg" }

func newWorker(t *testing.T, ctrl *testsupport.FakeController, eng *fakeEngine, thumbs worker.Thumbnailer) *worker.Worker {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	return worker.New(cfg, ctrl, eng, thumbs, logging.NewNop())
}

func progressEnds(ctrl *testsupport.FakeController) []string {
	var out []string
	for _, call := range ctrl.Calls() {
		if call.Method == "on_progress_end" {
			out = append(out, fmt.Sprint(call.Args[0]))
		}
	}
	return out
}

func TestRunPlaylistSkipsExistingItem(t *testing.T) {
	dest := t.TempDir()
	testsupport.WriteText(t, filepath.Join(dest, "Second.mkv"), "already here")

	ctrl := &testsupport.FakeController{
		Request:  controller.Request{URL: "https://example.invalid/list", DownloadDir: dest, Resolution: 720},
		Playlist: true,
	}
	eng := &fakeEngine{t: t, single: 1, items: []fakeItem{
		{ID: "a", Title: "First"},
		{ID: "b", Title: "Second"},
		{ID: "c", Title: "Third"},
	}}

	summary, err := newWorker(t, ctrl, eng, fakeThumbnailer{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Items != 3 || summary.Downloaded != 2 || summary.Existing != 1 || !summary.Playlist {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if got := ctrl.Count("on_playlist_request"); got != 1 {
		t.Fatalf("expected one playlist request, got %d", got)
	}
	if got := ctrl.Count("on_progress_start"); got != 3 {
		t.Fatalf("expected three progress starts, got %d", got)
	}
	ends := progressEnds(ctrl)
	want := []string{"First.mp4", "Second.mkv", "Third.mp4"}
	if strings.Join(ends, ",") != strings.Join(want, ",") {
		t.Fatalf("progress ends = %v, want %v", ends, want)
	}
	if got := len(eng.downloads()); got != 2 {
		t.Fatalf("expected two downloads, got %d", got)
	}
	for _, name := range []string{"First.mp4", "Third.mp4"} {
		if _, err := os.Stat(filepath.Join(dest, name)); err != nil {
			t.Fatalf("expected %s published: %v", name, err)
		}
	}
	if ctrl.Count("on_load_progress") == 0 {
		t.Fatal("expected progress events")
	}
	entries, err := os.ReadDir(dest)
	if err != nil {
		t.Fatalf("read dest: %v", err)
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".part") {
			t.Fatalf("staging directory left behind: %s", entry.Name())
		}
	}
}

func TestRunProgressStartCarriesTitleAndThumbnail(t *testing.T) {
	dest := t.TempDir()
	ctrl := &testsupport.FakeController{
		Request: controller.Request{URL: "https://example.invalid/v", DownloadDir: dest, Resolution: 1080},
	}
	eng := &fakeEngine{t: t, single: 1, items: []fakeItem{{ID: "a", Title: "Only"}}}

	if _, err := newWorker(t, ctrl, eng, fakeThumbnailer{}).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ctrl.Count("on_playlist_request") != 0 {
		t.Fatal("single item must not ask about playlists")
	}
	for _, call := range ctrl.Calls() {
		if call.Method != "on_progress_start" {
			continue
		}
		if call.Args[0] != 0 || call.Args[1] != 1 || call.Args[2] != "Only" {
			t.Fatalf("unexpected progress start args: %v", call.Args)
		}
		if thumb := fmt.Sprint(call.Args[3]); !strings.HasSuffix(thumb, "-converted.jpg") {
			t.Fatalf("expected converted thumbnail, got %q", thumb)
		}
	}
	downloads := eng.downloads()
	if len(downloads) != 1 {
		t.Fatalf("expected one download, got %d", len(downloads))
	}
	opts := downloads[0].Options
	if !opts.EmitRecord || opts.WriteInfoJSON || opts.Format == "" || downloads[0].URL != "" {
		t.Fatalf("unexpected download options: %+v", downloads[0])
	}
}

func TestRunAudioModePublishesMP3(t *testing.T) {
	dest := t.TempDir()
	ctrl := &testsupport.FakeController{
		Request: controller.Request{URL: "https://example.invalid/v", DownloadDir: dest, Mode: controller.ModeAudio},
	}
	eng := &fakeEngine{t: t, single: 1, items: []fakeItem{{ID: "a", Title: "Song"}}}

	if _, err := newWorker(t, ctrl, eng, fakeThumbnailer{}).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "Song.mp3")); err != nil {
		t.Fatalf("expected Song.mp3: %v", err)
	}
	opts := eng.downloads()[0].Options
	if !opts.ExtractAudio || !opts.EmbedThumbnail || opts.Format != "bestaudio/best" {
		t.Fatalf("unexpected audio options: %+v", opts)
	}
	if ctrl.Count("get_resolution") != 0 {
		t.Fatal("audio mode must not ask for a resolution")
	}
}

func TestRunRetriesProbeWithCredentials(t *testing.T) {
	dest := t.TempDir()
	ctrl := &testsupport.FakeController{
		Request: controller.Request{URL: "https://example.invalid/v", DownloadDir: dest},
		Logins:  []controller.Credentials{{Username: "user", Password: "secret"}},
	}
	eng := &fakeEngine{t: t, single: 1, username: "user", items: []fakeItem{{ID: "a", Title: "Private", Login: true}}}

	summary, err := newWorker(t, ctrl, eng, fakeThumbnailer{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Downloaded != 1 {
		t.Fatalf("expected one download, got %+v", summary)
	}
	if ctrl.Count("on_login_request") != 1 {
		t.Fatalf("expected one login request, got %d", ctrl.Count("on_login_request"))
	}
	if got := eng.downloads()[0].Options.Username; got != "user" {
		t.Fatalf("credentials not carried into download, got %q", got)
	}
	if len(ctrl.Errors()) != 0 {
		t.Fatalf("authentication errors must not be reported: %v", ctrl.Errors())
	}
}

func TestRunDeclinedLoginSkipsItem(t *testing.T) {
	dest := t.TempDir()
	ctrl := &testsupport.FakeController{
		Request: controller.Request{URL: "https://example.invalid/v", DownloadDir: dest},
	}
	eng := &fakeEngine{t: t, single: 1, username: "user", items: []fakeItem{{ID: "a", Title: "Private", Login: true}}}

	summary, err := newWorker(t, ctrl, eng, fakeThumbnailer{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Items != 0 || len(eng.downloads()) != 0 {
		t.Fatalf("expected nothing downloaded, got %+v", summary)
	}
	if ctrl.Count("on_login_request") != 1 {
		t.Fatalf("declined login must be asked once, got %d", ctrl.Count("on_login_request"))
	}
}

func TestRunItemFailureContinues(t *testing.T) {
	dest := t.TempDir()
	ctrl := &testsupport.FakeController{
		Request:  controller.Request{URL: "https://example.invalid/list", DownloadDir: dest},
		Playlist: true,
	}
	eng := &fakeEngine{t: t, single: 1, items: []fakeItem{
		{ID: "a", Title: "Broken", Fail: "This video is unavailable"},
		{ID: "b", Title: "Fine"},
	}}

	summary, err := newWorker(t, ctrl, eng, fakeThumbnailer{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Failed != 1 || summary.Downloaded != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	errs := ctrl.Errors()
	if len(errs) != 1 || !strings.Contains(errs[0], "unavailable") {
		t.Fatalf("expected engine error forwarded, got %v", errs)
	}
	if ends := progressEnds(ctrl); len(ends) != 1 || ends[0] != "Fine.mp4" {
		t.Fatalf("unexpected progress ends: %v", ends)
	}
	if _, err := os.Stat(filepath.Join(dest, "Broken.part")); err != nil {
		t.Fatalf("expected staging kept after failure: %v", err)
	}
}

func TestRunMissingTranscoderIsFatal(t *testing.T) {
	dest := t.TempDir()
	ctrl := &testsupport.FakeController{
		Request: controller.Request{URL: "https://example.invalid/v", DownloadDir: dest},
	}
	eng := &fakeEngine{t: t, single: 1, items: []fakeItem{{ID: "a", Title: "Only"}}}
	thumbs := fakeThumbnailer{err: services.Wrap(services.ErrExternalTool, "transcode", "convert", "not found", nil)}

	_, err := newWorker(t, ctrl, eng, thumbs).Run(context.Background())
	if err == nil || services.Classify(err) != services.TierWorker {
		t.Fatalf("expected worker-fatal error, got %v", err)
	}
	errs := ctrl.Errors()
	if len(errs) != 1 || errs[0] != "ERROR: 'ffmpeg' not found" {
		t.Fatalf("unexpected controller errors: %v", errs)
	}
	if ctrl.Count("on_progress_start") != 0 {
		t.Fatal("item must not start without a transcoder")
	}
}

func TestRunFailedConversionDropsThumbnail(t *testing.T) {
	dest := t.TempDir()
	ctrl := &testsupport.FakeController{
		Request: controller.Request{URL: "https://example.invalid/v", DownloadDir: dest},
	}
	eng := &fakeEngine{t: t, single: 1, items: []fakeItem{{ID: "a", Title: "Only"}}}

	if _, err := newWorker(t, ctrl, eng, fakeThumbnailer{err: transcode.ErrConversionFailed}).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, call := range ctrl.Calls() {
		if call.Method == "on_progress_start" && call.Args[3] != "" {
			t.Fatalf("expected empty thumbnail, got %v", call.Args[3])
		}
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ctrl := &testsupport.FakeController{
		Request: controller.Request{URL: "https://example.invalid/v", DownloadDir: t.TempDir()},
	}
	eng := &fakeEngine{t: t, single: 1, items: []fakeItem{{ID: "a", Title: "Only"}}}

	_, err := newWorker(t, ctrl, eng, fakeThumbnailer{}).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRunIgnoresPlaylistRecords(t *testing.T) {
	dest := t.TempDir()
	ctrl := &testsupport.FakeController{
		Request:  controller.Request{URL: "https://example.invalid/list", DownloadDir: dest},
		Playlist: true,
	}
	eng := &fakeEngine{t: t, single: 1, playlistRecord: true, items: []fakeItem{
		{ID: "a", Title: "First"},
		{ID: "b", Title: "Second"},
	}}

	summary, err := newWorker(t, ctrl, eng, fakeThumbnailer{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Items != 2 || summary.Downloaded != 2 {
		t.Fatalf("playlist record counted as an item: %+v", summary)
	}
	for _, call := range ctrl.Calls() {
		if call.Method == "on_progress_start" && call.Args[1] != 2 {
			t.Fatalf("unexpected progress total: %v", call.Args)
		}
	}
	if ends := progressEnds(ctrl); strings.Join(ends, ",") != "First.mp4,Second.mp4" {
		t.Fatalf("unexpected progress ends: %v", ends)
	}
	for _, inv := range eng.invocations {
		if inv.Options.SkipDownload && !slices.Contains(inv.Options.Args(), "--no-write-playlist-metafiles") {
			t.Fatalf("probe must disable playlist metafiles: %v", inv.Options.Args())
		}
	}
}

func TestRunCapsOutputTitleLength(t *testing.T) {
	dest := t.TempDir()
	ctrl := &testsupport.FakeController{
		Request: controller.Request{URL: "https://example.invalid/v", DownloadDir: dest},
	}
	long := strings.Repeat("Very long title ", 30)
	eng := &fakeEngine{t: t, single: 1, items: []fakeItem{{ID: "a", Title: long}}}

	if _, err := newWorker(t, ctrl, eng, fakeThumbnailer{}).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	ends := progressEnds(ctrl)
	if len(ends) != 1 {
		t.Fatalf("expected one published item, got %v", ends)
	}
	if stem := strings.TrimSuffix(ends[0], ".mp4"); len(stem) >= publish.MaxTitleBytes {
		t.Fatalf("output title is %d bytes: %q", len(stem), stem)
	}
}

func TestRunMissingEngineIsReported(t *testing.T) {
	dest := t.TempDir()
	ctrl := &testsupport.FakeController{
		Request: controller.Request{URL: "https://example.invalid/v", DownloadDir: dest},
	}
	missing := services.Wrap(services.ErrExternalTool, "engine", "run", "",
		&engine.MissingBinaryError{Binary: "yt-dlp", Err: os.ErrNotExist})
	eng := &fakeEngine{t: t, single: 1, runErr: missing, items: []fakeItem{{ID: "a", Title: "Only"}}}

	_, err := newWorker(t, ctrl, eng, fakeThumbnailer{}).Run(context.Background())
	if services.Classify(err) != services.TierWorker {
		t.Fatalf("expected worker-fatal error, got %v", err)
	}
	errs := ctrl.Errors()
	if len(errs) != 1 || errs[0] != "ERROR: 'yt-dlp' not found" {
		t.Fatalf("unexpected controller errors: %v", errs)
	}
}
