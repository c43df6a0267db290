package progress

import (
	"testing"

	"vidworker/internal/engine"
	"vidworker/internal/testsupport"
)

func f(v float64) *float64 { return &v }

func TestNormalizeBytes(t *testing.T) {
	ev, ok := Normalize(engine.RawProgress{
		Status:             "downloading",
		Filename:           "a.mp4",
		DownloadedBytes:    f(25),
		TotalBytesEstimate: f(100),
		ETA:                f(7),
		Speed:              f(1234.6),
	})
	if !ok {
		t.Fatal("expected event")
	}
	if ev.Progress != 0.25 || ev.Bytes != 25 || ev.BytesTotal != 100 {
		t.Fatalf("unexpected byte progress: %+v", ev)
	}
	if ev.ETA != 7 || ev.Speed != 1235 {
		t.Fatalf("expected eta 7 and rounded speed 1235, got %+v", ev)
	}
}

func TestNormalizePrefersTotalBytes(t *testing.T) {
	ev, _ := Normalize(engine.RawProgress{
		Status:             "downloading",
		DownloadedBytes:    f(50),
		TotalBytes:         f(200),
		TotalBytesEstimate: f(100),
	})
	if ev.BytesTotal != 200 || ev.Progress != 0.25 {
		t.Fatalf("expected total_bytes to win, got %+v", ev)
	}
}

func TestNormalizeFragments(t *testing.T) {
	ev, ok := Normalize(engine.RawProgress{
		Status:          "downloading",
		DownloadedBytes: f(4096),
		FragmentIndex:   f(3),
		FragmentCount:   f(4),
	})
	if !ok {
		t.Fatal("expected event")
	}
	if ev.Progress != 0.75 || ev.Bytes != 4096 || ev.BytesTotal != -1 {
		t.Fatalf("unexpected fragment progress: %+v", ev)
	}
	if ev.ETA != -1 || ev.Speed != -1 {
		t.Fatalf("expected unknown eta and speed, got %+v", ev)
	}
}

func TestNormalizeUnknownProgress(t *testing.T) {
	ev, ok := Normalize(engine.RawProgress{Status: "downloading", DownloadedBytes: f(10)})
	if !ok || ev.Progress != -1 || ev.Bytes != 10 {
		t.Fatalf("unexpected event: %+v ok=%v", ev, ok)
	}
}

func TestNormalizeFinished(t *testing.T) {
	ev, ok := Normalize(engine.RawProgress{
		Status:          "finished",
		DownloadedBytes: f(100),
		TotalBytes:      f(100),
		ETA:             f(0),
		Speed:           f(55),
	})
	if !ok {
		t.Fatal("expected event")
	}
	if ev.Progress != -1 || ev.ETA != -1 || ev.Speed != -1 {
		t.Fatalf("finished must reset progress, eta and speed: %+v", ev)
	}
	if ev.Bytes != 100 || ev.BytesTotal != 100 {
		t.Fatalf("finished keeps byte counts: %+v", ev)
	}
}

func TestNormalizeDropsOtherStatuses(t *testing.T) {
	if _, ok := Normalize(engine.RawProgress{Status: "error"}); ok {
		t.Fatal("expected error status to be dropped")
	}
}

func TestReporterForwardsEvents(t *testing.T) {
	ctrl := &testsupport.FakeController{}
	reporter := NewReporter(ctrl, nil)
	if err := reporter.Report(engine.RawProgress{Status: "downloading", DownloadedBytes: f(1), TotalBytes: f(2)}); err != nil {
		t.Fatalf("Report: %v", err)
	}
	if err := reporter.Report(engine.RawProgress{Status: "processing"}); err != nil {
		t.Fatalf("Report: %v", err)
	}
	if n := ctrl.Count("on_load_progress"); n != 1 {
		t.Fatalf("expected one progress event, got %d", n)
	}
}
