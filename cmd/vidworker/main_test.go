package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vidworker/internal/staging"
	"vidworker/internal/testsupport"
)

type cliTestEnv struct {
	baseDir    string
	binDir     string
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	binDir := filepath.Join(base, "bin")
	testsupport.WriteScript(t, filepath.Join(binDir, "yt-dlp"), "if [ \"$1\" = \"--version\" ]; then echo 2026.09.01; fi\nexit 0\n")
	testsupport.WriteScript(t, filepath.Join(binDir, "ffmpeg"), "echo 'ffmpeg version 7.1'\nexit 0\n")

	env := &cliTestEnv{
		baseDir:    base,
		binDir:     binDir,
		configPath: filepath.Join(base, "config.toml"),
	}
	env.writeConfig(t, filepath.Join(binDir, "yt-dlp"), filepath.Join(binDir, "ffmpeg"))
	return env
}

func (e *cliTestEnv) writeConfig(t *testing.T, engineBinary, transcoderBinary string) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
temp_dir = %q

[engine]
binary = %q

[transcoder]
binary = %q

[locking]
retry_delay_ms = 10

[logging]
format = "json"
level = "debug"
`, filepath.Join(e.baseDir, "tmp"), engineBinary, transcoderBinary)
	if err := os.MkdirAll(filepath.Join(e.baseDir, "tmp"), 0o755); err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	if err := os.WriteFile(e.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath, stdin string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestCLIRunSpeaksControllerProtocol(t *testing.T) {
	env := setupCLITestEnv(t)
	dest := filepath.Join(env.baseDir, "downloads")

	replies := strings.Join([]string{
		`{"result":"https://example.invalid/watch"}`,
		fmt.Sprintf(`{"result":%q}`, dest),
		`{"result":"video"}`,
		`{"result":720}`,
		`{"result":false}`,
	}, "\n") + "\n"

	out, stderr, err := runCLI(t, nil, env.configPath, replies)
	if err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, stderr)
	}
	for _, method := range []string{"get_url", "get_download_dir", "get_mode", "get_resolution", "get_prefer_mpeg"} {
		if !strings.Contains(out, `"method":"`+method+`"`) {
			t.Fatalf("expected %s request in %q", method, out)
		}
	}
	if strings.Contains(out, "on_progress_start") {
		t.Fatalf("nothing to download, got %q", out)
	}
	if info, err := os.Stat(dest); err != nil || !info.IsDir() {
		t.Fatalf("expected download folder created: %v", err)
	}
	if !strings.Contains(stderr, "dependency_snapshot") {
		t.Fatalf("expected structured logs on stderr, got %q", stderr)
	}
}

func TestCLIRunFailsOnClosedController(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"run"}, env.configPath, "")
	if err == nil {
		t.Fatal("expected protocol error when stdin is closed")
	}
}

func TestCLIDepsReportsVersions(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"deps"}, env.configPath, "")
	if err != nil {
		t.Fatalf("deps: %v", err)
	}
	if !strings.Contains(out, "2026.09.01") || !strings.Contains(out, "ffmpeg version 7.1") {
		t.Fatalf("unexpected deps output: %q", out)
	}
}

func TestCLIDepsFailsWhenMissing(t *testing.T) {
	env := setupCLITestEnv(t)
	env.writeConfig(t, filepath.Join(env.binDir, "missing-yt-dlp"), filepath.Join(env.binDir, "ffmpeg"))

	out, _, err := runCLI(t, []string{"deps", "--json"}, env.configPath, "")
	if err == nil {
		t.Fatal("expected error for missing dependency")
	}
	if !strings.Contains(out, `"ready": false`) {
		t.Fatalf("unexpected json output: %q", out)
	}
}

func TestCLIStagingListAndClean(t *testing.T) {
	env := setupCLITestEnv(t)
	dest := filepath.Join(env.baseDir, "downloads")
	stale := filepath.Join(dest, "Old Video.part")
	testsupport.WriteFile(t, filepath.Join(stale, "a.22.mp4.part"), 2048)
	if err := staging.Mark(stale); err != nil {
		t.Fatalf("mark staging: %v", err)
	}
	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	out, _, err := runCLI(t, []string{"staging", "list", dest}, env.configPath, "")
	if err != nil {
		t.Fatalf("staging list: %v", err)
	}
	if !strings.Contains(out, "Old Video") || !strings.Contains(out, "2.0 KiB") {
		t.Fatalf("unexpected staging list output: %q", out)
	}

	out, _, err = runCLI(t, []string{"staging", "clean", "--older-than", "1h", dest}, env.configPath, "")
	if err != nil {
		t.Fatalf("staging clean: %v", err)
	}
	if !strings.Contains(out, "Removed 1 stale directories") {
		t.Fatalf("unexpected staging clean output: %q", out)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("expected stale staging directory removed, stat err=%v", err)
	}
}

func TestCLIConfigInit(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "config.toml")

	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "", "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Fatalf("unexpected config init output: %q", out)
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, "", ""); err == nil {
		t.Fatal("expected refusal to overwrite existing config")
	}

	out, _, err = runCLI(t, []string{"config", "validate"}, target, "")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out, "Configuration valid") {
		t.Fatalf("unexpected validate output: %q", out)
	}
}

func TestCLIConfigShowPrintsEffectiveValues(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "show"}, env.configPath, "")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(out, "[engine]") || !strings.Contains(out, "retry_delay_ms = 10") {
		t.Fatalf("unexpected config show output: %q", out)
	}
}
