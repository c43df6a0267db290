package publish

import (
	"os"
	"path/filepath"
	"strings"

	"vidworker/internal/controller"
)

const audioExt = ".mp3"

// FindExisting looks in dir for a finished download named outputTitle that
// matches mode: audio requires a .mp3 file, video accepts any other
// extension. Only regular files count. It returns the file name.
func FindExisting(dir, outputTitle string, mode controller.Mode) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, outputTitle+".") {
			continue
		}
		ext := filepath.Ext(name)
		if strings.TrimSuffix(name, ext) != outputTitle {
			continue
		}
		if strings.EqualFold(ext, audioExt) != mode.IsAudio() {
			continue
		}
		if !isRegular(filepath.Join(dir, name)) {
			continue
		}
		return name, true
	}
	return "", false
}

func isRegular(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
