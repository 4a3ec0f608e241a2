package deps

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// ResolveFFprobe picks the ffprobe binary to run. A configured value other
// than the bare name wins; otherwise an ffprobe next to the resolved ffmpeg
// is preferred over PATH lookup.
func ResolveFFprobe(ffmpegBinary, ffprobeBinary string) string {
	configured := strings.TrimSpace(ffprobeBinary)
	if configured != "" && configured != "ffprobe" && configured != executableName("ffprobe") {
		return configured
	}
	if sibling, ok := siblingOf(ffmpegBinary, "ffprobe"); ok {
		return sibling
	}
	return "ffprobe"
}

func siblingOf(binary, name string) (string, bool) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return "", false
	}
	resolved, err := exec.LookPath(binary)
	if err != nil {
		return "", false
	}
	candidate := filepath.Join(filepath.Dir(resolved), executableName(name))
	info, err := os.Stat(candidate)
	if err != nil || info.IsDir() {
		return "", false
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0o111 == 0 {
		return "", false
	}
	return candidate, true
}

func executableName(base string) string {
	if runtime.GOOS == "windows" {
		return base + ".exe"
	}
	return base
}
