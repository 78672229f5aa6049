package ffmpeg

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// Binary sources reported by ResolveBinary.
const (
	SourceOverride = "override"
	SourceEnv      = "env"
	SourceBundled  = "bundled"
	SourcePath     = "path"
)

// BinaryEnv names the environment variable that pins the engine binary.
const BinaryEnv = "FFMPEG_PATH"

// BinaryName returns the engine executable name for the current platform.
func BinaryName() string {
	if runtime.GOOS == "windows" {
		return "ffmpeg.exe"
	}
	return "ffmpeg"
}

// ResolveBinary picks the engine binary. An explicit override wins, then
// FFMPEG_PATH, then a copy bundled next to the executable or in ./bin,
// then whatever is on PATH.
func ResolveBinary(override string) (path, source string) {
	if override != "" {
		return override, SourceOverride
	}
	if env := os.Getenv(BinaryEnv); env != "" {
		return env, SourceEnv
	}

	name := BinaryName()
	for _, candidate := range bundledCandidates(name) {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, SourceBundled
		}
	}

	if found, err := exec.LookPath(name); err == nil {
		return found, SourcePath
	}
	return name, SourcePath
}

func bundledCandidates(name string) []string {
	var candidates []string
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		candidates = append(candidates,
			filepath.Join(dir, "bin", name),
			filepath.Join(dir, name),
		)
	}
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, "bin", name))
	}
	return candidates
}
