package ffmpeg

import "strings"

// ParseLogLevel extracts the log level from an engine stderr line.
// Lines look like "[info] message" or "[component @ 0x...] [level] message"
// when -loglevel level+info is in effect. Without a level prefix the line
// is info, unless it mentions an error, which is how the engine reports
// most demuxer and encoder failures in its default output.
func ParseLogLevel(line string) (level, msg string) {
	if level, msg, ok := bracketLevel(line); ok {
		return level, msg
	}
	if strings.Contains(line, "error") || strings.Contains(line, "Error") {
		return "error", line
	}
	return "info", line
}

func bracketLevel(line string) (level, msg string, ok bool) {
	if len(line) < 3 || line[0] != '[' {
		return "", "", false
	}

	end := strings.Index(line, "] ")
	if end == -1 {
		return "", "", false
	}

	if bracket := line[1:end]; isLogLevel(bracket) {
		return bracket, line[end+2:], true
	}

	// [component @ 0x...] [level] message keeps the component
	component := line[:end+2]
	rest := line[end+2:]
	if len(rest) > 2 && rest[0] == '[' {
		if next := strings.Index(rest, "] "); next != -1 && isLogLevel(rest[1:next]) {
			return rest[1:next], component + rest[next+2:], true
		}
	}

	return "", "", false
}

func isLogLevel(s string) bool {
	switch s {
	case "quiet", "panic", "fatal", "error", "warning", "info", "verbose", "debug", "trace":
		return true
	}
	return false
}
