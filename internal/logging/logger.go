package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Logger is the logging surface components depend on. *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config is the [logging] table of the config file.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

type module struct {
	logger *slog.Logger
	level  *slog.LevelVar
}

// registry owns every module logger. Loggers handed out before Initialize
// keep their output format but follow level changes through the shared LevelVar.
type registry struct {
	mu          sync.RWMutex
	config      Config
	initialized bool
	global      slog.LevelVar
	modules     map[string]*module
	out         io.Writer
}

func newRegistry(out io.Writer) *registry {
	return &registry{modules: make(map[string]*module), out: out}
}

var std = newRegistry(os.Stdout)

// Initialize applies config to all module loggers, existing and future.
func Initialize(config Config) {
	std.initialize(config)
}

// GetLogger returns the logger for module, creating it if needed.
func GetLogger(name string) *slog.Logger {
	return std.get(name)
}

// SetModuleLevel changes one module's level at runtime.
// Returns false when the level string is not recognised.
func SetModuleLevel(name, level string) bool {
	return std.setLevel(name, level)
}

func (r *registry) initialize(config Config) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.config = config
	r.initialized = true
	r.global.Set(levelOr(config.Level, slog.LevelInfo))

	for name, m := range r.modules {
		m.level.Set(r.levelFor(name))
		m.logger = slog.New(r.handler(m.level)).With("module", name)
	}

	slog.SetDefault(slog.New(r.handler(&r.global)))
}

func (r *registry) get(name string) *slog.Logger {
	r.mu.RLock()
	m, ok := r.modules[name]
	r.mu.RUnlock()
	if ok {
		return m.logger
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.modules[name]; ok {
		return m.logger
	}

	m = &module{level: &slog.LevelVar{}}
	m.level.Set(r.levelFor(name))
	m.logger = slog.New(r.handler(m.level)).With("module", name)
	r.modules[name] = m
	return m.logger
}

func (r *registry) setLevel(name, level string) bool {
	parsed := parseLevel(level)
	if parsed == nil {
		return false
	}
	r.get(name)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[name].level.Set(*parsed)
	return true
}

// levelFor resolves a module's level: its own entry, else the global level,
// else info. Callers hold mu.
func (r *registry) levelFor(name string) slog.Level {
	if !r.initialized {
		return slog.LevelInfo
	}
	global := levelOr(r.config.Level, slog.LevelInfo)
	return levelOr(r.config.Modules[name], global)
}

// handler writes to the registry's output and, when journald is present,
// to the journal as well.
func (r *registry) handler(level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var out slog.Handler
	if r.config.Format == "json" {
		out = slog.NewJSONHandler(r.out, opts)
	} else {
		out = slog.NewTextHandler(r.out, opts)
	}

	if r.out != os.Stdout {
		return out
	}

	var handlers []slog.Handler
	if isStdoutAvailable() {
		handlers = append(handlers, out)
	}
	if IsJournalAvailable() {
		handlers = append(handlers, NewJournalHandler(level))
	}
	if len(handlers) == 0 {
		return out
	}
	return Fanout(handlers...)
}

// isStdoutAvailable checks if stdout is connected to a terminal, pipe, socket, or file.
func isStdoutAvailable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return mode&(os.ModeCharDevice|os.ModeNamedPipe|os.ModeSocket) != 0 || mode.IsRegular()
}

func levelOr(level string, fallback slog.Level) slog.Level {
	if parsed := parseLevel(level); parsed != nil {
		return *parsed
	}
	return fallback
}

// parseLevel converts a config level name to slog.Level, or nil if unknown.
func parseLevel(level string) *slog.Level {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		return nil
	}
	return &l
}
