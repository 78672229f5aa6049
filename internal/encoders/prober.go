package encoders

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/smazurov/hlsfeed/internal/ffmpeg"
	"github.com/smazurov/hlsfeed/internal/logging"
)

// Default probe timeouts.
const (
	DefaultListTimeout = 5 * time.Second
	DefaultTestTimeout = 5 * time.Second
)

// Runner executes the engine and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// ProberOptions configures a Prober.
type ProberOptions struct {
	FFmpegPath  string
	DisableGPU  bool
	ListTimeout time.Duration
	TestTimeout time.Duration
	Runner      Runner
	Logger      logging.Logger

	// OnDetected is called once with the computed snapshot and how long probing took.
	OnDetected func(Snapshot, time.Duration)
}

// Prober detects which hardware encoder works on this machine.
// The probe runs once per Prober; every later call returns the cached snapshot.
type Prober struct {
	opts     ProberOptions
	logger   logging.Logger
	once     sync.Once
	snapshot Snapshot
}

// NewProber creates a prober. Zero-valued options get defaults.
func NewProber(opts ProberOptions) *Prober {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath, _ = ffmpeg.ResolveBinary("")
	}
	if opts.ListTimeout <= 0 {
		opts.ListTimeout = DefaultListTimeout
	}
	if opts.TestTimeout <= 0 {
		opts.TestTimeout = DefaultTestTimeout
	}
	if opts.Runner == nil {
		opts.Runner = execRunner{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("encoders")
	}
	return &Prober{opts: opts, logger: logger}
}

// GPUDisabledByEnv reports whether NO_GPU=true or USE_GPU=false is set.
func GPUDisabledByEnv() bool {
	return os.Getenv("NO_GPU") == "true" || os.Getenv("USE_GPU") == "false"
}

// Detect returns the capability snapshot, probing on first use.
// Callers that arrive while the probe is running block until it finishes.
// Detect never fails; the worst outcome is the CPU snapshot.
func (p *Prober) Detect(ctx context.Context) Snapshot {
	p.once.Do(func() {
		// A caller's cancellation must not poison the cached result for everyone else
		probeCtx := context.WithoutCancel(ctx)

		start := time.Now()
		p.snapshot = p.probe(probeCtx)
		elapsed := time.Since(start)

		p.logger.Info("Encoder capabilities detected",
			"type", p.snapshot.Type,
			"encoder", p.snapshot.Encoder,
			"hwaccel_confirmed", p.snapshot.HWAccelConfirmed,
			"duration", elapsed)

		if p.opts.OnDetected != nil {
			p.opts.OnDetected(p.snapshot, elapsed)
		}
	})
	return p.snapshot
}

func (p *Prober) probe(ctx context.Context) Snapshot {
	if p.opts.DisableGPU || GPUDisabledByEnv() {
		p.logger.Info("Hardware acceleration disabled, using software encoder")
		return CPUSnapshot()
	}

	list, err := p.listEncoders(ctx)
	if err != nil {
		p.logger.Warn("Encoder introspection failed, using software encoder", "error", err)
		return CPUSnapshot()
	}

	snapshot := CPUSnapshot()
	snapshot.Available = hardwareSetFromList(list)
	p.logger.Debug("Hardware encoders compiled in", "available", snapshot.Available)

	for _, c := range probeOrder {
		if !c.present(snapshot.Available) {
			continue
		}

		if err := p.testEncoder(ctx, c.encoder); err != nil {
			p.logger.Warn("Encoder present but not functional", "vendor", c.vendor, "encoder", c.encoder, "error", err)
			continue
		}

		snapshot.Type = c.vendor
		snapshot.Encoder = c.encoder
		snapshot.HWAccelConfirmed = true
		return snapshot
	}

	return snapshot
}

func (p *Prober) listEncoders(ctx context.Context) (*EncoderList, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.ListTimeout)
	defer cancel()

	output, err := p.opts.Runner.Run(ctx, p.opts.FFmpegPath, ffmpeg.BuildEncodersListArgs()...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("listing encoders timed out after %s", p.opts.ListTimeout)
		}
		return nil, fmt.Errorf("failed to list encoders: %w", err)
	}
	return ParseEncoderList(string(output))
}

func (p *Prober) testEncoder(ctx context.Context, encoder string) error {
	ctx, cancel := context.WithTimeout(ctx, p.opts.TestTimeout)
	defer cancel()

	output, err := p.opts.Runner.Run(ctx, p.opts.FFmpegPath, ffmpeg.BuildEncoderTestArgs(encoder)...)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("encoder test timed out after %s", p.opts.TestTimeout)
		}
		return fmt.Errorf("%w: %s", err, lastLine(output))
	}
	return nil
}

// lastLine returns the final non-empty line of engine output, which is
// where it prints the reason an encoder could not be opened.
func lastLine(output []byte) string {
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
