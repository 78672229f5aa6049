// Package process provides subprocess lifecycle management.
//
// Process wraps os/exec for a single subprocess started from an argument
// vector (never a shell string):
//   - Graceful shutdown with SIGTERM to the process group
//   - Force kill with SIGKILL once a grace period passes, skipped if the
//     process already exited
//   - Output streaming with pluggable log parsing
//   - The last DefaultTailLines output lines kept for crash reports
//
// Example:
//
//	p := process.New("lobby", "ffmpeg", args, logger)
//	p.SetLogParser(logging.GetLogger("ffmpeg"), ffmpeg.ParseLogLevel)
//	if err := p.Start(); err != nil {
//	    return err
//	}
//	defer p.StopAndWait(2*time.Second, 5*time.Second)
//	<-p.Done()
package process
