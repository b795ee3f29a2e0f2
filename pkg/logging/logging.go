package logging

import (
	"log"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// DebugEnabled controls whether or not Debug/Debugf/Debugln output is
// emitted. It is initialized at init time from the MUXSTREAM_DEBUG
// environment variable; muxctl also enables it when its configured log
// level is debug or trace.
var DebugEnabled bool

func init() {
	// Set the global logger to use standard output.
	log.SetOutput(os.Stdout)

	// Determine whether debugging output is enabled.
	DebugEnabled = os.Getenv("MUXSTREAM_DEBUG") == "1"

	// Suppress colorized Warn/Error output when standard output isn't a
	// terminal (e.g. piped into a file or another process).
	fd := os.Stdout.Fd()
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		color.NoColor = true
	}
}
