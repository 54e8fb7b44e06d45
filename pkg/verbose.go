package filehashcache

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Logger writes leveled verbose output and gated debug output.
// Each cache carries its own Logger; there is no process-wide level.
type Logger struct {
	mu         sync.Mutex
	out        io.Writer
	level      int
	debugFlags map[string]bool
}

// NewLogger creates a logger writing to out (stderr when nil)
func NewLogger(out io.Writer, level int, debug string) *Logger {
	if out == nil {
		out = os.Stderr
	}
	return &Logger{out: out, level: level, debugFlags: parseDebugFlags(debug)}
}

// nopLogger discards everything.
func nopLogger() *Logger {
	return &Logger{out: io.Discard}
}

// Level returns the configured verbose level
func (l *Logger) Level() int {
	return l.level
}

// VerboseLog logs a message at the specified verbose level
func (l *Logger) VerboseLog(level int, format string, args ...interface{}) {
	if l.level < level {
		return
	}
	l.write(fmt.Sprintf("[VERBOSE-%d] ", level), format, args...)
}

// DebugLog logs a message when the named debug flag is enabled
func (l *Logger) DebugLog(flag string, format string, args ...interface{}) {
	if !l.IsDebugEnabled(flag) {
		return
	}
	l.write("["+strings.ToUpper(flag)+"] ", format, args...)
}

// IsDebugEnabled returns true if the specified debug flag is enabled
func (l *Logger) IsDebugEnabled(flag string) bool {
	if l.debugFlags == nil {
		return false
	}
	return l.debugFlags[strings.ToLower(flag)]
}

func (l *Logger) write(prefix, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprint(l.out, prefix+msg)
}

// parseDebugFlags parses a comma-separated flag list.
// Supports both simple flags ("engine,combo") and key:value format ("engine:true,combo:false")
func parseDebugFlags(flagsStr string) map[string]bool {
	debugFlags := make(map[string]bool)
	if flagsStr == "" {
		return debugFlags
	}

	for _, flag := range strings.Split(flagsStr, ",") {
		flag = strings.TrimSpace(flag)
		if flag == "" {
			continue
		}

		parts := strings.SplitN(flag, ":", 2)
		flagName := strings.ToLower(parts[0])
		flagValue := true

		if len(parts) > 1 {
			switch strings.ToLower(parts[1]) {
			case "false", "0", "no", "off":
				flagValue = false
			}
		}

		debugFlags[flagName] = flagValue
	}
	return debugFlags
}
