package debug

import (
	"fmt"
	"time"

	"github.com/energy-linkage/internal/logging"
)

// DebugHeader marks the start of a traced section if debugging is enabled
func DebugHeader(enabled bool) {
	if enabled {
		logging.Default().Debug().Msg("=== DEBUG START ===")
	}
}

// DebugFooter marks the end of a traced section if debugging is enabled
func DebugFooter(enabled bool) {
	if enabled {
		logging.Default().Debug().Msg("=== DEBUG END ===")
	}
}

// DebugOutput writes a formatted debug line if debugging is enabled.
func DebugOutput(enabled bool, format string, args ...interface{}) {
	if enabled {
		logging.Default().Debug().Str("trace", "debug").Msg(fmt.Sprintf(format, args...))
	}
}

// DebugTiming logs the duration of an operation if debugging is enabled
func DebugTiming(enabled bool, operation string) func() {
	if !enabled {
		return func() {}
	}

	start := time.Now()
	DebugOutput(enabled, "Starting: %s", operation)

	return func() {
		DebugOutput(enabled, "Completed: %s (took %v)", operation, time.Since(start))
	}
}
