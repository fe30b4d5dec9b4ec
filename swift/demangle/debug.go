package demangle

import (
	"fmt"
	"os"
)

var debugEnabled = os.Getenv("SWIFT_REFLECTION_DEBUG") != ""

func debugf(format string, args ...any) {
	if debugEnabled {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}
