package main

import "fmt"

// cmdErrorf formats a command-level error, mirroring the teacher's
// practice of wrapping plain fmt.Errorf calls rather than introducing
// a custom error type for CLI-surfaced failures.
func cmdErrorf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}
