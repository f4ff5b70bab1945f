package utils

import (
	"fmt"
	"os"
)

// EnsureDirectories creates every directory in dirs, parents included.
func EnsureDirectories(dirs ...string) error {
	for _, d := range dirs {
		if d == "" {
			continue
		}
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", d, err)
		}
	}
	return nil
}
