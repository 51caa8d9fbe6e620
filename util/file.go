// Package util collects small filesystem helpers shared by the
// controller's command-line tooling.
package util

import "os"

// FileExists reports whether the named file or directory exists.
func FileExists(name string) bool {
	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}
