package logging

import "sync"

// resetForTest clears the directory initialization state so tests can point
// the logger at a fresh temporary home directory.
func resetForTest() {
	initOnce = sync.Once{}
	initErr = nil
	logDir = ""
}
