package misc

import (
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// LogSavingCredentials emits a consistent log message when persisting auth
// material. Cleaning the path keeps the message stable when callers pass
// redundant separators.
func LogSavingCredentials(path string) {
	if path == "" {
		return
	}
	log.Debugf("saved credentials to %s", filepath.Clean(path))
}
