// Package platform supplies the scheduler's OSCollaborator: the one
// piece of the broker that necessarily differs per operating system,
// since "which window has focus" has no portable API.
package platform

import "deskbroker/internal/scheduler"

// NewForegroundWatcher returns the OSCollaborator for the running GOOS,
// selected at compile time by the build-tagged files in this package.
func NewForegroundWatcher() scheduler.OSCollaborator {
	return newForegroundWatcher()
}
