package platform

import "deskbroker/internal/dispatch"

// NewKeySender returns the dispatch.KeySender for the running GOOS,
// selected at compile time by the build-tagged files in this package.
func NewKeySender() dispatch.KeySender {
	return newKeySender()
}
