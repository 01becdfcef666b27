package widgetsession

import (
	"fmt"
	"time"

	"github.com/VirtuFitHQ/VirtuFit/internal/pkg/cache"
)

// Cache key format for the session status mirror
const SessionStatusKeyFormat = "widget:session:status:%s" // Format: widget:session:status:<id>

const statusMirrorTTL = time.Hour

// Cache accessors as variables so tests can stub the cache layer.
var (
	GetCacheImplementation = cache.Get
	SetCacheImplementation = cache.Set
	DelCacheImplementation = cache.Delete
)

// SetSessionStatus mirrors the session status into the cache so pollers and
// the SSE stream do not hit the database on every read.
func SetSessionStatus(sessionID string, status string) error {
	if sessionID == "" {
		return nil
	}
	key := fmt.Sprintf(SessionStatusKeyFormat, sessionID)
	return SetCacheImplementation(key, status, statusMirrorTTL)
}

// GetSessionStatus reads the mirrored status. An empty string with nil error
// means the mirror has no entry and the database is authoritative.
func GetSessionStatus(sessionID string) (string, error) {
	if sessionID == "" {
		return "", nil
	}
	key := fmt.Sprintf(SessionStatusKeyFormat, sessionID)
	status, err := GetCacheImplementation(key)
	if err != nil {
		return "", err
	}
	return status, nil
}

// ClearSessionStatus drops the mirror entry.
func ClearSessionStatus(sessionID string) error {
	if sessionID == "" {
		return nil
	}
	key := fmt.Sprintf(SessionStatusKeyFormat, sessionID)
	return DelCacheImplementation(key)
}
