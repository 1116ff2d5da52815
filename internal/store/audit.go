// ABOUTME: Audit entry helpers shared by every store backend
// ABOUTME: Fills in generated IDs and timestamps before an entry is persisted

package store

import (
	"time"

	"github.com/google/uuid"
)

// prepareAuditEntry generates the ID and timestamp if not set.
func prepareAuditEntry(e *AuditEntry) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
}
