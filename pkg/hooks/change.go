package hooks

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ChangeType identifies the kind of registry mutation a Change records.
type ChangeType string

const (
	ChangeVersionAdded ChangeType = "PACKAGE_VERSION_ADDED"
	ChangeTagAdded     ChangeType = "PACKAGE_TAG_ADDED"
	ChangeVersionRemoved ChangeType = "PACKAGE_VERSION_REMOVED"
	ChangeTagRemoved     ChangeType = "PACKAGE_TAG_REMOVED"
)

// Change is one immutable record in the registry change log. Once appended
// it is never updated or deleted; consumers replay from it.
type Change struct {
	// Seq is the append-order key, assigned by the store on insert.
	Seq        int64           `json:"seq"`
	ChangeID   string          `json:"change_id"`
	Type       ChangeType      `json:"type"`
	TargetName string          `json:"target_name"`
	Data       json.RawMessage `json:"data"`
	CreatedAt  time.Time       `json:"created_at"`
}

// NewChange creates an unsaved Change with a fresh id. Seq stays zero until
// the change log assigns it.
func NewChange(changeType ChangeType, targetName string, data json.RawMessage) *Change {
	return &Change{
		ChangeID:   uuid.NewString(),
		Type:       changeType,
		TargetName: targetName,
		Data:       data,
		CreatedAt:  time.Now().UTC(),
	}
}
