package hooks

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// HookType determines how a hook's Name is matched against mutated targets.
type HookType string

const (
	// HookTypePackage subscribes to a single package by full name.
	HookTypePackage HookType = "package"
	// HookTypeScope subscribes to every package under a scope, e.g. "@cnpmcore".
	HookTypeScope HookType = "scope"
	// HookTypeOwner subscribes to every package owned by the hook's owner.
	HookTypeOwner HookType = "owner"
)

// Valid reports whether t is a known hook type.
func (t HookType) Valid() bool {
	switch t {
	case HookTypePackage, HookTypeScope, HookTypeOwner:
		return true
	}
	return false
}

// Hook is a webhook subscription. Deliveries read the hook snapshot at
// dispatch time, so endpoint/secret changes never apply to in-flight tasks.
type Hook struct {
	HookID    string    `json:"hook_id"`
	Type      HookType  `json:"type"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	Endpoint  string    `json:"endpoint"`
	Secret    string    `json:"secret,omitempty"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewHook creates an enabled hook subscription.
func NewHook(hookType HookType, ownerID, name, endpoint, secret string) (*Hook, error) {
	if !hookType.Valid() {
		return nil, fmt.Errorf("invalid hook type %q", hookType)
	}
	if endpoint == "" {
		return nil, fmt.Errorf("hook endpoint is required")
	}
	if name == "" {
		return nil, fmt.Errorf("hook name is required")
	}
	now := time.Now().UTC()
	return &Hook{
		HookID:    uuid.NewString(),
		Type:      hookType,
		OwnerID:   ownerID,
		Name:      name,
		Endpoint:  endpoint,
		Secret:    secret,
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Matches reports whether the hook's scope subsumes the given target.
// ownerID may be empty when the target's owner is unknown; owner hooks
// never match in that case.
func (h *Hook) Matches(targetName, ownerID string) bool {
	switch h.Type {
	case HookTypePackage:
		return h.Name == targetName
	case HookTypeScope:
		return strings.HasPrefix(targetName, h.Name+"/")
	case HookTypeOwner:
		return ownerID != "" && h.OwnerID == ownerID
	}
	return false
}

// ScopeOf extracts the scope portion of a package full name, or "" when the
// name is unscoped.
func ScopeOf(fullname string) string {
	if !strings.HasPrefix(fullname, "@") {
		return ""
	}
	if i := strings.Index(fullname, "/"); i > 0 {
		return fullname[:i]
	}
	return ""
}
