package hooks

import (
	"fmt"
	"time"
)

// EventName is the event string sent to subscribers, e.g. "package:publish".
type EventName string

const (
	EventPackagePublish   EventName = "package:publish"
	EventPackageUnpublish EventName = "package:unpublish"
	EventPackageTag       EventName = "package:tag"
	EventPackageTagRemoved EventName = "package:dist-tag-rm"
)

// HookEvent is the normalized view of one Change, carrying exactly the
// fields needed to build an outbound payload. It is embedded into both task
// kinds and never mutated after construction.
type HookEvent struct {
	Event    EventName `json:"event"`
	Fullname string    `json:"fullname"`
	ChangeID string    `json:"change_id"`
	Version  string    `json:"version,omitempty"`
	Tag      string    `json:"tag,omitempty"`
	// Time is the event timestamp in unix milliseconds. Retried deliveries
	// of the same logical event carry the same Time.
	Time int64 `json:"time"`
}

// NewPublishEvent builds the event for a newly published version.
func NewPublishEvent(fullname, changeID, version, tag string) HookEvent {
	return HookEvent{
		Event:    EventPackagePublish,
		Fullname: fullname,
		ChangeID: changeID,
		Version:  version,
		Tag:      tag,
		Time:     time.Now().UnixMilli(),
	}
}

// NewUnpublishEvent builds the event for a removed version.
func NewUnpublishEvent(fullname, changeID, version string) HookEvent {
	return HookEvent{
		Event:    EventPackageUnpublish,
		Fullname: fullname,
		ChangeID: changeID,
		Version:  version,
		Time:     time.Now().UnixMilli(),
	}
}

// NewTagEvent builds the event for a dist-tag pointed at a version.
func NewTagEvent(fullname, changeID, version, tag string) HookEvent {
	return HookEvent{
		Event:    EventPackageTag,
		Fullname: fullname,
		ChangeID: changeID,
		Version:  version,
		Tag:      tag,
		Time:     time.Now().UnixMilli(),
	}
}

// NewTagRemovedEvent builds the event for a removed dist-tag.
func NewTagRemovedEvent(fullname, changeID, tag string) HookEvent {
	return HookEvent{
		Event:    EventPackageTagRemoved,
		Fullname: fullname,
		ChangeID: changeID,
		Tag:      tag,
		Time:     time.Now().UnixMilli(),
	}
}

// FromChange derives a HookEvent from a change-log record. Unknown change
// types are a data error, surfaced to the caller rather than dropped.
func FromChange(c *Change, version, tag string) (HookEvent, error) {
	switch c.Type {
	case ChangeVersionAdded:
		return NewPublishEvent(c.TargetName, c.ChangeID, version, tag), nil
	case ChangeVersionRemoved:
		return NewUnpublishEvent(c.TargetName, c.ChangeID, version), nil
	case ChangeTagAdded:
		return NewTagEvent(c.TargetName, c.ChangeID, version, tag), nil
	case ChangeTagRemoved:
		return NewTagRemovedEvent(c.TargetName, c.ChangeID, tag), nil
	}
	return HookEvent{}, fmt.Errorf("unknown change type %q for change %s", c.Type, c.ChangeID)
}
