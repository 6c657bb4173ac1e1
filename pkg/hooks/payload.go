package hooks

import (
	"encoding/json"
)

// Owner identifies the subscriber in the outbound envelope.
type Owner struct {
	Username string `json:"username"`
}

// ChangeDetail is the change sub-object of the envelope. Field presence
// follows the originating event type: publish events carry Version,
// dist-tag events carry DistTag, and a publish with a tag carries both.
type ChangeDetail struct {
	Version string `json:"version,omitempty"`
	DistTag string `json:"dist-tag,omitempty"`
}

// Envelope is the wire contract of the outbound webhook call. The field
// set and JSON names are fixed; subscribers verify x-npm-signature over
// the serialized form.
type Envelope struct {
	Event     EventName       `json:"event"`
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Version   string          `json:"version,omitempty"`
	DistTag   string          `json:"dist-tag,omitempty"`
	HookOwner Owner           `json:"hookOwner"`
	Payload   json.RawMessage `json:"payload"`
	Change    ChangeDetail    `json:"change"`
	Time      int64           `json:"time"`
}

// BuildEnvelope assembles the outbound payload for one delivery. username is
// the resolved name of the hook's owner, and payload is the event-specific
// detail object; when payload is nil a minimal one is derived from the event
// so subscribers always receive a payload field.
func BuildEnvelope(hook *Hook, event HookEvent, username string, payload json.RawMessage) *Envelope {
	if payload == nil {
		payload, _ = json.Marshal(map[string]string{
			"name":    event.Fullname,
			"version": event.Version,
		})
	}
	env := &Envelope{
		Event:     event.Event,
		Name:      event.Fullname,
		Type:      string(hook.Type),
		Version:   event.Version,
		DistTag:   event.Tag,
		HookOwner: Owner{Username: username},
		Payload:   payload,
		Change: ChangeDetail{
			Version: event.Version,
			DistTag: event.Tag,
		},
		Time: event.Time,
	}
	return env
}

// Serialize renders the envelope to the exact bytes that get signed and sent.
func (e *Envelope) Serialize() ([]byte, error) {
	return json.Marshal(e)
}
