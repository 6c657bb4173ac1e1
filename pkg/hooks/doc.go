// Package hooks holds the domain model of the change-notification core: the
// append-only Change record, the Hook subscription and its matching rules,
// the normalized HookEvent derived from a change, the outbound Envelope wire
// contract, and HMAC request signing.
//
// Matching rules by hook type:
//
//	package  exact full-name match
//	scope    any package under the subscribed scope ("@corp" matches "@corp/x")
//	owner    any package owned by the hook's owner
//
// The outbound call is always POST with an x-npm-signature header computed
// over the serialized Envelope with the hook's secret:
//
//	body, _ := env.Serialize()
//	req.Header.Set(hooks.SignatureHeader, hooks.Sign(body, hook.Secret))
package hooks
