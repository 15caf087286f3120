// Package protocol implements the voice message framing carried inside
// discrete transport payloads: a START header with the sender location,
// raw audio BODY payloads and an END marker.
package protocol
