package domain

import (
	"time"

	"github.com/google/uuid"
)

type MessageID string

// Location is the sender position attached to every voice message.
// The zero value is what devices send when no fix is available.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Message is an inbound voice message surfaced to the UI.
// FilePath may still be growing when the message is first emitted.
type Message struct {
	ID         MessageID `json:"id"`
	EndpointID PeerID    `json:"endpointId"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	FilePath   string    `json:"filePath"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewMessage is a tiny helper to avoid ad-hoc struct literals in the engine.
func NewMessage(from PeerID, loc Location, filePath string, at time.Time) Message {
	return Message{
		ID:         MessageID(uuid.NewString()),
		EndpointID: from,
		Latitude:   loc.Latitude,
		Longitude:  loc.Longitude,
		FilePath:   filePath,
		Timestamp:  at,
	}
}

func (m Message) Location() Location {
	return Location{Latitude: m.Latitude, Longitude: m.Longitude}
}
