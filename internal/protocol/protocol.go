package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/manpreetbhatti/inkwell/internal/stroke"
)

// Represents the kind of stroke event carried by a message
type EventType string

const (
	// Carries the sender's entire current stroke list
	EventAddStrokes EventType = "add_strokes"

	// Sender dropped its last stroke
	EventUndoStroke EventType = "undo_stroke"

	// Sender cleared its drawing
	EventDeleteStrokes EventType = "delete_strokes"
)

var ErrMalformed = errors.New("malformed message")

func (t EventType) Known() bool {
	switch t {
	case EventAddStrokes, EventUndoStroke, EventDeleteStrokes:
		return true
	}
	return false
}

// Message is one broadcast event. ID is the sender's peer id, filled in by the
// relay; outbound messages leave it empty.
type Message struct {
	ID        string
	EventType EventType
	Strokes   []stroke.Stroke
}

type wireMessage struct {
	ID        string           `json:"id,omitempty"`
	EventType EventType        `json:"event_type"`
	Strokes   *[]stroke.Stroke `json:"strokes,omitempty"`
}

// Encode serializes m. Add events always carry a strokes array, even when empty.
func Encode(m Message) ([]byte, error) {
	w := wireMessage{ID: m.ID, EventType: m.EventType}
	if m.EventType == EventAddStrokes {
		strokes := m.Strokes
		if strokes == nil {
			strokes = []stroke.Stroke{}
		}
		w.Strokes = &strokes
	}
	return json.Marshal(w)
}

func AddStrokes(strokes []stroke.Stroke) ([]byte, error) {
	return Encode(Message{EventType: EventAddStrokes, Strokes: strokes})
}

func UndoStroke() ([]byte, error) {
	return Encode(Message{EventType: EventUndoStroke})
}

func DeleteStrokes() ([]byte, error) {
	return Encode(Message{EventType: EventDeleteStrokes})
}

// Decode parses an inbound message. Missing id or event type, an add event
// without strokes, or a stroke with mismatched or empty coordinate arrays all
// yield ErrMalformed. Unknown event types decode fine and are left to the
// caller to ignore.
func Decode(data []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if w.ID == "" {
		return Message{}, fmt.Errorf("%w: missing id", ErrMalformed)
	}
	if w.EventType == "" {
		return Message{}, fmt.Errorf("%w: missing event_type", ErrMalformed)
	}

	m := Message{ID: w.ID, EventType: w.EventType}
	if w.EventType == EventAddStrokes {
		if w.Strokes == nil {
			return Message{}, fmt.Errorf("%w: add_strokes without strokes", ErrMalformed)
		}
		for i, s := range *w.Strokes {
			if err := s.Validate(); err != nil {
				return Message{}, fmt.Errorf("%w: stroke %d: %v", ErrMalformed, i, err)
			}
		}
		m.Strokes = *w.Strokes
	}
	return m, nil
}

// Stamp is the relay side of the protocol: it checks that data is a JSON
// object with a string event_type and overwrites its id with peerID. Other
// fields pass through untouched.
func Stamp(data []byte, peerID string) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty message", ErrMalformed)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: not an object", ErrMalformed)
	}

	raw, ok := fields["event_type"]
	if !ok {
		return nil, fmt.Errorf("%w: missing event_type", ErrMalformed)
	}
	var eventType string
	if err := json.Unmarshal(raw, &eventType); err != nil || eventType == "" {
		return nil, fmt.Errorf("%w: event_type must be a non-empty string", ErrMalformed)
	}

	id, err := json.Marshal(peerID)
	if err != nil {
		return nil, err
	}
	fields["id"] = id

	return json.Marshal(fields)
}
