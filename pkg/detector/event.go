package detector

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event carries one confirmed detection. Payload is the serialized bounding
// box list; ownership of the payload passes to whichever consumer accepts
// the event from the channel.
type Event struct {
	ID        string
	Timestamp time.Time
	Boxes     []Box
	Payload   []byte
}

// NewEvent packages the surviving boxes of one detection.
func NewEvent(ts time.Time, boxes []Box) Event {
	return Event{
		ID:        uuid.NewString(),
		Timestamp: ts,
		Boxes:     boxes,
		Payload:   MarshalBoxes(boxes),
	}
}

// MarshalBoxes serializes boxes as a JSON array of objects with
// x_min/y_min/x_max/y_max fields. An empty set serializes as [].
func MarshalBoxes(boxes []Box) []byte {
	if len(boxes) == 0 {
		return []byte("[]")
	}
	out, err := json.Marshal(boxes)
	if err != nil {
		// Box has no unmarshalable fields; this cannot happen.
		return []byte("[]")
	}
	return out
}
