package attendance

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// PayloadType tags payloads produced by Encode.
const PayloadType = "attendance"

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Payload is the content embedded in a session's scannable code.
type Payload struct {
	SessionID string
	CourseID  string
	Type      string
	Timestamp time.Time
}

type wirePayload struct {
	SessionID string `json:"sessionId"`
	CourseID  string `json:"courseId"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// Encode serializes the payload for a session issued at the given time.
func Encode(sessionID, courseID string, at time.Time) (string, error) {
	b, err := json.Marshal(wirePayload{
		SessionID: sessionID,
		CourseID:  courseID,
		Type:      PayloadType,
		Timestamp: at.UTC().Format(timestampLayout),
	})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Decode parses a scanned payload. Anything that is not a complete attendance payload fails
// with ErrMalformed.
func Decode(payload string) (Payload, error) {
	var w wirePayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(payload)), &w); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if w.Type != PayloadType {
		return Payload{}, fmt.Errorf("%w: type %q", ErrMalformed, w.Type)
	}
	if w.SessionID == "" || w.CourseID == "" {
		return Payload{}, fmt.Errorf("%w: missing session or course", ErrMalformed)
	}
	p := Payload{SessionID: w.SessionID, CourseID: w.CourseID, Type: w.Type}
	if w.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, w.Timestamp)
		if err != nil {
			return Payload{}, fmt.Errorf("%w: timestamp: %v", ErrMalformed, err)
		}
		p.Timestamp = ts
	}
	return p, nil
}
