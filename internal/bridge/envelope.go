// Package bridge carries messages between the host and the isolated surfaces
// that render immersive paragraphs.
package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ProtocolVersion is the envelope version this build speaks. Envelopes without
// a version are treated as version 1.
const ProtocolVersion = 1

var (
	// ErrMalformed is returned for payloads that are not a valid envelope.
	ErrMalformed = errors.New("malformed bridge message")
	// ErrUnsupportedVersion is returned for envelopes newer than ProtocolVersion.
	ErrUnsupportedVersion = errors.New("unsupported bridge protocol version")
	// ErrClosed is returned when sending on or receiving from a closed transport.
	ErrClosed = errors.New("bridge transport closed")
)

// MessageType discriminates surface to host messages.
type MessageType string

const (
	TypeSegmentTap MessageType = "segmentTap"
	TypeDoubleTap  MessageType = "doubleTap"
	TypeHeight     MessageType = "height"
	// TypeFrame carries the rendered lines of an in-process surface.
	TypeFrame MessageType = "frame"
)

// Message is a decoded surface to host message.
type Message struct {
	Type      MessageType `json:"type"`
	Version   int         `json:"v,omitempty"`
	SegmentID string      `json:"segmentId,omitempty"`
	Height    float64     `json:"height,omitempty"`
	Frame     *Frame      `json:"frame,omitempty"`
}

func SegmentTap(id string) Message { return Message{Type: TypeSegmentTap, SegmentID: id} }
func DoubleTap() Message           { return Message{Type: TypeDoubleTap} }
func HeightReport(h float64) Message {
	return Message{Type: TypeHeight, Height: h}
}

// wireMessage keeps presence information so that required fields can be told
// apart from zero values.
type wireMessage struct {
	Type      *MessageType `json:"type"`
	Version   *int         `json:"v"`
	SegmentID *string      `json:"segmentId"`
	Height    *float64     `json:"height"`
	Frame     *Frame       `json:"frame"`
}

// Decode parses and validates one surface message.
func Decode(data []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if w.Type == nil {
		return Message{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	v, err := checkVersion(w.Version)
	if err != nil {
		return Message{}, err
	}

	m := Message{Type: *w.Type, Version: v}
	switch m.Type {
	case TypeSegmentTap:
		if w.SegmentID == nil || *w.SegmentID == "" {
			return Message{}, fmt.Errorf("%w: segmentTap without segmentId", ErrMalformed)
		}
		m.SegmentID = *w.SegmentID
	case TypeDoubleTap:
	case TypeHeight:
		if w.Height == nil || math.IsNaN(*w.Height) || math.IsInf(*w.Height, 0) || *w.Height < 0 {
			return Message{}, fmt.Errorf("%w: invalid height", ErrMalformed)
		}
		m.Height = *w.Height
	case TypeFrame:
		if w.Frame == nil {
			return Message{}, fmt.Errorf("%w: frame without lines", ErrMalformed)
		}
		m.Frame = w.Frame
	default:
		return Message{}, fmt.Errorf("%w: unknown type %q", ErrMalformed, m.Type)
	}
	return m, nil
}

// Encode serializes a message with the current protocol version.
func Encode(m Message) ([]byte, error) {
	m.Version = ProtocolVersion
	return json.Marshal(m)
}

func checkVersion(v *int) (int, error) {
	switch {
	case v == nil:
		return 1, nil
	case *v < 1:
		return 0, fmt.Errorf("%w: version %d", ErrMalformed, *v)
	case *v > ProtocolVersion:
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedVersion, *v)
	}
	return *v, nil
}
