package anpr

import (
	"errors"
	"image"
	"time"
)

// ErrRecognizerFault marks a recognizer call that raised or returned malformed output.
var ErrRecognizerFault = errors.New("recognizer fault")

// Box is an axis-aligned bounding box in absolute pixel coordinates.
type Box struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2, b.Y2)
}

func (b Box) Empty() bool {
	return b.X2 <= b.X1 || b.Y2 <= b.Y1
}

// BoxFromRect converts an image.Rectangle into a Box.
func BoxFromRect(r image.Rectangle) Box {
	r = r.Canon()
	return Box{X1: r.Min.X, Y1: r.Min.Y, X2: r.Max.X, Y2: r.Max.Y}
}

// Detection is a single detector output for one frame.
type Detection struct {
	Box        Box     `json:"box"`
	Confidence float64 `json:"confidence"`
	ClassID    int     `json:"class_id"`
}

// Fragment is one piece of text found by the recognizer inside a crop.
type Fragment struct {
	Text       string  `json:"text"`
	Box        Box     `json:"box"`
	Confidence float64 `json:"confidence,omitempty"`
}

// MinX is the leftmost horizontal coordinate of the fragment.
func (f Fragment) MinX() int {
	if f.Box.X2 < f.Box.X1 {
		return f.Box.X2
	}
	return f.Box.X1
}

// Recognition is the result of one recognizer call: fragments on success, Err on fault.
type Recognition struct {
	Fragments []Fragment
	Err       error
}

func (r Recognition) Faulted() bool {
	return r.Err != nil
}

// Candidate is the per-region outcome of sanitizing and matching recognized text.
type Candidate struct {
	RawText       string  `json:"raw_text"`
	SanitizedText string  `json:"sanitized_text"`
	FormattedText string  `json:"plate,omitempty"`
	Grammar       string  `json:"grammar,omitempty"`
	Confidence    float64 `json:"confidence"`
	SourceBox     Box     `json:"box"`
}

func (c Candidate) Valid() bool {
	return c.FormattedText != ""
}

// TrackedPlate is the last validated plate held across frames.
type TrackedPlate struct {
	Text       string
	Box        Box
	ValidSince int64
}

type DirectiveKind string

const (
	DirectiveBox   DirectiveKind = "box"
	DirectiveLabel DirectiveKind = "label"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Directive tells the display layer what to draw for a frame.
type Directive struct {
	Kind    DirectiveKind `json:"kind"`
	Box     Box           `json:"box"`
	Text    string        `json:"text,omitempty"`
	Outcome Outcome       `json:"outcome"`
}

// Reading is a validated plate observed by a camera, ready to be reported downstream.
type Reading struct {
	ID         string
	CameraID   string
	Plate      string
	RawText    string
	Sanitized  string
	Grammar    string
	Confidence float64
	Box        Box
	FrameIndex int64
	ObservedAt time.Time
}

type VehicleInfo struct {
	Color string `json:"color,omitempty"`
	Type  string `json:"type,omitempty"`
}

// EventPayload is the body accepted by the ANPR events endpoint.
type EventPayload struct {
	CameraID    string                 `json:"camera_id"`
	CameraModel string                 `json:"camera_model,omitempty"`
	Plate       string                 `json:"plate"`
	Confidence  float64                `json:"confidence"`
	Direction   string                 `json:"direction"`
	Lane        int                    `json:"lane"`
	EventTime   time.Time              `json:"event_time"`
	Vehicle     VehicleInfo            `json:"vehicle"`
	SnapshotURL string                 `json:"snapshot_url,omitempty"`
	RawPayload  map[string]interface{} `json:"raw_payload,omitempty"`
}

type NormalizeResult struct {
	Raw       string `json:"raw"`
	Sanitized string `json:"sanitized"`
	Candidate string `json:"candidate,omitempty"`
	Plate     string `json:"plate,omitempty"`
	Grammar   string `json:"grammar,omitempty"`
	Valid     bool   `json:"valid"`
}

type RecognitionResult struct {
	ID         string      `json:"id"`
	Width      int         `json:"width"`
	Height     int         `json:"height"`
	Plates     []Candidate `json:"plates"`
	Directives []Directive `json:"directives"`
}
