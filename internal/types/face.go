package types

import "time"

// Rect is a rectangle in model input coordinates (pixels, origin top-left).
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Area returns the area of the rectangle.
func (r Rect) Area() float64 {
	return r.Width * r.Height
}

// Point is a single landmark position in model input coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Expression is one of the fixed set of expression labels the analyzer
// classifies. The set is closed; confidences for all labels sum to ~1.0.
type Expression string

const (
	ExpressionNeutral   Expression = "neutral"
	ExpressionHappy     Expression = "happy"
	ExpressionSad       Expression = "sad"
	ExpressionAngry     Expression = "angry"
	ExpressionFearful   Expression = "fearful"
	ExpressionDisgusted Expression = "disgusted"
	ExpressionSurprised Expression = "surprised"

	// ExpressionNone is the dominant mood when no face is present.
	ExpressionNone Expression = "none"
)

// CanonicalExpressions is the fixed label ordering used for deterministic
// tie-breaking: on equal confidence the earlier label wins. Iterating a Go
// map would make the result depend on iteration order, so all dominant-mood
// derivations must walk this slice instead.
var CanonicalExpressions = []Expression{
	ExpressionNeutral,
	ExpressionHappy,
	ExpressionSad,
	ExpressionAngry,
	ExpressionFearful,
	ExpressionDisgusted,
	ExpressionSurprised,
}

// Expressions maps each label to its classification confidence in [0,1].
type Expressions map[Expression]float64

// Dominant returns the label with maximum confidence, ties broken by
// canonical order. Empty or all-zero maps resolve to the first canonical
// label with strict-greater comparison semantics.
func (e Expressions) Dominant() Expression {
	best := CanonicalExpressions[0]
	bestConf := e[best]
	for _, label := range CanonicalExpressions[1:] {
		if conf := e[label]; conf > bestConf {
			best = label
			bestConf = conf
		}
	}
	return best
}

// Face is a single detected face with its analysis outputs.
type Face struct {
	// Box is the bounding box in model input coordinates
	Box Rect `json:"box"`
	// Landmarks is the ordered 68-point landmark contour
	Landmarks []Point `json:"landmarks"`
	// Expressions holds per-label classification confidence
	Expressions Expressions `json:"expressions"`
	// Descriptor is the fixed-length embedding vector (128 floats)
	Descriptor []float32 `json:"-"`
}

// DetectionResult is the complete output of one detection tick. It is
// produced fresh each tick and fully replaces the previous result.
type DetectionResult struct {
	// Faces in detection order; Faces[0] is the primary face
	Faces []Face
	// InputWidth/InputHeight define the model input coordinate space
	// that Box and Landmarks are expressed in
	InputWidth  int
	InputHeight int
	// FrameSeq is the sequence number of the analyzed frame
	FrameSeq uint64
	// Timestamp is when the analysis completed
	Timestamp time.Time
}

// DominantMood returns the dominant expression of the primary face,
// or ExpressionNone when no faces were detected.
func (r *DetectionResult) DominantMood() Expression {
	if r == nil || len(r.Faces) == 0 {
		return ExpressionNone
	}
	return r.Faces[0].Expressions.Dominant()
}
