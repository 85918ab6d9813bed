package types

import "testing"

// TestDominantExpression validates max-confidence selection.
func TestDominantExpression(t *testing.T) {
	e := Expressions{
		ExpressionHappy:   0.8,
		ExpressionSad:     0.1,
		ExpressionNeutral: 0.1,
	}
	if got := e.Dominant(); got != ExpressionHappy {
		t.Errorf("Dominant() = %q, want %q", got, ExpressionHappy)
	}
}

// TestDominantExpressionTieBreak validates deterministic tie-breaking:
// on equal confidence the label earlier in canonical order wins,
// regardless of map iteration order.
func TestDominantExpressionTieBreak(t *testing.T) {
	e := Expressions{
		ExpressionSurprised: 0.5,
		ExpressionHappy:     0.5,
	}
	// happy precedes surprised in canonical order
	for i := 0; i < 100; i++ {
		if got := e.Dominant(); got != ExpressionHappy {
			t.Fatalf("Dominant() = %q on run %d, want %q (canonical tie-break)", got, i, ExpressionHappy)
		}
	}
}

// TestDominantMoodNoFaces validates the empty-result case.
func TestDominantMoodNoFaces(t *testing.T) {
	result := &DetectionResult{}
	if got := result.DominantMood(); got != ExpressionNone {
		t.Errorf("DominantMood() = %q, want %q", got, ExpressionNone)
	}

	var nilResult *DetectionResult
	if got := nilResult.DominantMood(); got != ExpressionNone {
		t.Errorf("nil DominantMood() = %q, want %q", got, ExpressionNone)
	}
}

// TestDominantMoodPrimaryFace validates that only faces[0] determines
// the mood: two faces, the first one happy, the second one sad.
func TestDominantMoodPrimaryFace(t *testing.T) {
	result := &DetectionResult{
		Faces: []Face{
			{Expressions: Expressions{ExpressionHappy: 0.8, ExpressionSad: 0.1, ExpressionNeutral: 0.1}},
			{Expressions: Expressions{ExpressionSad: 0.9}},
		},
	}
	if got := result.DominantMood(); got != ExpressionHappy {
		t.Errorf("DominantMood() = %q, want %q (primary face)", got, ExpressionHappy)
	}
	if len(result.Faces) != 2 {
		t.Errorf("face count = %d, want 2", len(result.Faces))
	}
}
