package emotion

import "context"

// Scores maps emotion names to [0, 1] intensities for one face.
type Scores map[string]float64

// Result is one classified frame. FaceDetected false means the image held
// no usable face and Scores is empty.
type Result struct {
	Scores       Scores
	FaceDetected bool
}

// Classifier abstracts facial expression scoring backends.
type Classifier interface {
	Classify(ctx context.Context, image []byte, mimeType string) (Result, error)
}
