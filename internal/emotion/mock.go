package emotion

import "context"

type mockClassifier struct{}

func NewMockClassifier() Classifier {
	return &mockClassifier{}
}

func (m *mockClassifier) Classify(_ context.Context, image []byte, _ string) (Result, error) {
	if len(image) == 0 {
		return Result{FaceDetected: false}, nil
	}
	return Result{
		Scores: Scores{
			"Calmness": 0.6,
			"Interest": 0.4,
		},
		FaceDetected: true,
	}, nil
}
