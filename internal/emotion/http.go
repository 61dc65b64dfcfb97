package emotion

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/attunelabs/attune-core/internal/config"
)

type httpClassifier struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

type classifyRequest struct {
	Image    string `json:"image"`
	MimeType string `json:"mime_type"`
}

type classifyResponse struct {
	Faces []struct {
		Emotions []struct {
			Name  string  `json:"name"`
			Score float64 `json:"score"`
		} `json:"emotions"`
	} `json:"faces"`
}

// NewHTTPClassifier calls an external expression-scoring service. The
// first returned face is used; additional faces are ignored.
func NewHTTPClassifier(cfg config.EmotionConfig) Classifier {
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &httpClassifier{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: timeout},
	}
}

func (c *httpClassifier) Classify(ctx context.Context, image []byte, mimeType string) (Result, error) {
	payload := classifyRequest{
		Image:    base64.StdEncoding.EncodeToString(image),
		MimeType: mimeType,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("classifier returned status %s", resp.Status)
	}

	var decoded classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Result{}, fmt.Errorf("decode classifier response: %w", err)
	}
	if len(decoded.Faces) == 0 {
		return Result{FaceDetected: false}, nil
	}

	scores := make(Scores, len(decoded.Faces[0].Emotions))
	for _, e := range decoded.Faces[0].Emotions {
		scores[e.Name] = e.Score
	}
	return Result{Scores: scores, FaceDetected: true}, nil
}
