package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pixrworth/platform/internal/config"
	"github.com/pixrworth/platform/internal/glowup/domain"
)

// Replicate drives an image-to-image model through the Replicate
// predictions API. The Prefer header asks the API to hold the request
// until the prediction finishes, so no polling loop is needed for the
// small models in use.
type Replicate struct {
	base     string
	token    string
	model    string
	template string
	client   *http.Client
}

func NewReplicate(cfg config.GlowUpConfig) (*Replicate, error) {
	if cfg.ReplicateToken == "" {
		return nil, fmt.Errorf("replicate: missing API token")
	}
	return &Replicate{
		base:     cfg.ReplicateBase,
		token:    cfg.ReplicateToken,
		model:    cfg.ReplicateModel,
		template: cfg.PromptTemplate,
		client:   &http.Client{Timeout: 90 * time.Second},
	}, nil
}

func (r *Replicate) Name() string { return "replicate" }

type predictionRequest struct {
	Input predictionInput `json:"input"`
}

type predictionInput struct {
	Prompt      string   `json:"prompt"`
	ImageInput  []string `json:"image_input"`
	Size        string   `json:"size"`
	AspectRatio string   `json:"aspect_ratio"`
	MaxImages   int      `json:"max_images"`
}

type predictionResponse struct {
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  string          `json:"error"`
}

func (r *Replicate) Generate(ctx context.Context, job *domain.Job) (string, error) {
	body, err := json.Marshal(predictionRequest{
		Input: predictionInput{
			Prompt:      fmt.Sprintf(r.template, job.RoomType, job.Style),
			ImageInput:  []string{job.BeforeURL},
			Size:        "2K",
			AspectRatio: "4:3",
			MaxImages:   1,
		},
	})
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/models/%s/predictions", r.base, r.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+r.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "wait=60")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("replicate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("replicate: unexpected status %d", resp.StatusCode)
	}

	var prediction predictionResponse
	if err := json.NewDecoder(resp.Body).Decode(&prediction); err != nil {
		return "", fmt.Errorf("replicate: decode response: %w", err)
	}
	if prediction.Error != "" {
		return "", fmt.Errorf("replicate: prediction failed: %s", prediction.Error)
	}
	return firstOutputURL(prediction.Output)
}

// firstOutputURL tolerates both a bare string output and the more
// common list-of-URLs shape.
func firstOutputURL(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("replicate: empty prediction output")
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return single, nil
	}

	var many []string
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 {
		return many[0], nil
	}
	return "", fmt.Errorf("replicate: unrecognized prediction output")
}
