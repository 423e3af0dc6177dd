package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const analysisPrompt = `You are judging whether a person is focused on their stated goal.
Goal: %q

The first image is their screen. If a second image is present, it is their camera.
Respond with JSON only, matching this schema:
{
  "contentRelevant": bool,   // is the screen content plausibly related to the goal
  "cameraAvailable": bool,   // was a camera image provided and usable
  "personPresent": bool,     // is a person visible in the camera image
  "appearsFocused": bool,    // does the person appear engaged with the screen
  "confidenceLevel": number, // 0.0 to 1.0
  "distractionLevel": "none" | "low" | "medium" | "high",
  "distractionType": string  // optional short label, e.g. "entertainment"
}`

// GeminiClassifier judges workspace snapshots with a Gemini multimodal model.
type GeminiClassifier struct {
	client *genai.Client
	model  string
}

func NewGeminiClassifier(ctx context.Context, apiKey, model string) (*GeminiClassifier, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("vision API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	return &GeminiClassifier{client: client, model: model}, nil
}

func (g *GeminiClassifier) Analyze(ctx context.Context, snap Snapshot, goal string) (Analysis, error) {
	if len(snap.Screen) == 0 {
		return Analysis{}, fmt.Errorf("empty screen capture")
	}

	mime := snap.MIME
	if mime == "" {
		mime = "image/png"
	}

	parts := []*genai.Part{
		genai.NewPartFromText(fmt.Sprintf(analysisPrompt, goal)),
		genai.NewPartFromBytes(snap.Screen, mime),
	}
	if len(snap.Camera) > 0 {
		parts = append(parts, genai.NewPartFromBytes(snap.Camera, mime))
	}

	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return Analysis{}, fmt.Errorf("gemini analyze: %w", err)
	}

	analysis, err := parseAnalysis(resp.Text())
	if err != nil {
		return Analysis{}, err
	}

	// A camera judgment without a camera frame is the model hallucinating;
	// force the modality to unknown so it cannot flag distraction.
	if len(snap.Camera) == 0 {
		analysis.CameraAvailable = false
	}
	return analysis, nil
}

// parseAnalysis decodes the model's JSON reply, tolerating markdown fences
// some models wrap around JSON output.
func parseAnalysis(text string) (Analysis, error) {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	if trimmed == "" {
		return Analysis{}, fmt.Errorf("empty classifier response")
	}

	var a Analysis
	if err := json.Unmarshal([]byte(trimmed), &a); err != nil {
		return Analysis{}, fmt.Errorf("malformed classifier response: %w", err)
	}
	if a.ConfidenceLevel < 0 {
		a.ConfidenceLevel = 0
	}
	if a.ConfidenceLevel > 1 {
		a.ConfidenceLevel = 1
	}
	return a, nil
}
