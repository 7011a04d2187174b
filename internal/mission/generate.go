package mission

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prologuebox/prologue/internal/domain"
)

// Generator produces mission episodes. Implemented by Client; handlers
// depend on the interface so tests can swap in a stub.
type Generator interface {
	Generate(ctx context.Context, req domain.MissionRequest) (*domain.Mission, error)
	Speak(ctx context.Context, text string) ([]byte, error)
}

var _ Generator = (*Client)(nil)

// Generate asks the content model for the duo's next episode. The model is
// constrained to JSON output matching the episode schema; the decoded
// mission is validated before it is returned so a structurally broken
// response never reaches a caller.
func (c *Client) Generate(ctx context.Context, req domain.MissionRequest) (*domain.Mission, error) {
	resp, err := c.generate(ctx, c.cfg.Model, generateRequest{
		SystemInstruction: &generateContent{
			Parts: []generatePart{{Text: buildSystemInstruction(req)}},
		},
		Contents: []generateContent{
			{Parts: []generatePart{{Text: buildPrompt(req)}}},
		},
		GenerationConfig: &generationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   missionSchema,
		},
	})
	if err != nil {
		return nil, err
	}

	part := resp.firstPart()
	if part == nil || part.Text == "" {
		return nil, fmt.Errorf("content service returned an empty episode")
	}

	var mission domain.Mission
	if err := json.Unmarshal([]byte(part.Text), &mission); err != nil {
		return nil, fmt.Errorf("decode episode payload: %w", err)
	}
	if err := mission.Validate(); err != nil {
		return nil, err
	}
	return &mission, nil
}
