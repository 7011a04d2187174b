package domain

import (
	"errors"
	"strings"
)

// LocationType distinguishes urban from rural mission settings.
type LocationType string

const (
	LocationCity  LocationType = "Ville"
	LocationRural LocationType = "Village/Rural"
)

// MissionForm carries the per-episode inputs chosen on the mission form.
type MissionForm struct {
	City         string       `json:"city"`
	LocationType LocationType `json:"locationType"`
	Weather      string       `json:"weather"`
	Phase        Phase        `json:"phase"`
	Vibe         string       `json:"vibe"`
}

// MissionRequest is a mission form plus the duo it is generated for.
type MissionRequest struct {
	MissionForm
	Duo Duo `json:"duo"`
}

// GroundingSource is an optional citation attached to a mission.
type GroundingSource struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// Mission is the structured episode returned by the content service.
// Field tags match the provider's response schema.
type Mission struct {
	EpisodeTitle       string            `json:"titre_episode"`
	OverallVibe        string            `json:"vibe_generale"`
	LocationKind       string            `json:"lieu_type"`
	KitInstruction     string            `json:"instruction_coffret"`
	Description        string            `json:"mission_description"`
	BonusChallenge     string            `json:"defi_bonus"`
	SecretMissionA     string            `json:"mission_secrete_a"`
	SecretMissionB     string            `json:"mission_secrete_b"`
	DressCode          string            `json:"dress_code"`
	IcebreakerAudio    string            `json:"icebreaker_audio"`
	SpecificPlaceName  string            `json:"specific_place_name,omitempty"`
	Sources            []GroundingSource `json:"sources,omitempty"`
}

// ErrIncompleteMission indicates a provider response missing the fields
// required to render an episode.
var ErrIncompleteMission = errors.New("mission response missing required fields")

// Validate rejects a mission that cannot be rendered. The episode title and
// description are the two required fields; everything else is carried
// through as the provider returned it.
func (m *Mission) Validate() error {
	if strings.TrimSpace(m.EpisodeTitle) == "" || strings.TrimSpace(m.Description) == "" {
		return ErrIncompleteMission
	}
	return nil
}
