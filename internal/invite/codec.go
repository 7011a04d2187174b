// Package invite encodes a duo into a compact, URL-safe token so a second
// participant can join, and decodes such tokens back into a partial duo.
package invite

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/prologuebox/prologue/internal/domain"
)

// Kind classifies the result of decoding an invite token.
type Kind int

const (
	// KindInvalid marks a token that could not be decoded. The duo is nil.
	KindInvalid Kind = iota
	// KindCompact marks the current single-letter-key token format.
	KindCompact
	// KindLegacy marks a token carrying a full duo record directly.
	KindLegacy
)

// compactParticipant is the reduced projection of the initiator's profile.
// Single-letter keys keep the token short.
type compactParticipant struct {
	Name        string   `json:"n"`
	AvatarColor string   `json:"c"`
	Rhythm      string   `json:"r"`
	Preferences []string `json:"p"`
}

// compactDuo is the reduced projection embedded in invite links. P2 is
// intentionally excluded: the joining participant fills their own profile in.
type compactDuo struct {
	DuoName   string              `json:"n"`
	Budget    string              `json:"b"`
	Phase     string              `json:"s"`
	Architect *compactParticipant `json:"a"`
}

// Encode serializes the shareable projection of a duo into a URL-safe token.
// The output is deterministic for a given duo and contains only characters
// safe inside a query parameter value.
func Encode(duo *domain.Duo) string {
	compact := compactDuo{
		DuoName: duo.DuoName,
		Budget:  string(duo.Budget),
		Phase:   string(duo.CurrentPhase),
		Architect: &compactParticipant{
			Name:        duo.P1.Name,
			AvatarColor: duo.P1.AvatarColor,
			Rhythm:      string(duo.P1.Rhythm),
			Preferences: duo.P1.Preferences,
		},
	}

	// Marshal on a fixed struct cannot fail.
	raw, _ := json.Marshal(compact)

	// Standard Base64 with the two reserved characters mapped to their
	// URL-safe substitutes and trailing padding stripped.
	token := base64.StdEncoding.EncodeToString(raw)
	token = strings.ReplaceAll(token, "+", "-")
	token = strings.ReplaceAll(token, "/", "_")
	return strings.TrimRight(token, "=")
}

// Decode reconstructs a duo from an invite token. Any malformed input
// (bad Base64, bad JSON, unexpected shape) yields (nil, KindInvalid);
// decode failures are never surfaced as errors because a broken invite
// link simply means "no usable invite data".
//
// A compact token rebuilds a duo with a freshly generated id and an empty
// partner placeholder. A legacy token, produced by encoding a full duo
// record directly, is returned as-is.
func Decode(token string) (*domain.Duo, Kind) {
	raw, err := decodeTransport(token)
	if err != nil {
		return nil, KindInvalid
	}

	var compact compactDuo
	if err := json.Unmarshal(raw, &compact); err == nil &&
		compact.DuoName != "" && compact.Architect != nil {
		duo := &domain.Duo{
			ID:           domain.NewDuoID(),
			DuoName:      compact.DuoName,
			Budget:       domain.Budget(compact.Budget),
			CurrentPhase: domain.Phase(compact.Phase),
			P1: domain.Participant{
				Name:        compact.Architect.Name,
				AvatarColor: compact.Architect.AvatarColor,
				Rhythm:      domain.Rhythm(compact.Architect.Rhythm),
				Preferences: compact.Architect.Preferences,
			},
			P2: domain.EmptyPartner(),
		}
		if duo.P1.Preferences == nil {
			duo.P1.Preferences = []string{}
		}
		return duo, KindCompact
	}

	var legacy domain.Duo
	if err := json.Unmarshal(raw, &legacy); err == nil && legacy.DuoName != "" {
		return &legacy, KindLegacy
	}

	return nil, KindInvalid
}

// decodeTransport reverses the URL-safe character substitution, restores
// padding to a multiple of four, and decodes the Base64 transport layer.
func decodeTransport(token string) ([]byte, error) {
	s := strings.ReplaceAll(token, "-", "+")
	s = strings.ReplaceAll(s, "_", "/")
	if pad := len(s) % 4; pad != 0 {
		s += strings.Repeat("=", 4-pad)
	}
	return base64.StdEncoding.DecodeString(s)
}
