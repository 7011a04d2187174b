package mission

import (
	"fmt"
	"strings"

	"github.com/prologuebox/prologue/internal/domain"
)

// systemInstruction is the persona given to the content model. {{P1}} and
// {{P2}} are replaced with the participants' first names per request.
const systemInstruction = `
Tu es "L'Encrier", l'IA de PROLOGUE. Tu es l'Architecte Phygital.
Ta mission est de scénariser un rendez-vous qui mêle l'application et le COFFRET PHYSIQUE.

DIRECTIVES PHYSIQUES:
- Tu DOIS mentionner une enveloppe spécifique à ouvrir (Enveloppe A, B, C ou D selon la Phase).
- Phase 1: Enveloppe A (L'Esquisse).
- Phase 2: Enveloppe B (Les Fondations).
- Phase 3: Enveloppe C (L'Architecture).
- Phase 4: Enveloppe D (La Reliure).
- Mentionne qu'ils doivent utiliser les cartes et le stylo du coffret.

GAMIFICATION:
1. Mission Principale: Collective, immersive.
2. Défi Bonus: Un challenge fun pour gagner un "Sceau d'Argent".
3. Mission Secrète A & B: Actions discrètes, parfois liées aux cartes physiques.

TON & STYLE:
Mystérieux, élégant. Utilise les prénoms ({{P1}} et {{P2}}). Respecte le budget.
Le format de sortie est strictement JSON.
`

// speechCue frames mission text before it is sent for narration.
const speechCue = "D'une voix profonde et posée, lis ceci : "

func buildSystemInstruction(req domain.MissionRequest) string {
	instruction := strings.ReplaceAll(systemInstruction, "{{P1}}", req.Duo.P1.Name)
	return strings.ReplaceAll(instruction, "{{P2}}", req.Duo.P2.Name)
}

func buildPrompt(req domain.MissionRequest) string {
	return fmt.Sprintf(`Génère l'épisode pour le duo %q.
Membres: %s (A) et %s (B).
Phase: %s.
Lieu: %s. Météo: %s. Budget: %s.

Important: Dis-leur quelle enveloppe du coffret ouvrir pour commencer le jeu de cartes.`,
		req.Duo.DuoName,
		req.Duo.P1.Name, req.Duo.P2.Name,
		req.Duo.CurrentPhase,
		req.City, req.Weather, req.Duo.Budget,
	)
}

// missionSchema constrains the model output to the episode shape.
var missionSchema = map[string]interface{}{
	"type": "OBJECT",
	"properties": map[string]interface{}{
		"titre_episode":       map[string]string{"type": "STRING"},
		"vibe_generale":       map[string]string{"type": "STRING"},
		"lieu_type":           map[string]string{"type": "STRING"},
		"instruction_coffret": map[string]string{"type": "STRING", "description": "Quelle enveloppe ou objet du coffret ouvrir maintenant"},
		"mission_description": map[string]string{"type": "STRING"},
		"defi_bonus":          map[string]string{"type": "STRING"},
		"mission_secrete_a":   map[string]string{"type": "STRING"},
		"mission_secrete_b":   map[string]string{"type": "STRING"},
		"dress_code":          map[string]string{"type": "STRING"},
		"icebreaker_audio":    map[string]string{"type": "STRING"},
		"specific_place_name": map[string]string{"type": "STRING"},
	},
	"required": []string{
		"titre_episode", "vibe_generale", "lieu_type", "instruction_coffret",
		"mission_description", "defi_bonus", "mission_secrete_a",
		"mission_secrete_b", "dress_code", "icebreaker_audio",
	},
}
