// Package domain contains core domain types for the Prologue application.
package domain

import (
	"crypto/rand"
	"fmt"
)

// Rhythm is a participant's pacing preference.
type Rhythm string

const (
	RhythmChill  Rhythm = "Chill"
	RhythmAction Rhythm = "Action"
	RhythmMixed  Rhythm = "Mixte"
)

// Budget is the duo's spending level.
type Budget string

const (
	BudgetStudent Budget = "Étudiant"
	BudgetComfort Budget = "Confort"
	BudgetNoLimit Budget = "No Limit"
)

// AvatarPalette is the fixed set of colors offered by the setup UI.
// The palette is a suggestion only: decoded and stored participants may
// carry any color string.
var AvatarPalette = []string{"#8b5cf6", "#f43f5e", "#3b82f6", "#10b981", "#fbbf24"}

// DefaultPartnerColor is assigned to the joining participant placeholder
// when a duo is reconstructed from an invite token.
const DefaultPartnerColor = "#fbbf24"

// Participant is one member of a duo.
type Participant struct {
	Name        string   `json:"name"`
	Rhythm      Rhythm   `json:"rhythm"`
	Preferences []string `json:"preferences"`
	AvatarColor string   `json:"avatarColor"`
}

// Duo is the shared session record for one pair of participants.
// P1 is the initiator ("architect"); P2 joins via invite link.
type Duo struct {
	ID           string      `json:"id"`
	DuoName      string      `json:"duoName"`
	P1           Participant `json:"p1"`
	P2           Participant `json:"p2"`
	Budget       Budget      `json:"budget"`
	CurrentPhase Phase       `json:"currentPhase"`
}

// IsComplete reports whether both participants have filled in their name.
// A duo with an empty P2 name is pending: the invite link has been created
// but the partner has not joined yet.
func (d *Duo) IsComplete() bool {
	return d.P1.Name != "" && d.P2.Name != ""
}

// EmptyPartner returns the placeholder participant used for P2 until the
// invited partner fills in their profile.
func EmptyPartner() Participant {
	return Participant{
		Name:        "",
		Rhythm:      RhythmMixed,
		Preferences: []string{},
		AvatarColor: DefaultPartnerColor,
	}
}

const duoIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewDuoID generates a short random uppercase alphanumeric identifier.
// The id is generated once at duo creation and stays stable afterwards.
func NewDuoID() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the process is in a bad state anyway.
		panic(fmt.Sprintf("domain: read random bytes: %v", err))
	}
	for i, b := range buf {
		buf[i] = duoIDAlphabet[int(b)%len(duoIDAlphabet)]
	}
	return string(buf)
}
