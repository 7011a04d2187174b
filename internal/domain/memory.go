package domain

import (
	"strconv"
	"time"
)

// Memory is a persisted record of a captured artifact marking completion
// of a phase's mission. Memories are immutable once created and are stored
// most-recent-first.
type Memory struct {
	ID       string `json:"id"`
	Date     string `json:"date"`
	Title    string `json:"title"`
	ImageURL string `json:"imageUrl"`
	Phase    Phase  `json:"phase"`
}

// NewMemory builds a memory for a resolved mission. The id is time-based
// and the date is rendered in the dd/mm/yyyy form the gallery displays.
func NewMemory(title, imageURL string, phase Phase, now time.Time) Memory {
	return Memory{
		ID:       strconv.FormatInt(now.UnixMilli(), 10),
		Date:     now.Format("02/01/2006"),
		Title:    title,
		ImageURL: imageURL,
		Phase:    phase,
	}
}
