package domain

// Phase is one of the four ordered stages a duo progresses through.
// The values are the wire strings used by invite tokens and stored
// sessions, so they must never change.
type Phase string

const (
	PhaseSketch       Phase = "L'Esquisse"
	PhaseFoundations  Phase = "Les Fondations"
	PhaseArchitecture Phase = "L'Architecture"
	PhaseBinding      Phase = "La Reliure"
)

// phaseOrder fixes the progression. PhaseSketch is initial,
// PhaseBinding is terminal.
var phaseOrder = [...]Phase{
	PhaseSketch,
	PhaseFoundations,
	PhaseArchitecture,
	PhaseBinding,
}

// Phases returns the ordered phase list.
func Phases() []Phase {
	return phaseOrder[:]
}

// Index returns the zero-based position of p in the progression,
// or -1 if p is not a known phase.
func (p Phase) Index() int {
	for i, phase := range phaseOrder {
		if phase == p {
			return i
		}
	}
	return -1
}

// Valid reports whether p is one of the four known phases.
func (p Phase) Valid() bool {
	return p.Index() >= 0
}

// IsTerminal reports whether p is the final phase.
func (p Phase) IsTerminal() bool {
	return p == phaseOrder[len(phaseOrder)-1]
}

// Advance returns the next phase in the progression. Advancing past the
// terminal phase is a no-op, not an error. An unknown phase restarts the
// progression at the initial phase so a corrupted value cannot wedge a duo.
func (p Phase) Advance() Phase {
	idx := p.Index()
	if idx < 0 {
		return phaseOrder[0]
	}
	if idx >= len(phaseOrder)-1 {
		return phaseOrder[len(phaseOrder)-1]
	}
	return phaseOrder[idx+1]
}
