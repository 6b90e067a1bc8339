package workflow

import "github.com/dkozyrev/freight-linker/internal/core/domain"

// Advance computes the state a shipment currently at currentOrder should
// move to when a document of docType is linked. The second return reports
// whether a change should be applied. Rules:
//
//   - unmapped document types never move state;
//   - the terminal state applies unconditionally;
//   - otherwise the candidate applies only when its order strictly exceeds
//     the current one, so out-of-order and duplicate documents are harmless.
func (t *Table) Advance(currentOrder int, docType domain.DocumentType) (StateDef, bool) {
	candidate, ok := t.byDoc[docType]
	if !ok {
		return StateDef{}, false
	}
	if candidate.Terminal {
		return candidate, true
	}
	if candidate.Order > currentOrder {
		return candidate, true
	}
	return StateDef{}, false
}

// Derive reduces the full, unordered set of document types ever linked to a
// shipment into a single state. It is an associative max over mapped
// candidates and therefore independent of replay order; the terminal state
// wins outright if present. The initial state is the floor, so a shipment
// whose only documents rank below it (or that has no mapped documents at
// all) stays at the initial state.
func (t *Table) Derive(docTypes []domain.DocumentType) StateDef {
	best := t.initial
	for _, dt := range docTypes {
		candidate, ok := t.byDoc[dt]
		if !ok {
			continue
		}
		if candidate.Terminal {
			return candidate
		}
		if candidate.Order > best.Order {
			best = candidate
		}
	}
	return best
}
