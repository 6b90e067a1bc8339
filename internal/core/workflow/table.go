// Package workflow owns the shipment workflow state table: the ordered state
// definitions and the document-type mapping that drives every advance and
// every reconciliation re-derivation. Nothing else in the codebase is
// allowed to redefine state ordering.
package workflow

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/dkozyrev/freight-linker/internal/core/domain"
)

//go:embed states.yaml
var statesYAML []byte

// StateDef is one row of the workflow state table. Order ranks states for
// monotonic advancement; Phase and Status travel with the state as a single
// triple. The terminal state is exempt from ordering.
type StateDef struct {
	Code     string                `yaml:"code"`
	Order    int                   `yaml:"order"`
	Phase    string                `yaml:"phase"`
	Status   domain.ShipmentStatus `yaml:"status"`
	Terminal bool                  `yaml:"terminal"`
	Initial  bool                  `yaml:"initial"`
}

type tableFile struct {
	States        []StateDef        `yaml:"states"`
	DocumentTypes map[string]string `yaml:"document_types"`
}

// Table is the loaded, validated state table.
type Table struct {
	states   []StateDef
	byCode   map[string]StateDef
	byDoc    map[domain.DocumentType]StateDef
	initial  StateDef
	terminal StateDef
}

// Load parses and validates the embedded state table.
func Load() (*Table, error) {
	return parse(statesYAML)
}

func parse(raw []byte) (*Table, error) {
	var file tableFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse workflow states: %w", err)
	}
	if len(file.States) == 0 {
		return nil, fmt.Errorf("workflow states: empty state list")
	}

	t := &Table{
		states: file.States,
		byCode: make(map[string]StateDef, len(file.States)),
		byDoc:  make(map[domain.DocumentType]StateDef, len(file.DocumentTypes)),
	}

	seenOrders := make(map[int]string, len(file.States))
	var initials, terminals int
	for _, s := range file.States {
		if s.Code == "" {
			return nil, fmt.Errorf("workflow states: state with empty code")
		}
		if _, dup := t.byCode[s.Code]; dup {
			return nil, fmt.Errorf("workflow states: duplicate state code %q", s.Code)
		}
		if prev, dup := seenOrders[s.Order]; dup && !s.Terminal {
			return nil, fmt.Errorf("workflow states: order %d shared by %q and %q", s.Order, prev, s.Code)
		}
		seenOrders[s.Order] = s.Code
		t.byCode[s.Code] = s
		if s.Initial {
			initials++
			t.initial = s
		}
		if s.Terminal {
			terminals++
			t.terminal = s
		}
	}
	if initials != 1 {
		return nil, fmt.Errorf("workflow states: expected exactly one initial state, got %d", initials)
	}
	if terminals != 1 {
		return nil, fmt.Errorf("workflow states: expected exactly one terminal state, got %d", terminals)
	}

	for doc, code := range file.DocumentTypes {
		state, ok := t.byCode[code]
		if !ok {
			return nil, fmt.Errorf("workflow states: document type %q maps to unknown state %q", doc, code)
		}
		t.byDoc[domain.DocumentType(doc)] = state
	}

	sort.Slice(t.states, func(i, j int) bool { return t.states[i].Order < t.states[j].Order })
	return t, nil
}

// Initial is the state a newly created shipment starts in.
func (t *Table) Initial() StateDef { return t.initial }

// Terminal is the cancelled state.
func (t *Table) Terminal() StateDef { return t.terminal }

// States returns all states in ascending order.
func (t *Table) States() []StateDef { return t.states }

// ByCode looks up a state definition.
func (t *Table) ByCode(code string) (StateDef, bool) {
	s, ok := t.byCode[code]
	return s, ok
}

// CandidateFor maps a document type to the state it advances toward. The
// second return is false for types that link but do not move workflow.
func (t *Table) CandidateFor(docType domain.DocumentType) (StateDef, bool) {
	s, ok := t.byDoc[docType]
	return s, ok
}
