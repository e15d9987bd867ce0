// Package apply implements incremental single-change application and
// batch application of many causally-ready changes, translating each
// op's local actor indices into the document's global actor table and
// maintaining the op-set's derived indices as it goes. Both paths emit
// Patches describing the net observable change, so a host can
// materialize a diff without re-querying the whole document.
package apply

import "weave/pkg/types"

// PatchAction is the kind of observable effect a patch describes.
type PatchAction int

const (
	PatchPutMap PatchAction = iota
	PatchPutSeq
	PatchInsert
	PatchDeleteMap
	PatchDeleteSeq
	PatchIncrement
	PatchSpliceText
	PatchMark
	PatchUnmark
)

func (a PatchAction) String() string {
	switch a {
	case PatchPutMap:
		return "put"
	case PatchPutSeq:
		return "put"
	case PatchInsert:
		return "insert"
	case PatchDeleteMap, PatchDeleteSeq:
		return "delete"
	case PatchIncrement:
		return "inc"
	case PatchSpliceText:
		return "splice"
	case PatchMark:
		return "mark"
	case PatchUnmark:
		return "unmark"
	default:
		return "?"
	}
}

// Patch describes one unit of observable change at a single object and
// key/index. Exactly one of Key (map patches) or Index (seq patches) is
// meaningful, selected by Action.
type Patch struct {
	Obj      types.ObjID
	Action   PatchAction
	Key      string
	Index    int
	Value    types.Value
	OpID     types.OpID
	Conflict bool

	// Text-specific fields, meaningful only for PatchSpliceText.
	Text string

	// Mark-specific fields, meaningful only for PatchMark/PatchUnmark.
	MarkName string
}

// PatchLog accumulates patches for one apply/transaction scope and
// supports checkpoint/rollback so a host can
// offer transactional UX ("discard this edit"). Rollback only ever
// discards buffered patches; it never touches the op-set. The
// transaction layer (pkg/doc) applies local ops to the op-set as they
// are made, and its own Rollback rebuilds the op-set from committed
// history before rolling this log back to the transaction's checkpoint.
type PatchLog struct {
	patches []Patch
}

// NewPatchLog returns an empty patch log.
func NewPatchLog() *PatchLog { return &PatchLog{} }

// Append adds p to the log. Nil-safe: a nil *PatchLog silently discards,
// so callers that do not want observation can pass nil throughout.
func (l *PatchLog) Append(p Patch) {
	if l == nil {
		return
	}
	l.patches = append(l.patches, p)
}

// Patches returns the patches recorded so far.
func (l *PatchLog) Patches() []Patch {
	if l == nil {
		return nil
	}
	out := make([]Patch, len(l.patches))
	copy(out, l.patches)
	return out
}

// Checkpoint returns a mark that Rollback can later restore to.
func (l *PatchLog) Checkpoint() int {
	if l == nil {
		return 0
	}
	return len(l.patches)
}

// Rollback discards every patch appended since mark.
func (l *PatchLog) Rollback(mark int) {
	if l == nil {
		return
	}
	if mark < len(l.patches) {
		l.patches = l.patches[:mark]
	}
}

// Reset clears the log entirely.
func (l *PatchLog) Reset() {
	if l == nil {
		return
	}
	l.patches = l.patches[:0]
}
