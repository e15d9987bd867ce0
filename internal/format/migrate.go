package format

import (
	"weave/internal/opset"
	"weave/pkg/types"
)

// MigrationTarget is one visible scalar string the ConvertToText load
// option will rewrite as a text object with equivalent content. Exactly
// one of Key (map slot) or Index (sequence slot) applies.
type MigrationTarget struct {
	Obj      types.ObjID
	IsMapKey bool
	Key      string
	Index    int
	Text     string
}

// StringMigrationTargets scans the op-set for every currently-visible
// Set op whose value is a string, returning the slots to rewrite. The
// rewriting itself is an ordinary batch of local ops issued by the
// loading document (pkg/doc), so the migration round-trips like any
// other edit instead of being a special case in the binary format.
// Strings inside text objects are the per-element character payload
// and are skipped.
func StringMigrationTargets(os *opset.OpSet) []MigrationTarget {
	var out []MigrationTarget

	for _, obj := range os.ObjectIDs() {
		typ, err := os.ObjectType(obj)
		if err != nil || typ == types.ObjTypeText {
			continue
		}

		if typ.IsSequence() {
			n, err := os.Length(obj, types.TextEncodingUnicodeCodePoints, nil)
			if err != nil {
				continue
			}
			for i := 0; i < n; i++ {
				op, err := os.SeekOpsByIndex(obj, i, types.TextEncodingUnicodeCodePoints, nil)
				if err != nil {
					continue
				}
				if op.Action == types.ActionSet && op.Value.Kind() == types.KindStr {
					out = append(out, MigrationTarget{Obj: obj, Index: i, Text: op.Value.Str()})
				}
			}
			continue
		}

		o, ok := os.Object(obj)
		if !ok {
			continue
		}
		for _, k := range o.SortedKeys() {
			var winner *opset.Op
			for _, op := range os.SeekOpsByMapKey(obj, k) {
				if !op.IsVisibleCandidate() || !os.IsCurrentlyVisible(op.ID) {
					continue
				}
				if winner == nil || winner.ID.Less(op.ID) {
					winner = op
				}
			}
			if winner != nil && winner.Action == types.ActionSet && winner.Value.Kind() == types.KindStr {
				out = append(out, MigrationTarget{Obj: obj, IsMapKey: true, Key: k, Text: winner.Value.Str()})
			}
		}
	}

	return out
}
