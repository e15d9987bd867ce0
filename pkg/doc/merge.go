package doc

import (
	"weave/internal/apply"
	"weave/internal/change"
	"weave/internal/format"
	"weave/internal/opset"
	"weave/pkg/types"
)

// Patch re-exports the observable-change shape the apply pipeline
// emits, so hosts only import pkg/doc.
type Patch = apply.Patch

// PatchLog re-exports the checkpointable patch collector.
type PatchLog = apply.PatchLog

// NewPatchLog returns an empty patch log.
func NewPatchLog() *PatchLog { return apply.NewPatchLog() }

// ApplyChanges merges a batch of changes: causally-ready ones are
// applied (in dependency order), the rest are parked until their deps
// arrive. The batch is all-or-nothing — a change that equivocates on
// (actor, seq), collides on author, or carries an illegal op rejects
// the whole call with a typed error and the document untouched.
// Patches go to the installed patch log, if any.
func (d *Document) ApplyChanges(changes []*change.Change) error {
	return d.ApplyChangesLogPatches(changes, d.patches)
}

// ApplyChangesLogPatches is ApplyChanges with an explicit observer for
// this call only.
func (d *Document) ApplyChangesLogPatches(changes []*change.Change, log *PatchLog) error {
	d.commitPending()
	return apply.ApplyChanges(d.ops, d.graph, changes, log)
}

// Merge pulls every change other has that d does not. Both documents
// commit their pending transactions first; other is not modified
// beyond that.
func (d *Document) Merge(other *Document) error {
	d.commitPending()
	return d.ApplyChanges(d.GetChangesAdded(other))
}

// Save renders the document as a self-contained blob: a Document chunk
// plus one Change chunk per parked orphan.
func (d *Document) Save() []byte {
	d.commitPending()
	d.lastSaveHeads = d.graph.Heads()
	return format.Save(d.ops, d.graph)
}

// SaveNoCompress is Save without per-column DEFLATE.
func (d *Document) SaveNoCompress() []byte {
	d.commitPending()
	d.lastSaveHeads = d.graph.Heads()
	return format.SaveNoCompress(d.ops, d.graph)
}

// SaveAfter renders only the changes not reachable from heads, each as
// a Change chunk. Appending the result to a blob saved at heads yields
// a loadable equivalent of Save.
func (d *Document) SaveAfter(heads []change.Hash) []byte {
	d.commitPending()
	return format.SaveAfter(d.graph, heads)
}

// SaveIncremental renders the changes added since the last Save or
// SaveIncremental on this document, advancing the internal watermark.
func (d *Document) SaveIncremental() []byte {
	d.commitPending()
	out := format.SaveAfter(d.graph, d.lastSaveHeads)
	d.lastSaveHeads = d.graph.Heads()
	return out
}

// OnPartialLoad selects Load's behavior on malformed chunks.
type OnPartialLoad = format.OnPartialLoad

const (
	OnPartialLoadError  = format.OnPartialLoadError
	OnPartialLoadIgnore = format.OnPartialLoadIgnore
)

// VerificationMode selects whether chunk checksums are verified.
type VerificationMode = format.VerificationMode

const (
	VerificationCheck     = format.VerificationCheck
	VerificationDontCheck = format.VerificationDontCheck
)

// StringMigration selects whether scalar strings are rewritten as text
// objects on load.
type StringMigration int

const (
	NoMigration StringMigration = iota
	ConvertToText
)

// LoadOptions configures Load. The zero value is strict, verifying,
// non-migrating, grapheme-counted, and unobserved.
type LoadOptions struct {
	OnPartialLoad    OnPartialLoad
	VerificationMode VerificationMode
	StringMigration  StringMigration
	TextEncoding     types.TextEncoding
	PatchLog         *PatchLog
	Actor            types.ActorID // writing identity; random if nil
}

// loadApplyFn adapts the apply pipeline to format.Load's seam.
func loadApplyFn(log *PatchLog) format.ApplyFunc {
	return func(os *opset.OpSet, graph *change.Graph, c *change.Change) error {
		if err := apply.ApplyChange(os, c, log); err != nil {
			return err
		}
		return graph.Add(c)
	}
}

func (opts LoadOptions) config() format.LoadConfig {
	return format.LoadConfig{
		OnPartial:    opts.OnPartialLoad,
		Verification: opts.VerificationMode,
	}
}

// Load parses a saved blob into a fresh document.
func Load(data []byte, opts LoadOptions) (*Document, error) {
	ops, g, err := format.Load(data, opts.config(), loadApplyFn(opts.PatchLog))
	if err != nil {
		return nil, err
	}
	return finishLoad(ops, g, opts)
}

// LoadFile memory-maps path and loads it like Load.
func LoadFile(path string, opts LoadOptions) (*Document, error) {
	ops, g, err := format.LoadFile(path, opts.config(), loadApplyFn(opts.PatchLog))
	if err != nil {
		return nil, err
	}
	return finishLoad(ops, g, opts)
}

func finishLoad(ops *opset.OpSet, g *change.Graph, opts LoadOptions) (*Document, error) {
	actor := opts.Actor
	if actor == nil {
		actor = types.NewRandomActorID()
	}
	d := &Document{
		ops:      ops,
		graph:    g,
		actor:    actor,
		encoding: opts.TextEncoding,
		patches:  opts.PatchLog,
	}
	d.lastSaveHeads = g.Heads()

	if opts.StringMigration == ConvertToText {
		if err := d.migrateStrings(); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// migrateStrings rewrites every visible scalar string as a text object
// with the same content, issued as one ordinary local change so the
// migration round-trips like any other edit.
func (d *Document) migrateStrings() error {
	for _, t := range format.StringMigrationTargets(d.ops) {
		var text types.ObjID
		var err error
		if t.IsMapKey {
			text, err = d.PutObject(t.Obj, t.Key, types.ObjTypeText)
		} else {
			text, err = d.PutObjectIndex(t.Obj, t.Index, types.ObjTypeText)
		}
		if err != nil {
			return err
		}
		if err := d.SpliceText(text, 0, 0, t.Text); err != nil {
			return err
		}
	}
	d.Commit(CommitOptions{Message: "convert strings to text"})
	return nil
}
