package doc

import (
	"weave/internal/change"
	"weave/internal/format"
	wsync "weave/internal/sync"
)

// SyncState tracks one remote peer across a sync conversation. Keep one
// per peer; a fresh state restarts the exchange from scratch.
type SyncState = wsync.State

// NewSyncState starts a fresh sync conversation.
func NewSyncState() *SyncState { return wsync.NewState() }

// syncDoc adapts Document to the protocol's document view.
type syncDoc struct {
	d   *Document
	log *PatchLog
}

func (s syncDoc) Heads() []change.Hash         { return s.d.graph.Heads() }
func (s syncDoc) HasChange(h change.Hash) bool { return s.d.graph.Has(h) }

func (s syncDoc) ChangesSince(have []change.Hash) []*change.Change {
	return s.d.graph.ChangesSince(have)
}

func (s syncDoc) GetChange(h change.Hash) (*change.Change, bool) { return s.d.graph.Get(h) }
func (s syncDoc) SaveDoc() []byte                                { return format.Save(s.d.ops, s.d.graph) }
func (s syncDoc) EncodeChange(c *change.Change) []byte           { return format.EncodeChange(c) }

func (s syncDoc) MissingDeps() []change.Hash {
	seen := make(map[change.Hash]struct{})
	var out []change.Hash
	for _, c := range s.d.graph.Parked() {
		for _, m := range s.d.graph.MissingDeps(c) {
			if _, dup := seen[m]; !dup {
				seen[m] = struct{}{}
				out = append(out, m)
			}
		}
	}
	return out
}

func (s syncDoc) ApplyChangeBytes(raw [][]byte) error {
	changes := make([]*change.Change, 0, len(raw))
	for _, b := range raw {
		c, err := format.DecodeChange(b)
		if err != nil {
			return err
		}
		changes = append(changes, c)
	}
	return s.d.ApplyChangesLogPatches(changes, s.log)
}

func (s syncDoc) LoadDocBytes(blob []byte) error {
	other, err := Load(blob, LoadOptions{})
	if err != nil {
		return err
	}
	return s.d.ApplyChangesLogPatches(s.d.GetChangesAdded(other), s.log)
}

// GenerateSyncMessage produces the next message to send to the peer
// tracked by state, or ok=false when there is nothing left to say. A
// false return with equal heads on both sides means this half of the
// exchange has converged.
func (d *Document) GenerateSyncMessage(state *SyncState) ([]byte, bool) {
	d.commitPending()
	m := wsync.Generate(syncDoc{d: d, log: d.patches}, state)
	if m == nil {
		return nil, false
	}
	return m.Encode(), true
}

// ReceiveSyncMessage applies one incoming sync message. Changes with
// unmet deps are parked; a malformed message is reported without
// touching the document.
func (d *Document) ReceiveSyncMessage(state *SyncState, msg []byte) error {
	return d.ReceiveSyncMessageLogPatches(state, msg, d.patches)
}

// ReceiveSyncMessageLogPatches is ReceiveSyncMessage with an explicit
// patch observer for this call only.
func (d *Document) ReceiveSyncMessageLogPatches(state *SyncState, msg []byte, log *PatchLog) error {
	d.commitPending()
	return wsync.Receive(syncDoc{d: d, log: log}, state, msg)
}
