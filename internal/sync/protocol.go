package sync

import (
	"sort"

	"weave/internal/change"
)

// DocAccess is the view of a document the protocol needs. pkg/doc
// adapts Document to it; taking an interface here keeps the protocol
// package free of the mutation layer (the same seam internal/format's
// ApplyFunc uses).
type DocAccess interface {
	// Heads returns the document's current heads, sorted.
	Heads() []change.Hash

	// HasChange reports whether the change is applied.
	HasChange(h change.Hash) bool

	// ChangesSince returns every applied change not reachable from
	// have, in dependency order.
	ChangesSince(have []change.Hash) []*change.Change

	// GetChange returns an applied change by hash.
	GetChange(h change.Hash) (*change.Change, bool)

	// MissingDeps returns dependency hashes of parked (not yet causally
	// ready) changes that the document does not have.
	MissingDeps() []change.Hash

	// SaveDoc renders the whole document as a blob, the V2 snapshot
	// form.
	SaveDoc() []byte

	// ApplyChangeBytes decodes and applies raw canonical change bytes;
	// changes with unmet deps are parked, not rejected.
	ApplyChangeBytes(raw [][]byte) error

	// LoadDocBytes merges a whole-document snapshot blob.
	LoadDocBytes(blob []byte) error

	// EncodeChange renders an applied change as raw canonical bytes.
	EncodeChange(c *change.Change) []byte
}

// Generate produces the next message to send to the peer tracked by s,
// or nil when there is nothing useful to say (the
// suppression rule). A nil return with equal heads on both sides means
// this half of the exchange has converged.
func Generate(d DocAccess, s *State) *Message {
	ourHeads := d.Heads()

	// our_need: their heads we lack, plus unmet deps of parked changes.
	var ourNeed []change.Hash
	for _, h := range s.TheirHeads {
		if !d.HasChange(h) {
			ourNeed = append(ourNeed, h)
		}
	}
	theirHeadSet := hashSet(s.TheirHeads)
	needSatisfiable := true
	for _, h := range d.MissingDeps() {
		ourNeed = append(ourNeed, h)
		if _, ok := theirHeadSet[h]; !ok {
			needSatisfiable = false
		}
	}

	// While we cannot even name what we are missing relative to their
	// heads, a bloom summary would be built over a history about to
	// shift under us; send an empty Have instead and let the peer fill
	// the gap first.
	var have []Have
	if needSatisfiable {
		since := d.ChangesSince(s.SharedHeads)
		hashes := make([]change.Hash, len(since))
		for i, c := range since {
			hashes[i] = c.Hash
		}
		have = []Have{{LastSync: s.SharedHeads, Bloom: NewFilter(hashes)}}
	} else {
		have = []Have{{}}
	}

	version := V1
	if s.PeerSupportsV2() {
		version = V2
	}

	// A V2 peer starting from nothing gets the whole document in one
	// message instead of its entire history change by change.
	if s.heardFromPeer && !s.HaveResponded && len(s.TheirHeads) == 0 && version == V2 {
		msg := &Message{
			Version:               V2,
			Heads:                 ourHeads,
			Need:                  ourNeed,
			Have:                  have,
			WholeDoc:              d.SaveDoc(),
			SupportedCapabilities: []Capability{CapMessageV2},
		}
		s.noteSent(ourHeads, nil)
		return msg
	}

	toSend := changesToSend(d, s)

	// A message is only "in flight" while its contents could still
	// matter: once the peer's reported heads match ours it has nothing
	// left to learn from it, answered or not.
	if s.InFlight && sameHeads(ourHeads, s.TheirHeads) {
		s.InFlight = false
	}

	if sameHeads(ourHeads, s.LastSentHeads) && s.HaveResponded &&
		sameHeads(ourHeads, s.TheirHeads) && len(toSend) == 0 && !s.InFlight {
		return nil
	}

	raw := make([][]byte, len(toSend))
	sent := make([]change.Hash, len(toSend))
	for i, c := range toSend {
		raw[i] = d.EncodeChange(c)
		sent[i] = c.Hash
	}

	msg := &Message{
		Version:               version,
		Heads:                 ourHeads,
		Need:                  ourNeed,
		Have:                  have,
		Changes:               raw,
		SupportedCapabilities: []Capability{CapMessageV2},
	}
	s.noteSent(ourHeads, sent)
	return msg
}

func (s *State) noteSent(heads []change.Hash, sent []change.Hash) {
	s.LastSentHeads = heads
	s.HaveResponded = true
	s.InFlight = true
	for _, h := range sent {
		s.SentHashes[h] = struct{}{}
	}
}

// changesToSend picks the changes the peer's last message showed it to
// be missing: everything since its last_sync heads its bloom does not
// contain, the deps those transitively require, and its explicit need
// list — minus anything already on the wire.
func changesToSend(d DocAccess, s *State) []*change.Change {
	if !s.heardFromPeer {
		return nil
	}

	var lastSync []change.Hash
	var blooms []*Filter
	reset := false
	for _, h := range s.TheirHave {
		for _, ls := range h.LastSync {
			if !d.HasChange(ls) {
				// Peer summarized from heads we do not know: their
				// history diverged from anything we can reason about,
				// so fall back to a bloom-less full resend.
				reset = true
			}
			lastSync = append(lastSync, ls)
		}
		if h.Bloom != nil {
			blooms = append(blooms, h.Bloom)
		}
	}
	if reset {
		lastSync = nil
		blooms = nil
	}

	peerProbablyHas := func(h change.Hash) bool {
		for _, b := range blooms {
			if b.Contains(h) {
				return true
			}
		}
		return false
	}

	candidates := d.ChangesSince(lastSync)
	candidateSet := make(map[change.Hash]*change.Change, len(candidates))
	for _, c := range candidates {
		candidateSet[c.Hash] = c
	}

	picked := make(map[change.Hash]*change.Change)
	var queue []*change.Change
	enqueue := func(c *change.Change) {
		if _, ok := picked[c.Hash]; ok {
			return
		}
		if _, sent := s.SentHashes[c.Hash]; sent {
			return
		}
		picked[c.Hash] = c
		queue = append(queue, c)
	}

	haveBlooms := len(blooms) > 0 && !reset
	for _, c := range candidates {
		if !haveBlooms || !peerProbablyHas(c.Hash) {
			enqueue(c)
		}
	}
	for _, h := range s.TheirNeed {
		if c, ok := d.GetChange(h); ok {
			// Explicit need overrides the sent-hashes suppression: the
			// peer asking again means the earlier copy did not land.
			delete(s.SentHashes, h)
			enqueue(c)
		}
	}

	// Transitive dep closure within the unshared window.
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		for _, dep := range c.Deps {
			if dc, ok := candidateSet[dep]; ok && !peerProbablyHas(dep) {
				enqueue(dc)
			}
		}
	}

	// Dependency order: candidates is already topologically sorted, so
	// filter it rather than re-sorting the picked set.
	var out []*change.Change
	for _, c := range candidates {
		if _, ok := picked[c.Hash]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Receive applies one incoming message to the document and updates s.
// Malformed messages are reported without touching anything; changes
// with unmet deps are parked by the document's causal-ready queue, not
// errors.
func Receive(d DocAccess, s *State, data []byte) error {
	m, err := DecodeMessage(data)
	if err != nil {
		return err
	}

	oldHeads := hashSet(d.Heads())

	if m.WholeDoc != nil {
		if err := d.LoadDocBytes(m.WholeDoc); err != nil {
			return err
		}
	} else if len(m.Changes) > 0 {
		if err := d.ApplyChangeBytes(m.Changes); err != nil {
			return err
		}
	}

	s.heardFromPeer = true
	s.TheirHeads = m.Heads
	s.TheirNeed = m.Need
	s.TheirHave = m.Have
	s.TheirCapabilities = m.SupportedCapabilities
	s.InFlight = false

	// Advance shared heads: heads we gained from this message plus the
	// peer's heads we can verify, deduplicated and sorted.
	shared := make(map[change.Hash]struct{})
	for _, h := range d.Heads() {
		if _, had := oldHeads[h]; !had {
			shared[h] = struct{}{}
		}
	}
	for _, h := range m.Heads {
		if d.HasChange(h) {
			shared[h] = struct{}{}
		}
	}
	s.SharedHeads = sortedHashes(shared)

	// Drop sent-hash tracking for everything the peer's heads prove it
	// now has.
	if len(s.SentHashes) > 0 {
		unacked := make(map[change.Hash]struct{})
		for _, c := range d.ChangesSince(m.Heads) {
			unacked[c.Hash] = struct{}{}
		}
		for h := range s.SentHashes {
			if _, still := unacked[h]; !still && d.HasChange(h) {
				delete(s.SentHashes, h)
			}
		}
	}

	return nil
}

func sortedHashes(set map[change.Hash]struct{}) []change.Hash {
	out := make([]change.Hash, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
