// Package sync implements the two-peer exchange that brings two
// replicas to a common head set: per-peer state, Bloom-filter history
// summaries, and the generate/receive message pair.
// Messages are opaque byte blobs; no transport is provided or assumed.
package sync

import "weave/internal/change"

// State is everything one replica tracks about one remote peer across
// a sync conversation. A fresh State restarts the conversation from
// nothing. Create one with NewState: the zero value has a nil
// SentHashes map and is not ready to use.
type State struct {
	// SharedHeads are heads both sides are known to have; the bloom
	// summary we send covers only changes since these.
	SharedHeads []change.Hash

	// LastSentHeads were our heads at the last message we generated,
	// used to suppress redundant messages.
	LastSentHeads []change.Hash

	// TheirHeads/TheirNeed/TheirHave mirror the peer's last message.
	// TheirHeads is nil until the peer has spoken at least once.
	TheirHeads []change.Hash
	TheirNeed  []change.Hash
	TheirHave  []Have

	// SentHashes are changes we have already put on the wire and not
	// yet seen acknowledged, so a retransmit loop cannot occur.
	SentHashes map[change.Hash]struct{}

	// InFlight is true while a message we generated has not yet been
	// answered.
	InFlight bool

	// HaveResponded is true once we have generated at least one message
	// in this conversation.
	HaveResponded bool

	// TheirCapabilities is what the peer advertised; empty means a V1
	// peer (sync compatibility rule).
	TheirCapabilities []Capability

	heardFromPeer bool
}

// NewState starts a fresh sync conversation with one peer.
func NewState() *State {
	return &State{SentHashes: make(map[change.Hash]struct{})}
}

// PeerSupportsV2 reports whether the peer has advertised the MessageV2
// capability. V1-only peers MUST be served V1 messages.
func (s *State) PeerSupportsV2() bool {
	for _, c := range s.TheirCapabilities {
		if c == CapMessageV2 {
			return true
		}
	}
	return false
}

func hashSet(hs []change.Hash) map[change.Hash]struct{} {
	out := make(map[change.Hash]struct{}, len(hs))
	for _, h := range hs {
		out[h] = struct{}{}
	}
	return out
}

func sameHeads(a, b []change.Hash) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
