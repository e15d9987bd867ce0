package format

import (
	"sort"

	"weave/internal/change"
	"weave/internal/opset"
	"weave/internal/varint"
	"weave/pkg/types"
)

const formatVersion = 1

// encodeDocumentBody renders the Document chunk body: a small header
// (version, actor table, heads), the RawColumns-packed op columns, and
// a ChangeCollector section giving every applied change's metadata
// (hash, actor, seq, deps, message/author, time) so the change graph
// can be rebuilt without re-deriving it from the columns.
func encodeDocumentBody(os *opset.OpSet, g *change.Graph, compress bool) []byte {
	var out []byte
	putUvarint := func(v uint64) {
		tmp := make([]byte, 9)
		n := varint.PutUvarint(tmp, v)
		out = append(out, tmp[:n]...)
	}
	putBytes := func(b []byte) {
		putUvarint(uint64(len(b)))
		out = append(out, b...)
	}

	putUvarint(formatVersion)

	actors := os.Actors.All()
	putUvarint(uint64(len(actors)))
	for _, a := range actors {
		putBytes(a)
	}

	heads := g.Heads()
	putUvarint(uint64(len(heads)))
	for _, h := range heads {
		out = append(out, h[:]...)
	}

	ops := os.AllOps()
	putUvarint(uint64(len(ops)))
	putBytes(packOps(ops, compress))

	// Changes are rendered in canonical order — start_op ascending,
	// ties by hash — rather than arrival order, so two replicas that
	// applied the same set in different orders save identical bytes. A
	// change's start_op always exceeds the max op of everything it
	// depends on, so this order is also topological and the loader can
	// relink the graph front to back.
	applied := g.All()
	sort.Slice(applied, func(i, j int) bool {
		if applied[i].StartOp != applied[j].StartOp {
			return applied[i].StartOp < applied[j].StartOp
		}
		return applied[i].Hash.Less(applied[j].Hash)
	})
	putUvarint(uint64(len(applied)))
	for _, c := range applied {
		putBytes(encodeChangeBody(c))
	}

	return out
}

// decodeDocumentBody is the inverse of encodeDocumentBody: it replays
// the op columns into a fresh op-set and reconstructs the change graph
// from the embedded metadata without re-applying any op (the columns
// already hold their effect).
func decodeDocumentBody(body []byte) (*opset.OpSet, *change.Graph, error) {
	pos := 0
	readUvar := func() (uint64, error) {
		v, n := varint.Uvarint(body[pos:])
		if n == 0 {
			return 0, types.ErrInvalidColumns
		}
		pos += n
		return v, nil
	}
	readBytes := func() ([]byte, error) {
		l, err := readUvar()
		if err != nil {
			return nil, err
		}
		if pos+int(l) > len(body) {
			return nil, types.ErrInvalidColumns
		}
		out := make([]byte, l)
		copy(out, body[pos:pos+int(l)])
		pos += int(l)
		return out, nil
	}

	version, err := readUvar()
	if err != nil {
		return nil, nil, err
	}
	if version != formatVersion {
		return nil, nil, types.ErrInvalidColumns
	}

	actorCount, err := readUvar()
	if err != nil {
		return nil, nil, err
	}
	actors := make([]types.ActorID, actorCount)
	for i := range actors {
		a, err := readBytes()
		if err != nil {
			return nil, nil, err
		}
		actors[i] = types.ActorID(a)
	}

	headCount, err := readUvar()
	if err != nil {
		return nil, nil, err
	}
	for i := 0; i < int(headCount); i++ {
		if pos+32 > len(body) {
			return nil, nil, types.ErrInvalidColumns
		}
		pos += 32 // heads are re-derived by the graph from its applied changes
	}

	opCount, err := readUvar()
	if err != nil {
		return nil, nil, err
	}
	packed, err := readBytes()
	if err != nil {
		return nil, nil, err
	}
	ops, err := unpackOps(int(opCount), packed)
	if err != nil {
		return nil, nil, err
	}

	os := opset.New()
	os.Actors = types.LoadActorTable(actors)
	for _, op := range ops {
		os.Insert(op)
	}

	changeCount, err := readUvar()
	if err != nil {
		return nil, nil, err
	}
	g := change.NewGraph()
	for i := uint64(0); i < changeCount; i++ {
		b, err := readBytes()
		if err != nil {
			return nil, nil, err
		}
		c, err := decodeChangeBody(b)
		if err != nil {
			return nil, nil, err
		}
		if err := g.Add(c); err != nil {
			return nil, nil, err
		}
	}

	return os, g, nil
}

// Save renders a full Document chunk for the current op-set and graph
// state, plus one Change chunk per not-yet-causally-ready parked change
// ("orphan changes" — changes accepted but not yet
// reflected in the op-set, so they cannot live inside the snapshot).
func Save(os *opset.OpSet, g *change.Graph) []byte {
	return save(os, g, true)
}

// SaveNoCompress is Save with per-column DEFLATE disabled, trading blob
// size for a byte layout that is directly inspectable.
func SaveNoCompress(os *opset.OpSet, g *change.Graph) []byte {
	return save(os, g, false)
}

func save(os *opset.OpSet, g *change.Graph, compress bool) []byte {
	var out []byte
	out = append(out, encodeChunk(chunk{Type: ChunkDocument, Body: encodeDocumentBody(os, g, compress)})...)
	for _, c := range g.Parked() {
		out = append(out, encodeChunk(chunk{Type: ChunkChange, Body: encodeChangeBody(c)})...)
	}
	return out
}

// SaveAfter renders only the changes unreachable from heads, each as an
// individual Change chunk — no Document chunk, since the recipient
// already has everything up to heads.
func SaveAfter(g *change.Graph, heads []change.Hash) []byte {
	var out []byte
	for _, c := range g.ChangesSince(heads) {
		out = append(out, encodeChunk(chunk{Type: ChunkChange, Body: encodeChangeBody(c)})...)
	}
	return out
}

// OnPartialLoad selects Load's behavior when a chunk fails to decode.
type OnPartialLoad int

const (
	// OnPartialLoadError aborts and returns the first decode error.
	OnPartialLoadError OnPartialLoad = iota
	// OnPartialLoadIgnore keeps whatever chunks decoded successfully and
	// resumes scanning for the next valid chunk.
	OnPartialLoadIgnore
)

// VerificationMode selects whether chunk checksums are verified during
// load. DontCheck is for callers that already trust the bytes (e.g. a
// blob re-read from local storage it wrote itself) and want to skip the
// hashing pass.
type VerificationMode int

const (
	VerificationCheck VerificationMode = iota
	VerificationDontCheck
)

// LoadConfig bundles Load's knobs, zero value = strict and verifying.
type LoadConfig struct {
	OnPartial    OnPartialLoad
	Verification VerificationMode
}

// ApplyFunc applies one change to an op-set/graph pair, as
// internal/apply.ApplyChanges does for a single-element batch; Load
// takes it as a parameter rather than importing internal/apply
// directly to avoid a persistence-layer package depending on the
// mutation-layer package that in turn may depend on it for testing.
type ApplyFunc func(os *opset.OpSet, g *change.Graph, c *change.Change) error

// Load parses a document blob. If the first chunk is a Document, it
// seeds the op-set and graph directly from the snapshot; any further
// Change/CompressedChange chunks (orphans saved alongside the
// snapshot, or the whole blob when there is no Document chunk at all)
// are applied on top via applyFn. cfg.OnPartial selects strict (abort on the
// first malformed chunk) or lenient (keep whatever loaded) behavior.
func Load(data []byte, cfg LoadConfig, applyFn ApplyFunc) (*opset.OpSet, *change.Graph, error) {
	strict := cfg.OnPartial == OnPartialLoadError
	chunks, err := decodeAllChunks(data, strict, cfg.Verification == VerificationCheck)
	if err != nil {
		return nil, nil, err
	}

	var os *opset.OpSet
	var g *change.Graph
	start := 0

	if len(chunks) > 0 && chunks[0].Type == ChunkDocument {
		var loadErr error
		os, g, loadErr = decodeDocumentBody(chunks[0].Body)
		if loadErr != nil {
			if strict {
				return nil, nil, loadErr
			}
			os, g = nil, nil
		} else {
			start = 1
		}
	}
	if os == nil {
		os = opset.New()
	}
	if g == nil {
		g = change.NewGraph()
	}

	for _, c := range chunks[start:] {
		body := c.Body
		if c.Type == ChunkCompressedChange {
			decompressed, err := maybeDecompress(body, true)
			if err != nil {
				if strict {
					return nil, nil, err
				}
				continue
			}
			body = decompressed
		} else if c.Type != ChunkChange {
			continue
		}

		ch, err := decodeChangeBody(body)
		if err != nil {
			if strict {
				return nil, nil, err
			}
			continue
		}

		// A trailing change may be an orphan deliberately saved without
		// its deps: park it rather than applying blindly,
		// matching the causal-ready queue internal/apply.ApplyChanges
		// uses for a merge batch.
		if g.Has(ch.Hash) {
			continue
		}
		if !g.IsCausallyReady(ch) {
			g.Enqueue(ch)
			continue
		}
		if err := applyFn(os, g, ch); err != nil {
			if strict {
				return nil, nil, err
			}
			continue
		}
	}

	if err := g.DrainReady(func(c *change.Change) error {
		return applyFn(os, g, c)
	}); err != nil && strict {
		return nil, nil, err
	}

	return os, g, nil
}
