package format

import (
	"weave/internal/change"
	"weave/internal/varint"
	"weave/pkg/types"
)

// encodeChangeBody renders a change to the same canonical byte layout
// change.CanonicalBytes uses for hashing (field for field, in the same
// order), since that encoding is already complete and deterministic;
// the only information it omits is the hash itself, which decodeChange
// recomputes and verifies rather than storing redundantly.
func encodeChangeBody(c *change.Change) []byte {
	return change.CanonicalBytes(c)
}

// decodeChangeBody parses a change from canonical bytes and verifies
// its content hash, mirroring change.CanonicalBytes's field order
// exactly (hash-stability property: encode then decode
// then rehash must reproduce the same hash).
func decodeChangeBody(data []byte) (*change.Change, error) {
	pos := 0
	readUvar := func() (uint64, error) {
		v, n := varint.Uvarint(data[pos:])
		if n == 0 {
			return 0, types.ErrLoadChange
		}
		pos += n
		return v, nil
	}
	readBytes := func() ([]byte, error) {
		l, err := readUvar()
		if err != nil {
			return nil, err
		}
		if pos+int(l) > len(data) {
			return nil, types.ErrLoadChange
		}
		out := make([]byte, l)
		copy(out, data[pos:pos+int(l)])
		pos += int(l)
		return out, nil
	}
	readStr := func() (string, error) {
		b, err := readBytes()
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	readObjRef := func() (change.ObjRef, error) {
		counter, err := readUvar()
		if err != nil {
			return change.ObjRef{}, err
		}
		actor, err := readUvar()
		if err != nil {
			return change.ObjRef{}, err
		}
		return change.ObjRef{Counter: counter, Actor: int(actor)}, nil
	}
	readByte := func() (byte, error) {
		if pos >= len(data) {
			return 0, types.ErrLoadChange
		}
		b := data[pos]
		pos++
		return b, nil
	}

	actorBytes, err := readBytes()
	if err != nil {
		return nil, err
	}
	seq, err := readUvar()
	if err != nil {
		return nil, err
	}
	startOp, err := readUvar()
	if err != nil {
		return nil, err
	}
	t, err := readUvar()
	if err != nil {
		return nil, err
	}

	hasMsg, err := readByte()
	if err != nil {
		return nil, err
	}
	var message *string
	if hasMsg == 1 {
		s, err := readStr()
		if err != nil {
			return nil, err
		}
		message = &s
	}

	hasAuthor, err := readByte()
	if err != nil {
		return nil, err
	}
	var author *string
	if hasAuthor == 1 {
		s, err := readStr()
		if err != nil {
			return nil, err
		}
		author = &s
	}

	depCount, err := readUvar()
	if err != nil {
		return nil, err
	}
	deps := make([]change.Hash, depCount)
	for i := range deps {
		if pos+32 > len(data) {
			return nil, types.ErrLoadChange
		}
		copy(deps[i][:], data[pos:pos+32])
		pos += 32
	}

	actorCount, err := readUvar()
	if err != nil {
		return nil, err
	}
	actors := make([]types.ActorID, actorCount)
	for i := range actors {
		a, err := readBytes()
		if err != nil {
			return nil, err
		}
		actors[i] = types.ActorID(a)
	}

	opCount, err := readUvar()
	if err != nil {
		return nil, err
	}
	ops := make([]change.OpRecord, opCount)
	for i := range ops {
		counter, err := readUvar()
		if err != nil {
			return nil, err
		}
		obj, err := readObjRef()
		if err != nil {
			return nil, err
		}
		action, err := readUvar()
		if err != nil {
			return nil, err
		}
		v, n, err := types.DecodeValue(data[pos:])
		if err != nil {
			return nil, err
		}
		pos += n

		insertByte, err := readByte()
		if err != nil {
			return nil, err
		}
		isMapByte, err := readByte()
		if err != nil {
			return nil, err
		}
		var mapKey string
		var elemKey change.ObjRef
		if isMapByte == 1 {
			mapKey, err = readStr()
			if err != nil {
				return nil, err
			}
		} else {
			elemKey, err = readObjRef()
			if err != nil {
				return nil, err
			}
		}

		predCount, err := readUvar()
		if err != nil {
			return nil, err
		}
		pred := make([]change.ObjRef, predCount)
		for j := range pred {
			pred[j], err = readObjRef()
			if err != nil {
				return nil, err
			}
		}

		markName, err := readStr()
		if err != nil {
			return nil, err
		}
		expand, err := readByte()
		if err != nil {
			return nil, err
		}

		ops[i] = change.OpRecord{
			Counter:     counter,
			Obj:         obj,
			Action:      types.OpAction(action),
			Value:       v,
			Insert:      insertByte == 1,
			IsMapKey:    isMapByte == 1,
			MapKey:      mapKey,
			ElemKey:     elemKey,
			Pred:        pred,
			MarkName:    markName,
			ExpandLeft:  expand&1 != 0,
			ExpandRight: expand&2 != 0,
		}
	}

	c := &change.Change{
		Actor:   types.ActorID(actorBytes),
		Seq:     seq,
		StartOp: startOp,
		Time:    int64(t),
		Message: message,
		Author:  author,
		Deps:    deps,
		Ops:     ops,
	}
	c.SetActors(actors)
	c.Hash = c.Rehash()
	return c, nil
}
