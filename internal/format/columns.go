package format

import (
	"bytes"
	"compress/flate"
	"io"

	"weave/internal/columnar"
	"weave/internal/opset"
	"weave/internal/varint"
	"weave/pkg/types"
)

// deflateThreshold is the byte-length past which a packed column is
// DEFLATE-compressed rather than stored raw. A tuning knob, not
// semantically load-bearing.
const deflateThreshold = 250

func putUvarint(out []byte, v uint64) []byte {
	tmp := make([]byte, 9)
	n := varint.PutUvarint(tmp, v)
	return append(out, tmp[:n]...)
}

func readUvarint(data []byte, pos int) (uint64, int, error) {
	v, n := varint.Uvarint(data[pos:])
	if n == 0 {
		return 0, 0, types.ErrInvalidColumns
	}
	return v, pos + n, nil
}

// namedColumn is one packed column plus its name, prior to the
// pack/unpack framing that bundles many of them into one byte blob.
type namedColumn struct {
	Name  string
	Bytes []byte
}

// packColumns bundles cols into the RawColumns descriptor + data
// layout: a directory of (name, stored length, is this
// column DEFLATE-compressed) followed by the column bodies back to
// back, each individually compressed past deflateThreshold.
func packColumns(cols []namedColumn, compress bool) []byte {
	var dir []byte
	dir = putUvarint(dir, uint64(len(cols)))

	var bodies [][]byte
	for _, c := range cols {
		stored, compressed := maybeCompress(c.Bytes, compress)
		dir = putUvarint(dir, uint64(len(c.Name)))
		dir = append(dir, c.Name...)
		flag := uint64(len(stored)) << 1
		if compressed {
			flag |= 1
		}
		dir = putUvarint(dir, flag)
		bodies = append(bodies, stored)
	}

	out := dir
	for _, b := range bodies {
		out = append(out, b...)
	}
	return out
}

// unpackColumns is the inverse of packColumns, returning each column's
// name mapped to its decompressed bytes, plus the number of bytes of
// data consumed (callers embedding a packed-columns blob inside a
// larger buffer need this to find what follows it).
func unpackColumns(data []byte) (map[string][]byte, int, error) {
	pos := 0
	n, pos, err := readUvarint(data, pos)
	if err != nil {
		return nil, 0, err
	}

	type spec struct {
		name       string
		length     int
		compressed bool
	}
	specs := make([]spec, 0, n)
	for i := uint64(0); i < n; i++ {
		nameLen, p2, err := readUvarint(data, pos)
		if err != nil {
			return nil, 0, err
		}
		pos = p2
		if pos+int(nameLen) > len(data) {
			return nil, 0, types.ErrInvalidColumns
		}
		name := string(data[pos : pos+int(nameLen)])
		pos += int(nameLen)

		flag, p3, err := readUvarint(data, pos)
		if err != nil {
			return nil, 0, err
		}
		pos = p3
		specs = append(specs, spec{name: name, length: int(flag >> 1), compressed: flag&1 == 1})
	}

	out := make(map[string][]byte, len(specs))
	for _, s := range specs {
		if pos+s.length > len(data) {
			return nil, 0, types.ErrInvalidColumns
		}
		raw := data[pos : pos+s.length]
		pos += s.length
		body, err := maybeDecompress(raw, s.compressed)
		if err != nil {
			return nil, 0, err
		}
		out[s.name] = body
	}
	return out, pos, nil
}

func maybeCompress(raw []byte, enabled bool) ([]byte, bool) {
	if !enabled || len(raw) <= deflateThreshold {
		return raw, false
	}
	var buf bytes.Buffer
	w, _ := flate.NewWriter(&buf, flate.DefaultCompression)
	_, _ = w.Write(raw)
	_ = w.Close()
	if buf.Len() >= len(raw) {
		return raw, false // compression didn't help; store raw
	}
	return buf.Bytes(), true
}

func maybeDecompress(data []byte, compressed bool) ([]byte, error) {
	if !compressed {
		return data, nil
	}
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, types.ErrInvalidColumns
	}
	return out, nil
}

// packRawColumn serializes a columnar.RawColumn (its offset table plus
// concatenated bytes) into a single byte slice.
func packRawColumn(rc *columnar.RawColumn) []byte {
	offsets := rc.Offsets()
	var out []byte
	out = putUvarint(out, uint64(len(offsets)))
	prev := 0
	for _, o := range offsets {
		out = putUvarint(out, uint64(o-prev))
		prev = o
	}
	return append(out, rc.Bytes()...)
}

func unpackRawColumn(data []byte) (*columnar.RawColumn, error) {
	pos := 0
	n, pos, err := readUvarint(data, pos)
	if err != nil {
		return nil, err
	}
	offsets := make([]int, n)
	prev := 0
	for i := uint64(0); i < n; i++ {
		d, p2, err := readUvarint(data, pos)
		if err != nil {
			return nil, err
		}
		pos = p2
		prev += int(d)
		offsets[i] = prev
	}
	return columnar.LoadRawColumn(data[pos:], offsets)
}

// packOps packs every op of the op-set, in the order
// internal/opset.OpSet.AllOps lists them, into named columns.
// succ is intentionally not persisted: it is fully
// derived from later ops' pred lists, so replaying the packed ops
// through opset.Insert in their stored order reconstructs it for free
// without storing redundant state.
func packOps(ops []*opset.Op, compress bool) []byte {
	n := len(ops)

	idCtr := columnar.NewDeltaColumn()
	idActor := columnar.NewColumn[uint64](columnar.EqualOps[uint64]())
	objCtr := columnar.NewDeltaColumn()
	objActor := columnar.NewColumn[uint64](columnar.EqualOps[uint64]())
	isMapKey := columnar.NewColumn[bool](columnar.EqualOps[bool]())
	keyStr := columnar.NewColumn[string](columnar.EqualOps[string]())
	keyCtr := columnar.NewDeltaColumn()
	keyActor := columnar.NewColumn[uint64](columnar.EqualOps[uint64]())
	insertCol := columnar.NewColumn[bool](columnar.EqualOps[bool]())
	action := columnar.NewColumn[uint64](columnar.EqualOps[uint64]())
	markName := columnar.NewColumn[string](columnar.EqualOps[string]())
	expand := columnar.NewColumn[uint64](columnar.EqualOps[uint64]())
	predCount := columnar.NewColumn[int](columnar.EqualOps[int]())
	predCtr := columnar.NewDeltaColumn()
	predActor := columnar.NewColumn[uint64](columnar.EqualOps[uint64]())
	value := columnar.NewRawColumn()

	idCtrItems := make([]columnar.Item[int64], n)
	idActorItems := make([]columnar.Item[uint64], n)
	objCtrItems := make([]columnar.Item[int64], n)
	objActorItems := make([]columnar.Item[uint64], n)
	isMapKeyItems := make([]columnar.Item[bool], n)
	keyStrItems := make([]columnar.Item[string], n)
	keyCtrItems := make([]columnar.Item[int64], n)
	keyActorItems := make([]columnar.Item[uint64], n)
	insertItems := make([]columnar.Item[bool], n)
	actionItems := make([]columnar.Item[uint64], n)
	markNameItems := make([]columnar.Item[string], n)
	expandItems := make([]columnar.Item[uint64], n)
	predCountItems := make([]columnar.Item[int], n)
	var predCtrItems []columnar.Item[int64]
	var predActorItemsU []columnar.Item[uint64]
	valueRows := make([][]byte, n)

	for i, op := range ops {
		idCtrItems[i] = columnar.Item[int64]{Value: int64(op.ID.Counter)}
		idActorItems[i] = columnar.Item[uint64]{Value: uint64(op.ID.Actor)}
		objCtrItems[i] = columnar.Item[int64]{Value: int64(op.Obj.Counter)}
		objActorItems[i] = columnar.Item[uint64]{Value: uint64(op.Obj.Actor)}
		isMapKeyItems[i] = columnar.Item[bool]{Value: op.IsMapKey}
		if op.IsMapKey {
			keyStrItems[i] = columnar.Item[string]{Value: op.MapKey}
			keyCtrItems[i] = columnar.Item[int64]{Null: true}
			keyActorItems[i] = columnar.Item[uint64]{Null: true}
		} else {
			keyStrItems[i] = columnar.Item[string]{Null: true}
			keyCtrItems[i] = columnar.Item[int64]{Value: int64(op.ElemKey.Counter)}
			keyActorItems[i] = columnar.Item[uint64]{Value: uint64(op.ElemKey.Actor)}
		}
		insertItems[i] = columnar.Item[bool]{Value: op.Insert}
		actionItems[i] = columnar.Item[uint64]{Value: uint64(op.Action)}
		if op.Action == types.ActionMarkBegin || op.Action == types.ActionMarkEnd {
			markNameItems[i] = columnar.Item[string]{Value: op.MarkName}
			var e uint64
			if op.ExpandLeft {
				e |= 1
			}
			if op.ExpandRight {
				e |= 2
			}
			expandItems[i] = columnar.Item[uint64]{Value: e}
		} else {
			markNameItems[i] = columnar.Item[string]{Null: true}
			expandItems[i] = columnar.Item[uint64]{Value: 0}
		}
		predCountItems[i] = columnar.Item[int]{Value: len(op.Pred)}
		for _, p := range op.Pred {
			predCtrItems = append(predCtrItems, columnar.Item[int64]{Value: int64(p.Counter)})
			predActorItemsU = append(predActorItemsU, columnar.Item[uint64]{Value: uint64(p.Actor)})
		}
		valueRows[i] = types.EncodeValue(nil, op.Value)
	}

	idCtr.Splice(0, 0, idCtrItems)
	idActor.Splice(0, 0, idActorItems)
	objCtr.Splice(0, 0, objCtrItems)
	objActor.Splice(0, 0, objActorItems)
	isMapKey.Splice(0, 0, isMapKeyItems)
	keyStr.Splice(0, 0, keyStrItems)
	keyCtr.Splice(0, 0, keyCtrItems)
	keyActor.Splice(0, 0, keyActorItems)
	insertCol.Splice(0, 0, insertItems)
	action.Splice(0, 0, actionItems)
	markName.Splice(0, 0, markNameItems)
	expand.Splice(0, 0, expandItems)
	predCount.Splice(0, 0, predCountItems)
	predCtr.Splice(0, 0, predCtrItems)
	predActor.Splice(0, 0, predActorItemsU)
	value.Splice(0, 0, valueRows)

	cols := []namedColumn{
		{"id_ctr", columnar.Encode(idCtr.RawDeltas(), columnar.Int64Codec)},
		{"id_actor", columnar.Encode(idActor, columnar.Uint64Codec)},
		{"obj_ctr", columnar.Encode(objCtr.RawDeltas(), columnar.Int64Codec)},
		{"obj_actor", columnar.Encode(objActor, columnar.Uint64Codec)},
		{"is_mapkey", columnar.Encode(isMapKey, columnar.BoolCodec)},
		{"key_str", columnar.Encode(keyStr, columnar.StringCodec)},
		{"key_ctr", columnar.Encode(keyCtr.RawDeltas(), columnar.Int64Codec)},
		{"key_actor", columnar.Encode(keyActor, columnar.Uint64Codec)},
		{"insert", columnar.Encode(insertCol, columnar.BoolCodec)},
		{"action", columnar.Encode(action, columnar.Uint64Codec)},
		{"mark_name", columnar.Encode(markName, columnar.StringCodec)},
		{"expand", columnar.Encode(expand, columnar.Uint64Codec)},
		{"pred_count", columnar.Encode(predCount, columnar.IntCodec)},
		{"pred_ctr", columnar.Encode(predCtr.RawDeltas(), columnar.Int64Codec)},
		{"pred_actor", columnar.Encode(predActor, columnar.Uint64Codec)},
		{"value", packRawColumn(value)},
	}
	return packColumns(cols, compress)
}

// unpackOps is the inverse of packOps, reconstructing the ops in their
// original physical order (ready to replay through opset.Insert).
func unpackOps(n int, data []byte) ([]*opset.Op, error) {
	named, _, err := unpackColumns(data)
	if err != nil {
		return nil, err
	}
	get := func(name string) []byte {
		return named[name]
	}

	decodeDelta := func(name string) (*columnar.DeltaColumn, error) {
		c, err := columnar.Decode(get(name), deltaOpsExported(), columnar.Int64Codec)
		if err != nil {
			return nil, err
		}
		return columnar.FromRawDeltas(c), nil
	}
	decodeU64 := func(name string) (*columnar.Column[uint64], error) {
		return columnar.Decode(get(name), columnar.EqualOps[uint64](), columnar.Uint64Codec)
	}
	decodeStr := func(name string) (*columnar.Column[string], error) {
		return columnar.Decode(get(name), columnar.EqualOps[string](), columnar.StringCodec)
	}
	decodeBool := func(name string) (*columnar.Column[bool], error) {
		return columnar.Decode(get(name), columnar.EqualOps[bool](), columnar.BoolCodec)
	}
	decodeInt := func(name string) (*columnar.Column[int], error) {
		return columnar.Decode(get(name), columnar.EqualOps[int](), columnar.IntCodec)
	}

	idCtr, err := decodeDelta("id_ctr")
	if err != nil {
		return nil, err
	}
	idActor, err := decodeU64("id_actor")
	if err != nil {
		return nil, err
	}
	objCtr, err := decodeDelta("obj_ctr")
	if err != nil {
		return nil, err
	}
	objActor, err := decodeU64("obj_actor")
	if err != nil {
		return nil, err
	}
	isMapKey, err := decodeBool("is_mapkey")
	if err != nil {
		return nil, err
	}
	keyStr, err := decodeStr("key_str")
	if err != nil {
		return nil, err
	}
	keyCtr, err := decodeDelta("key_ctr")
	if err != nil {
		return nil, err
	}
	keyActor, err := decodeU64("key_actor")
	if err != nil {
		return nil, err
	}
	insertCol, err := decodeBool("insert")
	if err != nil {
		return nil, err
	}
	action, err := decodeU64("action")
	if err != nil {
		return nil, err
	}
	markName, err := decodeStr("mark_name")
	if err != nil {
		return nil, err
	}
	expand, err := decodeU64("expand")
	if err != nil {
		return nil, err
	}
	predCount, err := decodeInt("pred_count")
	if err != nil {
		return nil, err
	}
	predCtr, err := decodeDelta("pred_ctr")
	if err != nil {
		return nil, err
	}
	predActor, err := decodeU64("pred_actor")
	if err != nil {
		return nil, err
	}
	value, err := unpackRawColumn(get("value"))
	if err != nil {
		return nil, err
	}

	ops := make([]*opset.Op, n)
	predOffset := 0
	for i := 0; i < n; i++ {
		idC, _ := idCtr.Get(i)
		idA := idActor.Get(i).Value
		objC, _ := objCtr.Get(i)
		objA := objActor.Get(i).Value
		isKey := isMapKey.Get(i).Value
		act := types.OpAction(action.Get(i).Value)
		v, _, err := types.DecodeValue(value.Get(i))
		if err != nil {
			return nil, err
		}

		op := &opset.Op{
			ID:       types.OpID{Counter: uint64(idC), Actor: int(idA)},
			Obj:      types.OpID{Counter: uint64(objC), Actor: int(objA)},
			Action:   act,
			Value:    v,
			Insert:   insertCol.Get(i).Value,
			IsMapKey: isKey,
		}
		if isKey {
			op.MapKey = keyStr.Get(i).Value
		} else {
			kc, _ := keyCtr.Get(i)
			ka := keyActor.Get(i).Value
			op.ElemKey = types.OpID{Counter: uint64(kc), Actor: int(ka)}
		}
		if mn := markName.Get(i); !mn.Null {
			op.MarkName = mn.Value
			e := expand.Get(i).Value
			op.ExpandLeft = e&1 != 0
			op.ExpandRight = e&2 != 0
		}

		cnt := predCount.Get(i).Value
		for j := 0; j < cnt; j++ {
			pc, _ := predCtr.Get(predOffset)
			pa := predActor.Get(predOffset).Value
			op.Pred = append(op.Pred, types.OpID{Counter: uint64(pc), Actor: int(pa)})
			predOffset++
		}

		ops[i] = op
	}
	return ops, nil
}

// deltaOpsExported mirrors the unexported deltaOps() ColumnOps used
// internally by DeltaColumn, needed here because Decode is generic over
// ColumnOps and this package cannot reach columnar's unexported helper.
func deltaOpsExported() columnar.ColumnOps[int64] {
	return columnar.ColumnOps[int64]{
		Equal:  func(a, b int64) bool { return a == b },
		Less:   func(a, b int64) bool { return a < b },
		Weight: func(v int64) int64 { return v },
	}
}
