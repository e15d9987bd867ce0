package types

// ObjType identifies the kind of object an id refers to.
type ObjType int

const (
	ObjTypeMap ObjType = iota
	ObjTypeTable
	ObjTypeList
	ObjTypeText
)

func (t ObjType) String() string {
	switch t {
	case ObjTypeMap:
		return "map"
	case ObjTypeTable:
		return "table"
	case ObjTypeList:
		return "list"
	case ObjTypeText:
		return "text"
	default:
		return "unknown"
	}
}

// IsSequence reports whether objects of this type are ordered by
// position (list/text) rather than by key (map/table).
func (t ObjType) IsSequence() bool {
	return t == ObjTypeList || t == ObjTypeText
}

// OpAction is the action an operation performs.
type OpAction int

const (
	ActionMakeMap OpAction = iota
	ActionMakeTable
	ActionMakeList
	ActionMakeText
	ActionSet
	ActionDelete
	ActionIncrement
	ActionMarkBegin
	ActionMarkEnd
)

func (a OpAction) String() string {
	switch a {
	case ActionMakeMap:
		return "makeMap"
	case ActionMakeTable:
		return "makeTable"
	case ActionMakeList:
		return "makeList"
	case ActionMakeText:
		return "makeText"
	case ActionSet:
		return "set"
	case ActionDelete:
		return "del"
	case ActionIncrement:
		return "inc"
	case ActionMarkBegin:
		return "markBegin"
	case ActionMarkEnd:
		return "markEnd"
	default:
		return "unknown"
	}
}

// IsMake reports whether the action creates a new object.
func (a OpAction) IsMake() bool {
	switch a {
	case ActionMakeMap, ActionMakeTable, ActionMakeList, ActionMakeText:
		return true
	default:
		return false
	}
}

// ObjTypeFor returns the object type created by a Make* action. Panics
// (a core invariant violation, not user-triggerable) if a is not a Make
// action.
func (a OpAction) ObjTypeFor() ObjType {
	switch a {
	case ActionMakeMap:
		return ObjTypeMap
	case ActionMakeTable:
		return ObjTypeTable
	case ActionMakeList:
		return ObjTypeList
	case ActionMakeText:
		return ObjTypeText
	default:
		panic("types: ObjTypeFor called on non-Make action")
	}
}
