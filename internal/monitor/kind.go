package monitor

import (
	"fmt"
	"strings"

	"filemonitor/internal/watcher"
)

// Kind is the semantic type of a change.
type Kind uint8

const (
	KindChanged Kind = iota + 1
	KindChangesDoneHint
	KindMovedOut
	KindDeleted
	KindCreated
	KindAttributeChanged
	KindPreUnmount
	KindUnmounted
	KindMoved
	KindRenamed
	KindMovedIn
)

var kindNames = map[Kind]string{
	KindChanged:          "changed",
	KindChangesDoneHint:  "changes_done_hint",
	KindMovedOut:         "moved_out",
	KindDeleted:          "deleted",
	KindCreated:          "created",
	KindAttributeChanged: "attribute_changed",
	KindPreUnmount:       "pre_unmount",
	KindUnmounted:        "unmounted",
	KindMoved:            "moved",
	KindRenamed:          "renamed",
	KindMovedIn:          "moved_in",
}

// Kinds lists every kind in declaration order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(kindNames))
	for kind := KindChanged; kind <= KindMovedIn; kind++ {
		kinds = append(kinds, kind)
	}
	return kinds
}

func (kind Kind) Valid() bool {
	_, ok := kindNames[kind]
	return ok
}

func (kind Kind) String() string {
	if name, ok := kindNames[kind]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(kind))
}

func (kind Kind) MarshalText() ([]byte, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("invalid kind %d", uint8(kind))
	}
	return []byte(kind.String()), nil
}

func (kind *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*kind = parsed
	return nil
}

// ParseKind resolves a kind by name.
func ParseKind(name string) (Kind, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for kind, candidate := range kindNames {
		if candidate == normalized {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unknown kind %q", name)
}

// KindFor maps a native op to its kind under the given flags. The second
// result is false for ops that have no kind; those events are dropped.
// When several bits are set the first match in the order remove, rename,
// create, write, chmod, settled, unmount wins.
func KindFor(op watcher.Op, flags Flag) (Kind, bool) {
	switch {
	case op.Has(watcher.OpRemove):
		return KindDeleted, true
	case op.Has(watcher.OpRename):
		switch {
		case flags.Has(FlagWatchMoves):
			return KindMovedOut, true
		case flags.Has(FlagSendMoved):
			return KindMoved, true
		default:
			return KindDeleted, true
		}
	case op.Has(watcher.OpCreate):
		return KindCreated, true
	case op.Has(watcher.OpWrite):
		return KindChanged, true
	case op.Has(watcher.OpChmod):
		return KindAttributeChanged, true
	case op.Has(watcher.OpSettled):
		return KindChangesDoneHint, true
	case op.Has(watcher.OpUnmount):
		if flags.Has(FlagWatchMounts) {
			return KindUnmounted, true
		}
		return 0, false
	default:
		return 0, false
	}
}
