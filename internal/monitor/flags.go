package monitor

import (
	"fmt"
	"strings"
)

// Flag selects optional reporting behaviour. Flags combine as a bitset.
//
// The fsnotify backend does not pair the two halves of a rename, so with
// FlagWatchMoves every rename is reported as MovedOut on the old path, even
// within one directory, and the new path arrives as Created. Renamed and
// MovedIn are never produced by it.
type Flag uint8

const (
	FlagNone Flag = 0
	// FlagWatchMounts reports unmount events.
	FlagWatchMounts Flag = 1 << (iota - 1)
	// FlagSendMoved reports renames as a single Moved event.
	FlagSendMoved
	// FlagWatchHardLinks is accepted for compatibility. Backends without
	// hard link tracking ignore it.
	FlagWatchHardLinks
	// FlagWatchMoves reports renames as MovedOut on the source side.
	FlagWatchMoves

	flagAll = FlagWatchMounts | FlagSendMoved | FlagWatchHardLinks | FlagWatchMoves
)

var flagNames = []struct {
	flag Flag
	name string
}{
	{FlagWatchMounts, "watch_mounts"},
	{FlagSendMoved, "send_moved"},
	{FlagWatchHardLinks, "watch_hard_links"},
	{FlagWatchMoves, "watch_moves"},
}

func (flag Flag) Has(other Flag) bool {
	return other != 0 && flag&other == other
}

// Validate rejects bits outside the known set.
func (flag Flag) Validate() error {
	if unknown := flag &^ flagAll; unknown != 0 {
		return fmt.Errorf("%w: 0x%x", ErrUnsupportedFlag, uint8(unknown))
	}
	return nil
}

func (flag Flag) String() string {
	if flag == FlagNone {
		return "none"
	}
	var names []string
	for _, candidate := range flagNames {
		if flag.Has(candidate.flag) {
			names = append(names, candidate.name)
		}
	}
	if unknown := flag &^ flagAll; unknown != 0 {
		names = append(names, fmt.Sprintf("0x%x", uint8(unknown)))
	}
	return strings.Join(names, "|")
}

// ParseFlag resolves a single flag name. The empty string and "none" both
// yield FlagNone.
func ParseFlag(name string) (Flag, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	if normalized == "" || normalized == "none" {
		return FlagNone, nil
	}
	for _, candidate := range flagNames {
		if candidate.name == normalized {
			return candidate.flag, nil
		}
	}
	return FlagNone, fmt.Errorf("%w: %q", ErrUnsupportedFlag, name)
}

// ParseFlags combines several flag names.
func ParseFlags(names []string) (Flag, error) {
	var flags Flag
	for _, name := range names {
		flag, err := ParseFlag(name)
		if err != nil {
			return FlagNone, err
		}
		flags |= flag
	}
	return flags, nil
}
