package vera

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	filterEntrySeparator = "#"
	filterRoomSeparator  = ":"
)

// FilterPattern is one allow-list entry. A nil device pattern matches
// every device of the room.
type FilterPattern struct {
	Room   string
	Device *regexp.Regexp
}

// MatchAny reports whether the pattern accepts every device of its room.
func (p FilterPattern) MatchAny() bool {
	return p.Device == nil
}

// Filter is the compiled event allow-list. An empty filter accepts nothing.
type Filter struct {
	patterns []FilterPattern
}

// ParseFilter compiles a filter configuration such as
// "Nappali#Konyha:Light*#Garázs:Door ?".
//
// Entries are separated by '#'. An entry is either a room name or
// "room:pattern"; in the pattern '*' matches any run of characters and the
// rest is a regular expression matched against the whole device name,
// ignoring case. Blank entries are skipped.
//
// Entries that cannot be compiled are left out of the returned filter,
// which is always usable; the error lists every rejected entry.
func ParseFilter(config string) (*Filter, error) {
	f := &Filter{}
	var errs []error

	for _, entry := range strings.Split(config, filterEntrySeparator) {
		if strings.TrimSpace(entry) == "" {
			continue
		}

		room, pattern, hasPattern := strings.Cut(entry, filterRoomSeparator)
		room = strings.TrimSpace(room)
		if room == "" {
			errs = append(errs, fmt.Errorf("%w: %q has no room", ErrInvalidFilter, entry))
			continue
		}
		if !hasPattern {
			f.patterns = append(f.patterns, FilterPattern{Room: room})
			continue
		}

		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			errs = append(errs, fmt.Errorf("%w: %q has an empty device pattern", ErrInvalidFilter, entry))
			continue
		}
		re, err := compileDevicePattern(pattern)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %q: %w", ErrInvalidFilter, entry, err))
			continue
		}
		f.patterns = append(f.patterns, FilterPattern{Room: room, Device: re})
	}

	return f, errors.Join(errs...)
}

// compileDevicePattern turns a wildcard pattern into an anchored,
// case-insensitive expression.
func compileDevicePattern(pattern string) (*regexp.Regexp, error) {
	expr := strings.ReplaceAll(pattern, "*", ".*")
	return regexp.Compile("(?i)^(?:" + expr + ")$")
}

// Matches reports whether an event from device in room passes the filter.
// Patterns are tried in order and the first match wins.
func (f *Filter) Matches(room, device string) bool {
	if f == nil {
		return false
	}
	for _, p := range f.patterns {
		if !strings.EqualFold(p.Room, room) {
			continue
		}
		if p.MatchAny() || p.Device.MatchString(device) {
			return true
		}
	}
	return false
}

// Patterns returns the compiled entries in declared order.
func (f *Filter) Patterns() []FilterPattern {
	if f == nil {
		return nil
	}
	out := make([]FilterPattern, len(f.patterns))
	copy(out, f.patterns)
	return out
}

// Empty reports whether the filter has no usable entries.
func (f *Filter) Empty() bool {
	return f == nil || len(f.patterns) == 0
}
