package es

import (
	"fmt"
	"strconv"
	"strings"
)

// ExpectedVersion represents the caller's assertion about a stream's last position.
// It is used by append and link operations for optimistic concurrency control.
//
// The zero value is not a valid expected version and is rejected by the store.
type ExpectedVersion struct {
	kind  versionKind
	value int64
}

type versionKind uint8

const (
	versionInvalid versionKind = iota
	versionExact
	versionAny
	versionNone
	versionAuto
)

// Any returns an ExpectedVersion that skips version validation.
// Concurrent writers race freely and the appended memberships carry no position.
func Any() ExpectedVersion {
	return ExpectedVersion{kind: versionAny}
}

// None returns an ExpectedVersion asserting the stream has no events yet.
// It resolves to -1, so the first appended event receives position 0.
func None() ExpectedVersion {
	return ExpectedVersion{kind: versionNone}
}

// Auto returns an ExpectedVersion that is resolved by reading the stream's
// current last position right before writing.
//
// The read takes no lock. Two concurrent Auto appends may resolve the same
// base version; the loser is rejected by the (stream, position) constraint.
func Auto() ExpectedVersion {
	return ExpectedVersion{kind: versionAuto}
}

// Exact returns an ExpectedVersion asserting the stream's last position equals version.
// A negative version yields an invalid ExpectedVersion.
func Exact(version int64) ExpectedVersion {
	if version < 0 {
		return ExpectedVersion{kind: versionInvalid, value: version}
	}
	return ExpectedVersion{kind: versionExact, value: version}
}

// ParseExpectedVersion parses the textual form of an expected version.
// Accepted values are "any", "none", "auto" (optionally prefixed with ':')
// and non-negative decimal integers.
func ParseExpectedVersion(s string) (ExpectedVersion, error) {
	token := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ":")
	switch token {
	case "any":
		return Any(), nil
	case "none":
		return None(), nil
	case "auto":
		return Auto(), nil
	}

	version, err := strconv.ParseInt(token, 10, 64)
	if err != nil || version < 0 {
		return ExpectedVersion{}, fmt.Errorf("invalid expected version %q", s)
	}
	return Exact(version), nil
}

// IsValid reports whether ev is one of Any, None, Auto or a non-negative Exact.
func (ev ExpectedVersion) IsValid() bool {
	return ev.kind != versionInvalid
}

// IsAny returns true if this is an "Any" expected version (no version check).
func (ev ExpectedVersion) IsAny() bool {
	return ev.kind == versionAny
}

// IsNone returns true if this is a "None" expected version (stream must be empty).
func (ev ExpectedVersion) IsNone() bool {
	return ev.kind == versionNone
}

// IsAuto returns true if this is an "Auto" expected version.
func (ev ExpectedVersion) IsAuto() bool {
	return ev.kind == versionAuto
}

// IsExact returns true if this is an "Exact" expected version.
func (ev ExpectedVersion) IsExact() bool {
	return ev.kind == versionExact
}

// Value returns the exact version number if this is an Exact expected version.
// Returns 0 otherwise.
func (ev ExpectedVersion) Value() int64 {
	if ev.kind == versionExact {
		return ev.value
	}
	return 0
}

// String returns a string representation of the ExpectedVersion.
func (ev ExpectedVersion) String() string {
	switch ev.kind {
	case versionAny:
		return "Any"
	case versionNone:
		return "None"
	case versionAuto:
		return "Auto"
	case versionExact:
		return fmt.Sprintf("Exact(%d)", ev.value)
	default:
		return "Invalid"
	}
}
