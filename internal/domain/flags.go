package domain

import "strings"

// Flag names one boolean torrent attribute. The zero-based value is also the
// bit position used by the packed integer representation.
type Flag uint8

const (
	FlagAnonymous Flag = iota
	FlagHidden
	FlagTrusted
	FlagRemake
	FlagComplete
	FlagDeleted
	FlagBanned
	FlagCommentLocked
)

var allFlags = [...]Flag{
	FlagAnonymous,
	FlagHidden,
	FlagTrusted,
	FlagRemake,
	FlagComplete,
	FlagDeleted,
	FlagBanned,
	FlagCommentLocked,
}

var flagNames = [...]string{
	FlagAnonymous:     "anonymous",
	FlagHidden:        "hidden",
	FlagTrusted:       "trusted",
	FlagRemake:        "remake",
	FlagComplete:      "complete",
	FlagDeleted:       "deleted",
	FlagBanned:        "banned",
	FlagCommentLocked: "comment_locked",
}

// String returns the attribute name, which document backends also use as the field name.
func (f Flag) String() string {
	if int(f) < len(flagNames) {
		return flagNames[f]
	}
	return "unknown"
}

// AllFlags lists every known attribute in bit order.
func AllFlags() []Flag {
	out := make([]Flag, len(allFlags))
	copy(out, allFlags[:])
	return out
}

func (f Flag) bit() int64 {
	return 1 << uint(f)
}

// Flags is the canonical, named-boolean representation of torrent attributes.
type Flags struct {
	Anonymous     bool `json:"anonymous"`
	Hidden        bool `json:"hidden"`
	Trusted       bool `json:"trusted"`
	Remake        bool `json:"remake"`
	Complete      bool `json:"complete"`
	Deleted       bool `json:"deleted"`
	Banned        bool `json:"banned"`
	CommentLocked bool `json:"commentLocked"`
}

func (f Flags) Has(flag Flag) bool {
	switch flag {
	case FlagAnonymous:
		return f.Anonymous
	case FlagHidden:
		return f.Hidden
	case FlagTrusted:
		return f.Trusted
	case FlagRemake:
		return f.Remake
	case FlagComplete:
		return f.Complete
	case FlagDeleted:
		return f.Deleted
	case FlagBanned:
		return f.Banned
	case FlagCommentLocked:
		return f.CommentLocked
	default:
		return false
	}
}

func (f *Flags) Set(flag Flag, value bool) {
	switch flag {
	case FlagAnonymous:
		f.Anonymous = value
	case FlagHidden:
		f.Hidden = value
	case FlagTrusted:
		f.Trusted = value
	case FlagRemake:
		f.Remake = value
	case FlagComplete:
		f.Complete = value
	case FlagDeleted:
		f.Deleted = value
	case FlagBanned:
		f.Banned = value
	case FlagCommentLocked:
		f.CommentLocked = value
	}
}

// Bitmask packs the attributes into the legacy integer column encoding.
func (f Flags) Bitmask() int64 {
	var mask int64
	for _, flag := range allFlags {
		if f.Has(flag) {
			mask |= flag.bit()
		}
	}
	return mask
}

// FlagsFromBitmask is the inverse of Flags.Bitmask. Unknown bits are ignored.
func FlagsFromBitmask(mask int64) Flags {
	var f Flags
	for _, flag := range allFlags {
		f.Set(flag, mask&flag.bit() != 0)
	}
	return f
}

// FlagPredicate requires some attributes to be set and others to be clear.
// A flag listed in both Require and Forbid makes the predicate unsatisfiable.
type FlagPredicate struct {
	Require []Flag
	Forbid  []Flag
}

func (p FlagPredicate) IsZero() bool {
	return len(p.Require) == 0 && len(p.Forbid) == 0
}

func (p FlagPredicate) Matches(f Flags) bool {
	for _, flag := range p.Require {
		if !f.Has(flag) {
			return false
		}
	}
	for _, flag := range p.Forbid {
		if f.Has(flag) {
			return false
		}
	}
	return true
}

// Merge returns the conjunction of both predicates, deduplicated and in bit order.
func (p FlagPredicate) Merge(other FlagPredicate) FlagPredicate {
	return FlagPredicate{
		Require: unionFlags(p.Require, other.Require),
		Forbid:  unionFlags(p.Forbid, other.Forbid),
	}
}

// Bitmask translates the predicate to the packed encoding: a row matches
// when (flags & mask) == value.
func (p FlagPredicate) Bitmask() (mask, value int64) {
	for _, flag := range p.Require {
		mask |= flag.bit()
		value |= flag.bit()
	}
	for _, flag := range p.Forbid {
		mask |= flag.bit()
	}
	return mask, value
}

// HiddenBitmask is the mask that isolates the hidden attribute, used by
// backends that express the owner exception as a separate OR clause.
func HiddenBitmask() int64 {
	return FlagHidden.bit()
}

// Key renders the predicate deterministically for cache signatures.
func (p FlagPredicate) Key() string {
	req := make([]string, 0, len(p.Require))
	for _, flag := range unionFlags(p.Require, nil) {
		req = append(req, flag.String())
	}
	forbid := make([]string, 0, len(p.Forbid))
	for _, flag := range unionFlags(p.Forbid, nil) {
		forbid = append(forbid, flag.String())
	}
	return "+" + strings.Join(req, ",") + ";-" + strings.Join(forbid, ",")
}

func unionFlags(a, b []Flag) []Flag {
	var seen [len(allFlags)]bool
	for _, flag := range a {
		if int(flag) < len(seen) {
			seen[flag] = true
		}
	}
	for _, flag := range b {
		if int(flag) < len(seen) {
			seen[flag] = true
		}
	}
	out := make([]Flag, 0, len(a)+len(b))
	for _, flag := range allFlags {
		if seen[flag] {
			out = append(out, flag)
		}
	}
	return out
}
