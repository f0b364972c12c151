// Package semver provides procedure reference parsing and signature version checks.
package semver

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const logPrefix = "semver:parser"

// ProcedureRef is a procedure name optionally pinned to a signature version
// range, written name or name@range.
type ProcedureRef struct {
	Name  string
	Range string // empty accepts any version
}

var majorOnlyRegex = regexp.MustCompile(`^\d+$`)

// ParseProcedureRef splits a method string at its first '@'.
//
//	setScreenTimeout           any version
//	setScreenTimeout@1         major 1
//	setScreenTimeout@1.0.0     exactly 1.0.0
//	setScreenTimeout@^1.2.0    caret, tilde and comparison ranges
func ParseProcedureRef(method string) (*ProcedureRef, error) {
	trimmed := strings.TrimSpace(method)
	name, rangeStr, pinned := strings.Cut(trimmed, "@")
	name = strings.TrimSpace(name)
	rangeStr = strings.TrimSpace(rangeStr)

	if name == "" {
		return nil, fmt.Errorf("%s - missing procedure name in %q", logPrefix, method)
	}
	if pinned && rangeStr == "" {
		return nil, fmt.Errorf("%s - empty version range in %q", logPrefix, method)
	}
	return &ProcedureRef{Name: name, Range: rangeStr}, nil
}

func (r *ProcedureRef) String() string {
	if r.Range == "" {
		return r.Name
	}
	return r.Name + "@" + r.Range
}

// IsMajorOnly reports whether rangeStr is a bare major version such as "3".
func IsMajorOnly(rangeStr string) bool {
	return majorOnlyRegex.MatchString(rangeStr)
}

// majorOf returns the major of a major-only range, or -1.
func majorOf(rangeStr string) int {
	if !IsMajorOnly(rangeStr) {
		return -1
	}
	major, err := strconv.Atoi(rangeStr)
	if err != nil {
		return -1
	}
	return major
}
