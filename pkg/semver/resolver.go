package semver

import (
	"fmt"

	masterminds "github.com/Masterminds/semver/v3"
)

const resolverLogPrefix = "semver:resolver"

// SatisfiesRange checks if a version string satisfies a range. An empty range matches any valid version.
func SatisfiesRange(version, rangeStr string) bool {
	sv, err := masterminds.NewVersion(version)
	switch {
	case err != nil:
		return false
	case rangeStr == "":
		return true
	case IsMajorOnly(rangeStr):
		return int64(sv.Major()) == int64(majorOf(rangeStr))
	}
	constraint, err := masterminds.NewConstraint(rangeStr)
	return err == nil && constraint.Check(sv)
}

// ValidateRange checks that rangeStr is a major-only specifier or a valid constraint.
func ValidateRange(rangeStr string) error {
	if rangeStr == "" || IsMajorOnly(rangeStr) {
		return nil
	}
	if _, err := masterminds.NewConstraint(rangeStr); err != nil {
		return fmt.Errorf("%s - invalid range %q: %w", resolverLogPrefix, rangeStr, err)
	}
	return nil
}
