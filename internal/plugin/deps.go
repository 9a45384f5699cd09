package plugin

import (
	"strings"

	"golang.org/x/mod/semver"
)

// VersionSatisfies reports whether version falls within constraint.
// Supported forms: "", "*", "1.2.3", "=1.2.3", ">=", "<=", ">", "<",
// "^1.2.0" (same major) and "~1.2.0" (same major.minor).
func VersionSatisfies(version, constraint string) bool {
	constraint = strings.TrimSpace(constraint)
	if constraint == "" || constraint == "*" || constraint == "x" {
		return true
	}

	v := canonical(version)
	if !semver.IsValid(v) {
		return false
	}

	var op, cv string
	switch {
	case strings.HasPrefix(constraint, ">="):
		op, cv = ">=", constraint[2:]
	case strings.HasPrefix(constraint, "<="):
		op, cv = "<=", constraint[2:]
	case strings.HasPrefix(constraint, ">"):
		op, cv = ">", constraint[1:]
	case strings.HasPrefix(constraint, "<"):
		op, cv = "<", constraint[1:]
	case strings.HasPrefix(constraint, "^"):
		op, cv = "^", constraint[1:]
	case strings.HasPrefix(constraint, "~"):
		op, cv = "~", constraint[1:]
	case strings.HasPrefix(constraint, "="):
		op, cv = "=", constraint[1:]
	default:
		op, cv = "=", constraint
	}

	c := canonical(strings.TrimSpace(cv))
	if !semver.IsValid(c) {
		return false
	}

	cmp := semver.Compare(v, c)
	switch op {
	case ">=":
		return cmp >= 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case "<":
		return cmp < 0
	case "^":
		return semver.Major(v) == semver.Major(c) && cmp >= 0
	case "~":
		return semver.MajorMinor(v) == semver.MajorMinor(c) && cmp >= 0
	default:
		return cmp == 0
	}
}

func canonical(v string) string {
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// DependencySatisfied reports whether dep is installed at an acceptable version.
func DependencySatisfied(lookup Lookup, dep Dependency) bool {
	p, ok := lookup.Plugin(dep.ID)
	if !ok {
		return false
	}
	return VersionSatisfies(p.Version, dep.Version)
}

// FirstMissing returns the first dependency, in declaration order, that is
// not satisfied.
func FirstMissing(lookup Lookup, deps []Dependency) (Dependency, bool) {
	for _, dep := range deps {
		if !DependencySatisfied(lookup, dep) {
			return dep, true
		}
	}
	return Dependency{}, false
}
