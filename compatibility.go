// compatibility.go: host version range checks backed by semantic versioning
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package plughost

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// DefaultHostVersion is the host version used when none is configured.
const DefaultHostVersion = "1.0.0"

// CompatibilityRange declares which host versions a plugin accepts.
//
// MinHostVersion and MaxHostVersion are inclusive bounds. Constraint is a
// semver constraint string such as ">=1.2, <2". All set fields must hold.
type CompatibilityRange struct {
	MinHostVersion string `json:"min_host_version,omitempty" yaml:"min_host_version,omitempty"`
	MaxHostVersion string `json:"max_host_version,omitempty" yaml:"max_host_version,omitempty"`
	Constraint     string `json:"constraint,omitempty" yaml:"constraint,omitempty"`
}

// IsEmpty reports whether the range places no restriction.
func (r CompatibilityRange) IsEmpty() bool {
	return strings.TrimSpace(r.MinHostVersion) == "" &&
		strings.TrimSpace(r.MaxHostVersion) == "" &&
		strings.TrimSpace(r.Constraint) == ""
}

// Allows reports whether hostVersion falls inside the range. An empty range
// allows every host. Unparsable versions are never allowed.
func (r CompatibilityRange) Allows(hostVersion string) bool {
	if r.IsEmpty() {
		return true
	}

	host, err := semver.NewVersion(strings.TrimSpace(hostVersion))
	if err != nil {
		return false
	}

	if minV := strings.TrimSpace(r.MinHostVersion); minV != "" {
		lower, err := semver.NewVersion(minV)
		if err != nil || host.LessThan(lower) {
			return false
		}
	}

	if maxV := strings.TrimSpace(r.MaxHostVersion); maxV != "" {
		upper, err := semver.NewVersion(maxV)
		if err != nil || host.GreaterThan(upper) {
			return false
		}
	}

	if expr := strings.TrimSpace(r.Constraint); expr != "" {
		constraint, err := semver.NewConstraint(expr)
		if err != nil || !constraint.Check(host) {
			return false
		}
	}

	return true
}

// ValidVersion reports whether v parses as a semantic version.
func ValidVersion(v string) bool {
	_, err := semver.NewVersion(strings.TrimSpace(v))
	return err == nil
}
