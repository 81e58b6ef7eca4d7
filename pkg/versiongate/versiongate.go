// Package versiongate compares engine versions and turns the result into
// compile-time definitions.
package versiongate

import (
	"errors"
	"fmt"
	"strings"

	mm "github.com/Masterminds/semver/v3"
	"github.com/zakazane/modrules/pkg/types"
)

// ErrNegativeVersion is returned for versions with a negative component
var ErrNegativeVersion = errors.New("negative version component")

// DefinitionValue returns the definition value for a gate result
func DefinitionValue(atOrAbove bool) string {
	if atOrAbove {
		return "1"
	}
	return "0"
}

// IsAtOrAbove reports whether host is at or above requested. Minor versions
// are only compared when the majors are equal.
func IsAtOrAbove(requested, host types.EngineVersion) bool {
	return host.Major > requested.Major ||
		(host.Major == requested.Major && host.Minor >= requested.Minor)
}

// FormatDefinitionName builds PREFIX_USE_{major}_{minor}
func FormatDefinitionName(prefix string, requested types.EngineVersion) string {
	if prefix == "" {
		prefix = types.DefaultDefinitionPrefix
	}
	return fmt.Sprintf("%s_USE_%d_%d", prefix, requested.Major, requested.Minor)
}

// Definition returns the definition name and its "0"/"1" value
func Definition(prefix string, requested, host types.EngineVersion) (string, string) {
	return FormatDefinitionName(prefix, requested), DefinitionValue(IsAtOrAbove(requested, host))
}

// Validate rejects versions with negative components
func Validate(v types.EngineVersion) error {
	if v.Major < 0 || v.Minor < 0 {
		return fmt.Errorf("version %d.%d: %w", v.Major, v.Minor, ErrNegativeVersion)
	}
	return nil
}

// ParseEngineVersion parses a host version such as "5.4", "5.5.1" or
// "v5.3". Patch, prerelease and build metadata are dropped.
func ParseEngineVersion(raw string) (types.EngineVersion, error) {
	v, err := mm.NewVersion(strings.TrimSpace(raw))
	if err != nil {
		return types.EngineVersion{}, fmt.Errorf("versiongate: parse engine version %q: %w", raw, err)
	}
	return types.EngineVersion{Major: int(v.Major()), Minor: int(v.Minor())}, nil
}

// MustParseEngineVersion is like ParseEngineVersion but panics on error
func MustParseEngineVersion(raw string) types.EngineVersion {
	v, err := ParseEngineVersion(raw)
	if err != nil {
		panic(err)
	}
	return v
}
