package evaluator

import (
	"errors"
	"strings"

	"github.com/zakazane/modrules/pkg/rules"
	"github.com/zakazane/modrules/pkg/versiongate"
)

var (
	// ErrDuplicateDefinitionKey indicates two version checks produce the same definition
	ErrDuplicateDefinitionKey = errors.New("duplicate definition key")

	// ErrNegativeVersion indicates a version with a negative component
	ErrNegativeVersion = versiongate.ErrNegativeVersion

	// ErrMissingPredicate indicates a conditional rule without a predicate
	ErrMissingPredicate = rules.ErrMissingPredicate

	// ErrMissingModuleName indicates a descriptor without a name
	ErrMissingModuleName = errors.New("module name is required")
)

// ConfigError reports every problem found while resolving one module.
// A ConfigError is returned instead of a resolved config, never alongside one.
type ConfigError struct {
	Module   string
	Problems []error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("module ")
	if e.Module == "" {
		b.WriteString("<unnamed>")
	} else {
		b.WriteString(e.Module)
	}
	b.WriteString(": invalid configuration: ")
	for i, p := range e.Problems {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(p.Error())
	}
	return b.String()
}

// Unwrap exposes the individual problems to errors.Is and errors.As
func (e *ConfigError) Unwrap() []error {
	return e.Problems
}
