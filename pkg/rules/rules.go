// Package rules evaluates conditional dependency rules against a build
// context and compiles declarative conditions into predicates.
package rules

import (
	"errors"
	"fmt"

	"github.com/zakazane/modrules/pkg/types"
	"github.com/zakazane/modrules/pkg/versiongate"
)

// ErrUnknownPredicateContext is returned when a condition references a
// context field or operator that cannot be evaluated
var ErrUnknownPredicateContext = errors.New("unknown predicate context")

// ErrMissingPredicate is returned for a rule built without a predicate
var ErrMissingPredicate = errors.New("rule has no predicate")

// Always matches every build
func Always(types.BuildContext) bool { return true }

// EditorBuild matches editor builds
func EditorBuild(ctx types.BuildContext) bool { return ctx.IsEditorBuild }

// RuntimeBuild matches non-editor builds
func RuntimeBuild(ctx types.BuildContext) bool { return !ctx.IsEditorBuild }

// HostAtLeast matches hosts at or above v
func HostAtLeast(v types.EngineVersion) types.Predicate {
	return func(ctx types.BuildContext) bool {
		return versiongate.IsAtOrAbove(v, ctx.HostVersion)
	}
}

// Evaluate applies rules in declaration order and returns the extra
// dependencies contributed by the rules whose predicate holds. A rule
// without a predicate never applies; evaluator.Resolve rejects such rules
// before calling Evaluate.
func Evaluate(rules []types.ConditionalRule, ctx types.BuildContext) (extraPublic, extraPrivate []string) {
	for _, rule := range rules {
		if rule.Predicate == nil || !rule.Predicate(ctx) {
			continue
		}
		extraPublic = append(extraPublic, rule.ExtraPublicDependencies...)
		extraPrivate = append(extraPrivate, rule.ExtraPrivateDependencies...)
	}
	return extraPublic, extraPrivate
}

// Compile turns a declarative condition into a predicate
func Compile(cond types.Condition) (types.Predicate, error) {
	var pred types.Predicate

	switch cond.Field {
	case types.ContextFieldEditorBuild:
		if cond.Equals == nil {
			return nil, fmt.Errorf("%w: %s requires equals", ErrUnknownPredicateContext, cond.Field)
		}
		if cond.AtLeast != nil || cond.Below != nil {
			return nil, fmt.Errorf("%w: %s does not support version bounds", ErrUnknownPredicateContext, cond.Field)
		}
		if *cond.Equals {
			pred = EditorBuild
		} else {
			pred = RuntimeBuild
		}

	case types.ContextFieldHostVersion:
		if cond.Equals != nil {
			return nil, fmt.Errorf("%w: %s does not support equals", ErrUnknownPredicateContext, cond.Field)
		}
		if cond.AtLeast == nil && cond.Below == nil {
			return nil, fmt.Errorf("%w: %s requires atLeast or below", ErrUnknownPredicateContext, cond.Field)
		}
		for _, bound := range []*types.EngineVersion{cond.AtLeast, cond.Below} {
			if bound == nil {
				continue
			}
			if err := versiongate.Validate(*bound); err != nil {
				return nil, err
			}
		}
		pred = hostVersionBetween(cond.AtLeast, cond.Below)

	case "":
		return nil, fmt.Errorf("%w: missing field", ErrUnknownPredicateContext)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPredicateContext, cond.Field)
	}

	if cond.Negate {
		inner := pred
		pred = func(ctx types.BuildContext) bool { return !inner(ctx) }
	}
	return pred, nil
}

// CompileRule compiles a rule as written in a descriptor file
func CompileRule(spec types.RuleSpec) (types.ConditionalRule, error) {
	pred, err := Compile(spec.When)
	if err != nil {
		return types.ConditionalRule{}, err
	}
	return types.ConditionalRule{
		Description:              spec.Description,
		Predicate:                pred,
		ExtraPublicDependencies:  spec.Public,
		ExtraPrivateDependencies: spec.Private,
	}, nil
}

func hostVersionBetween(atLeast, below *types.EngineVersion) types.Predicate {
	atLeast, below = copyVersion(atLeast), copyVersion(below)
	return func(ctx types.BuildContext) bool {
		if atLeast != nil && !versiongate.IsAtOrAbove(*atLeast, ctx.HostVersion) {
			return false
		}
		if below != nil && versiongate.IsAtOrAbove(*below, ctx.HostVersion) {
			return false
		}
		return true
	}
}

func copyVersion(v *types.EngineVersion) *types.EngineVersion {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
