// Package evaluator resolves a module descriptor against a build context.
//
// Resolution is pure: the descriptor is only read, nothing is cached and the
// returned config is freshly allocated, so callers may resolve different
// modules concurrently.
package evaluator

import (
	"fmt"

	"github.com/zakazane/modrules/pkg/rules"
	"github.com/zakazane/modrules/pkg/types"
	"github.com/zakazane/modrules/pkg/versiongate"
)

// Resolve evaluates d for ctx, gating a definition on each of reqs.
// It returns either a complete config or a *ConfigError.
func Resolve(d types.ModuleDescriptor, ctx types.BuildContext, reqs []types.EngineVersion) (*types.ResolvedModuleConfig, error) {
	var problems []error

	if d.Name == "" {
		problems = append(problems, ErrMissingModuleName)
	}
	if err := versiongate.Validate(ctx.HostVersion); err != nil {
		problems = append(problems, fmt.Errorf("host version: %w", err))
	}

	for i, rule := range d.ConditionalRules {
		if rule.Predicate == nil {
			problems = append(problems, fmt.Errorf("rule %d: %w", i, ErrMissingPredicate))
		}
	}

	definitions := make(map[string]string, len(reqs))
	for _, req := range reqs {
		if err := versiongate.Validate(req); err != nil {
			problems = append(problems, fmt.Errorf("version check: %w", err))
			continue
		}
		name, value := versiongate.Definition(d.DefinitionPrefix, req, ctx.HostVersion)
		if _, exists := definitions[name]; exists {
			problems = append(problems, fmt.Errorf("%s: %w", name, ErrDuplicateDefinitionKey))
			continue
		}
		definitions[name] = value
	}

	if len(problems) > 0 {
		return nil, &ConfigError{Module: d.Name, Problems: problems}
	}

	extraPublic, extraPrivate := rules.Evaluate(d.ConditionalRules, ctx)

	public := appendUnique(nil, d.PublicDependencies, extraPublic)
	inPublic := make(map[string]bool, len(public))
	for _, name := range public {
		inPublic[name] = true
	}

	var warnings []types.ConfigurationWarning
	private := make([]string, 0, len(d.PrivateDependencies)+len(extraPrivate))
	for _, name := range appendUnique(nil, d.PrivateDependencies, extraPrivate) {
		if inPublic[name] {
			warnings = append(warnings, types.ConfigurationWarning{
				Module:     d.Name,
				Dependency: name,
				Message:    "declared as both public and private; keeping public",
			})
			continue
		}
		private = append(private, name)
	}

	return &types.ResolvedModuleConfig{
		Name:                d.Name,
		PublicDependencies:  public,
		PrivateDependencies: private,
		Definitions:         definitions,
		PCHUsage:            d.PCHUsage,
		WarningsAsErrors:    d.WarningsAsErrors,
		Warnings:            warnings,
	}, nil
}

// ResolveDescriptor resolves d using its own version requirements
func ResolveDescriptor(d types.ModuleDescriptor, ctx types.BuildContext) (*types.ResolvedModuleConfig, error) {
	return Resolve(d, ctx, d.VersionRequirements)
}

// appendUnique appends the names of each list to dst, skipping names
// already seen. The first occurrence wins.
func appendUnique(dst []string, lists ...[]string) []string {
	total := 0
	for _, l := range lists {
		total += len(l)
	}
	if dst == nil {
		dst = make([]string, 0, total)
	}

	seen := make(map[string]bool, total)
	for _, name := range dst {
		seen[name] = true
	}
	for _, l := range lists {
		for _, name := range l {
			if seen[name] {
				continue
			}
			seen[name] = true
			dst = append(dst, name)
		}
	}
	return dst
}
