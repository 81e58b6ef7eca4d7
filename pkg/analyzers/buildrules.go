// Package analyzers imports module descriptors from existing build files
package analyzers

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/zakazane/modrules/pkg/types"
	"github.com/zakazane/modrules/pkg/validation"
)

// BuildRulesSuffix is the file suffix of module rule files
const BuildRulesSuffix = ".Build.cs"

var (
	lineCommentPattern  = regexp.MustCompile(`//[^\n]*`)
	blockCommentPattern = regexp.MustCompile(`(?s)/\*.*?\*/`)
	classPattern        = regexp.MustCompile(`class\s+(\w+)\s*:\s*ModuleRules`)
	pchPattern          = regexp.MustCompile(`PCHUsage\s*=\s*PCHUsageMode\.(\w+)`)
	warningsPattern     = regexp.MustCompile(`bWarningsAsErrors\s*=\s*(true|false)`)
	addRangePattern     = regexp.MustCompile(`(?s)(Public|Private)DependencyModuleNames\.AddRange\(\s*new\s*(?:string\s*)?\[\]\s*\{(.*?)\}\s*\)`)
	addPattern          = regexp.MustCompile(`(Public|Private)DependencyModuleNames\.Add\(\s*"([^"]+)"\s*\)`)
	quotedPattern       = regexp.MustCompile(`"([^"]+)"`)
	ifPattern           = regexp.MustCompile(`\bif\s*\(`)
	elsePattern         = regexp.MustCompile(`^\s*else\b`)
	elseIfPattern       = regexp.MustCompile(`^\s*if\s*\(`)
	editorFlagPattern   = regexp.MustCompile(`^Target\.bBuildEditor(?:(==|!=)(true|false))?$`)
	editorTypePattern   = regexp.MustCompile(`^(?:Target\.Type(==|!=)TargetType\.Editor|TargetType\.Editor(==|!=)Target\.Type)$`)
	versionCallPattern  = regexp.MustCompile(`AddUseEngineVersionDef\(\s*(\d+)\s*,\s*(\d+)\s*\)\s*;`)
	versionDefPattern   = regexp.MustCompile(`"(\w+)_USE_\{0\}_\{1\}`)
)

// BuildRulesAnalyzer reads *.Build.cs module rule files
type BuildRulesAnalyzer struct {
	projectRoot string
}

// NewBuildRulesAnalyzer creates an analyzer rooted at a plugin directory
func NewBuildRulesAnalyzer(projectRoot string) *BuildRulesAnalyzer {
	return &BuildRulesAnalyzer{projectRoot: projectRoot}
}

// Analysis is the result of scanning a plugin
type Analysis struct {
	Plugin  string
	Files   []string
	Modules []types.ModuleSpec
	Notes   []string
}

// AnalyzeProject finds every rule file under the project root and parses it.
// Files are processed in path order so the output is stable.
func (a *BuildRulesAnalyzer) AnalyzeProject() (*Analysis, error) {
	files, err := a.findRuleFiles()
	if err != nil {
		return nil, fmt.Errorf("failed to find rule files: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no %s files found in %s", BuildRulesSuffix, a.projectRoot)
	}

	analysis := &Analysis{Plugin: a.pluginName(), Files: files}
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}
		spec, notes := ParseBuildRules(string(data))
		if spec.Name == "" {
			spec.Name = strings.TrimSuffix(filepath.Base(file), BuildRulesSuffix)
		}
		for _, note := range notes {
			analysis.Notes = append(analysis.Notes, fmt.Sprintf("%s: %s", filepath.Base(file), note))
		}
		analysis.Modules = append(analysis.Modules, spec)
	}

	return analysis, nil
}

// GetRecommendedConfig converts the analysis into a descriptor set
func (a *BuildRulesAnalyzer) GetRecommendedConfig() (*types.DescriptorSet, []string, error) {
	analysis, err := a.AnalyzeProject()
	if err != nil {
		return nil, nil, err
	}
	return &types.DescriptorSet{
		Version: validation.SupportedVersion,
		Plugin:  analysis.Plugin,
		Modules: analysis.Modules,
	}, analysis.Notes, nil
}

// ParseBuildRules extracts a module spec from the source of a rule file.
// Constructs it cannot translate are reported as notes.
func ParseBuildRules(src string) (types.ModuleSpec, []string) {
	src = blockCommentPattern.ReplaceAllString(src, "")
	src = lineCommentPattern.ReplaceAllString(src, "")

	var spec types.ModuleSpec
	var notes []string

	if m := classPattern.FindStringSubmatch(src); m != nil {
		spec.Name = m[1]
	}
	if m := pchPattern.FindStringSubmatch(src); m != nil {
		spec.PCHUsage = types.PCHUsageMode(m[1])
	}
	if m := warningsPattern.FindStringSubmatch(src); m != nil {
		spec.WarningsAsErrors = types.BoolPtr(m[1] == "true")
	}

	// Conditional blocks first, then parse what is left as unconditional
	rest, blocks, blockNotes := splitConditionals(src)
	notes = append(notes, blockNotes...)

	for _, block := range blocks {
		editor, ok := editorCondition(block.cond)
		if !ok {
			notes = append(notes, fmt.Sprintf("skipped block under unsupported condition (%s)", block.cond))
			continue
		}
		spec.Rules = appendEditorRule(spec.Rules, block.body, editor, &notes)
		if block.hasElse {
			spec.Rules = appendEditorRule(spec.Rules, block.elseBody, !editor, &notes)
		}
	}

	spec.Public, spec.Private = parseDependencies(rest)

	for _, m := range versionCallPattern.FindAllStringSubmatch(rest, -1) {
		major, _ := strconv.Atoi(m[1])
		minor, _ := strconv.Atoi(m[2])
		spec.VersionChecks = append(spec.VersionChecks, types.EngineVersion{Major: major, Minor: minor})
	}
	if m := versionDefPattern.FindStringSubmatch(rest); m != nil {
		spec.DefinitionPrefix = m[1]
	} else if len(spec.VersionChecks) > 0 {
		notes = append(notes, "version checks found without a definition format, using the default prefix")
	}

	return spec, notes
}

func parseDependencies(src string) (public, private []string) {
	type match struct {
		pos   int
		scope string
		names []string
	}
	var matches []match

	for _, loc := range addRangePattern.FindAllStringSubmatchIndex(src, -1) {
		var names []string
		for _, q := range quotedPattern.FindAllStringSubmatch(src[loc[4]:loc[5]], -1) {
			names = append(names, q[1])
		}
		matches = append(matches, match{pos: loc[0], scope: src[loc[2]:loc[3]], names: names})
	}
	for _, loc := range addPattern.FindAllStringSubmatchIndex(src, -1) {
		matches = append(matches, match{pos: loc[0], scope: src[loc[2]:loc[3]], names: []string{src[loc[4]:loc[5]]}})
	}

	// Keep source order across AddRange and Add calls
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].pos < matches[j].pos })

	for _, m := range matches {
		if m.scope == "Public" {
			public = append(public, m.names...)
		} else {
			private = append(private, m.names...)
		}
	}
	return public, private
}

// conditional is an if statement lifted out of a rule file. cond has its
// whitespace removed.
type conditional struct {
	cond     string
	body     string
	elseBody string
	hasElse  bool
}

// splitConditionals removes every top-level if statement from src and
// returns what is left together with the removed blocks. An else-if branch
// is split off as an independent if statement.
func splitConditionals(src string) (string, []conditional, []string) {
	var blocks []conditional
	var notes []string

	rest := src
	for {
		loc := ifPattern.FindStringIndex(rest)
		if loc == nil {
			break
		}
		condEnd := matchClose(rest, loc[1], '(', ')')
		if condEnd < 0 {
			notes = append(notes, "unterminated if condition, ignoring the rest of the file")
			rest = rest[:loc[0]]
			break
		}
		block := conditional{cond: compact(rest[loc[1]:condEnd])}

		body, end, ok := statementBody(rest, condEnd+1)
		if !ok {
			notes = append(notes, fmt.Sprintf("unterminated block under condition (%s)", block.cond))
			rest = rest[:loc[0]]
			break
		}
		block.body = body

		if m := elsePattern.FindStringIndex(rest[end:]); m != nil {
			afterElse := end + m[1]
			if elseIfPattern.MatchString(rest[afterElse:]) {
				notes = append(notes, fmt.Sprintf("else-if after (%s) imported as an independent condition", block.cond))
				end = afterElse
			} else if elseBody, elseEnd, ok := statementBody(rest, afterElse); ok {
				block.elseBody = elseBody
				block.hasElse = true
				end = elseEnd
			}
		}

		blocks = append(blocks, block)
		rest = rest[:loc[0]] + rest[end:]
	}

	return rest, blocks, notes
}

// statementBody returns the statement starting at from: a braced block
// (without its braces) or a single statement up to its semicolon. end is
// the index just past the statement.
func statementBody(src string, from int) (body string, end int, ok bool) {
	i := from
	for i < len(src) && strings.ContainsRune(" \t\r\n", rune(src[i])) {
		i++
	}
	if i >= len(src) {
		return "", 0, false
	}
	if src[i] == '{' {
		brace := matchClose(src, i+1, '{', '}')
		if brace < 0 {
			return "", 0, false
		}
		return src[i+1 : brace], brace + 1, true
	}
	semi := strings.IndexByte(src[i:], ';')
	if semi < 0 {
		return "", 0, false
	}
	return src[i : i+semi+1], i + semi + 1, true
}

// editorCondition recognises the conditions that test for an editor build
// and reports which value of isEditorBuild makes them true
func editorCondition(cond string) (editor bool, ok bool) {
	negated := false
	for {
		switch {
		case strings.HasPrefix(cond, "!"):
			negated = !negated
			cond = cond[1:]
			continue
		case strings.HasPrefix(cond, "(") && matchClose(cond, 1, '(', ')') == len(cond)-1:
			cond = cond[1 : len(cond)-1]
			continue
		}
		break
	}

	if m := editorFlagPattern.FindStringSubmatch(cond); m != nil {
		editor = true
		if m[1] != "" {
			editor = (m[1] == "==") == (m[2] == "true")
		}
		return editor != negated, true
	}
	if m := editorTypePattern.FindStringSubmatch(cond); m != nil {
		op := m[1] + m[2]
		return (op == "==") != negated, true
	}
	return false, false
}

// appendEditorRule adds a rule for the dependencies declared in body.
// Conditions nested inside body cannot be expressed and are dropped.
func appendEditorRule(rules []types.RuleSpec, body string, editor bool, notes *[]string) []types.RuleSpec {
	body, nested, nestedNotes := splitConditionals(body)
	*notes = append(*notes, nestedNotes...)
	for _, block := range nested {
		*notes = append(*notes, fmt.Sprintf("skipped nested block under condition (%s)", block.cond))
	}

	public, private := parseDependencies(body)
	if len(public) == 0 && len(private) == 0 {
		return rules
	}
	desc := "editor builds"
	if !editor {
		desc = "non-editor builds"
	}
	return append(rules, types.RuleSpec{
		Description: desc,
		When: types.Condition{
			Field:  types.ContextFieldEditorBuild,
			Equals: types.BoolPtr(editor),
		},
		Public:  public,
		Private: private,
	})
}

// matchClose returns the index of the delimiter closing the group that
// starts right after an opening delimiter at start-1, or -1
func matchClose(src string, start int, opener, closer byte) int {
	depth := 1
	for i := start; i < len(src); i++ {
		switch src[i] {
		case opener:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func compact(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func (a *BuildRulesAnalyzer) findRuleFiles() ([]string, error) {
	var files []string
	err := filepath.WalkDir(a.projectRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			switch d.Name() {
			case "Binaries", "Intermediate", ".git":
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), BuildRulesSuffix) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func (a *BuildRulesAnalyzer) pluginName() string {
	matches, _ := filepath.Glob(filepath.Join(a.projectRoot, "*.uplugin"))
	if len(matches) > 0 {
		sort.Strings(matches)
		return strings.TrimSuffix(filepath.Base(matches[0]), ".uplugin")
	}
	abs, err := filepath.Abs(a.projectRoot)
	if err != nil {
		return filepath.Base(a.projectRoot)
	}
	return filepath.Base(abs)
}
