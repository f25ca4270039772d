package variable

import (
	"fmt"
	"strings"

	"github.com/pdk-cli/pdk/internal/errtax"
)

const (
	// defaultMaxRecursionDepth bounds Expand's fixed-point loop (spec §4.2).
	defaultMaxRecursionDepth = 64
	// maxOutputLength guards against quadratic blow-up from pathological
	// nested defaults (spec §5 "Resource bounds").
	maxOutputLength = 1 << 20 // 1 MiB
)

// Resolve is the minimal surface Expand needs; satisfied by *Resolver.
type Resolve interface {
	Resolve(name string) (string, bool)
}

// Expander rewrites strings per the grammar in spec §4.2.
type Expander struct {
	MaxRecursionDepth int
}

// NewExpander creates an Expander with the default recursion limit.
func NewExpander() *Expander {
	return &Expander{MaxRecursionDepth: defaultMaxRecursionDepth}
}

// Expand rewrites text, substituting ${NAME}, ${NAME:-default} and
// ${NAME:?message} references via r, recursively until a fixed point or
// the recursion depth limit. ${{ expr }} sites are left as opaque runtime
// placeholders (spec §4.2: resolved at execution time by the runtime
// context, or rewritten to <runtime:expr> during plan rendering - callers
// needing that rewrite use RenderRuntimePlaceholders separately).
func (e *Expander) Expand(text string, r Resolve) (string, error) {
	depth := e.MaxRecursionDepth
	if depth <= 0 {
		depth = defaultMaxRecursionDepth
	}

	current := text
	for i := 0; i < depth; i++ {
		next, changed, err := e.expandOnce(current, r, nil)
		if err != nil {
			return "", err
		}
		if len(next) > maxOutputLength {
			return "", errtax.Newf(errtax.CodeRecursionLimit, "expansion output exceeds %d bytes", maxOutputLength)
		}
		if !changed {
			return strings.ReplaceAll(next, `\${`, "${"), nil
		}
		current = next
	}
	return "", errtax.Newf(errtax.CodeRecursionLimit, "variable expansion did not reach a fixed point within %d passes", depth)
}

// expandOnce performs a single left-to-right scan, substituting every
// ${...} site it recognizes. inProgress tracks names currently being
// expanded (for default-value recursion) to detect cycles.
func (e *Expander) expandOnce(text string, r Resolve, inProgress []string) (string, bool, error) {
	var sb strings.Builder
	changed := false
	i := 0
	for i < len(text) {
		switch {
		case strings.HasPrefix(text[i:], `\${`):
			// Literal escape: keep \${...} verbatim, backslash included, so
			// no later pass substitutes it; Expand drops the backslash once
			// a fixed point is reached.
			end := findMatchingBrace(text, i+3)
			if end < 0 {
				return "", false, errtax.New(errtax.CodeVariableSyntax, "unclosed ${ after escape")
			}
			sb.WriteString(text[i : end+1])
			i = end + 1
		case strings.HasPrefix(text[i:], "${{"):
			end := strings.Index(text[i:], "}}")
			if end < 0 {
				return "", false, errtax.New(errtax.CodeVariableSyntax, "unclosed ${{ runtime expression")
			}
			sb.WriteString(text[i : i+end+2])
			i += end + 2
		case strings.HasPrefix(text[i:], "${"):
			end := findMatchingBrace(text, i+2)
			if end < 0 {
				return "", false, errtax.New(errtax.CodeVariableSyntax, "unclosed ${")
			}
			inner := text[i+2 : end]
			rendered, err := e.substitute(inner, r, inProgress)
			if err != nil {
				return "", false, err
			}
			sb.WriteString(rendered)
			i = end + 1
			changed = true
		default:
			sb.WriteByte(text[i])
			i++
		}
	}
	return sb.String(), changed, nil
}

// findMatchingBrace finds the index of the "}" matching the "{" that
// immediately precedes start, scanning forward from start.
func findMatchingBrace(text string, start int) int {
	depth := 1
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// substitute handles the body of a single ${...} reference: NAME,
// NAME:-default, or NAME:?message.
func (e *Expander) substitute(inner string, r Resolve, inProgress []string) (string, error) {
	name, modifier, hasModifier := splitModifier(inner)
	if name == "" {
		return "", errtax.New(errtax.CodeVariableSyntax, "empty variable name in ${}")
	}

	for _, seen := range inProgress {
		if seen == name {
			chain := append(append([]string{}, inProgress...), name)
			return "", errtax.Newf(errtax.CodeVariableCircular, "circular variable reference: %s", strings.Join(chain, " -> "))
		}
	}

	value, defined := r.Resolve(name)
	if defined {
		return value, nil
	}

	if !hasModifier {
		return "", nil
	}

	switch modifier.kind {
	case modifierDefault:
		nested := append(append([]string{}, inProgress...), name)
		expandedDefault, _, err := e.expandOnce(modifier.text, r, nested)
		if err != nil {
			return "", err
		}
		return expandedDefault, nil
	case modifierRequired:
		return "", errtax.New(errtax.CodeVariableRequired, modifier.text)
	default:
		return "", errtax.Newf(errtax.CodeVariableSyntax, "malformed modifier in ${%s}", inner)
	}
}

type modifierKind int

const (
	modifierNone modifierKind = iota
	modifierDefault
	modifierRequired
)

type modifier struct {
	kind modifierKind
	text string
}

// splitModifier splits "NAME:-default" / "NAME:?message" into name and
// modifier. hasModifier is false for a bare "NAME".
func splitModifier(inner string) (name string, mod modifier, hasModifier bool) {
	if idx := strings.Index(inner, ":-"); idx >= 0 {
		return inner[:idx], modifier{kind: modifierDefault, text: inner[idx+2:]}, true
	}
	if idx := strings.Index(inner, ":?"); idx >= 0 {
		return inner[:idx], modifier{kind: modifierRequired, text: inner[idx+2:]}, true
	}
	return inner, modifier{}, false
}

// ContainsVariables reports whether text has any ${...} reference.
func (e *Expander) ContainsVariables(text string) bool {
	return strings.Contains(text, "${")
}

// ExtractNames returns every NAME referenced via ${NAME...} in text,
// in order of first appearance, without resolving or expanding.
func (e *Expander) ExtractNames(text string) []string {
	var names []string
	seen := make(map[string]bool)
	i := 0
	for i < len(text) {
		if strings.HasPrefix(text[i:], "${{") {
			end := strings.Index(text[i:], "}}")
			if end < 0 {
				break
			}
			i += end + 2
			continue
		}
		if strings.HasPrefix(text[i:], "${") {
			end := findMatchingBrace(text, i+2)
			if end < 0 {
				break
			}
			inner := text[i+2 : end]
			name, _, _ := splitModifier(inner)
			if name != "" && !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
			i = end + 1
			continue
		}
		i++
	}
	return names
}

// ExpandMap expands every value in m, returning a new map. Keys are left
// unchanged.
func (e *Expander) ExpandMap(m map[string]string, r Resolve) (map[string]string, error) {
	out := make(map[string]string, len(m))
	for k, v := range m {
		expanded, err := e.Expand(v, r)
		if err != nil {
			return nil, fmt.Errorf("expanding %q: %w", k, err)
		}
		out[k] = expanded
	}
	return out, nil
}

// RenderRuntimePlaceholders rewrites every ${{ expr }} site to
// <runtime:expr> for execution-plan rendering (spec §4.2).
func RenderRuntimePlaceholders(text string) string {
	var sb strings.Builder
	i := 0
	for i < len(text) {
		if strings.HasPrefix(text[i:], "${{") {
			end := strings.Index(text[i:], "}}")
			if end < 0 {
				sb.WriteString(text[i:])
				break
			}
			expr := strings.TrimSpace(text[i+3 : i+end])
			sb.WriteString("<runtime:")
			sb.WriteString(expr)
			sb.WriteString(">")
			i += end + 2
			continue
		}
		sb.WriteByte(text[i])
		i++
	}
	return sb.String()
}
