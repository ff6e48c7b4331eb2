package batch

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Range is a `-R key min max` Cartesian-product axis (spec §4.9/§6).
type Range struct {
	Key      string
	Min, Max int
}

// Expand substitutes "${name}"/"$name" placeholders in template with
// vars, per spec §4.9's "${name}" grammar. BatchRunner's templates
// substitute directly from a variable map rather than capture groups
// parsed out of a matched path, so this is a standalone
// implementation of the grammar rather than a shared one.
func Expand(template string, vars map[string]string) (string, error) {
	var sb strings.Builder
	for i := 0; i < len(template); {
		c := template[i]
		if c != '$' {
			sb.WriteByte(c)
			i++
			continue
		}
		if i+1 >= len(template) {
			return "", fmt.Errorf("batch: template ends with a trailing '$'")
		}
		if template[i+1] == '$' {
			sb.WriteByte('$')
			i += 2
			continue
		}
		brace := template[i+1] == '{'
		start := i + 1
		if brace {
			start++
		}
		j := start
		for j < len(template) && isIdentByte(template[j]) {
			j++
		}
		if j == start {
			return "", fmt.Errorf("batch: empty placeholder name at offset %d", i)
		}
		name := template[start:j]
		if brace {
			if j >= len(template) || template[j] != '}' {
				return "", fmt.Errorf("batch: unterminated ${%s", name)
			}
			j++
		}
		val, ok := vars[name]
		if !ok {
			return "", fmt.Errorf("batch: no value for placeholder %q", name)
		}
		sb.WriteString(val)
		i = j
	}
	return sb.String(), nil
}

func isIdentByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// Placeholders returns the set of "${name}"/"$name" identifiers
// referenced by template, used to validate that config_path_template
// contains a placeholder for every -R key (spec §6).
func Placeholders(template string) map[string]bool {
	out := map[string]bool{}
	for i := 0; i < len(template); i++ {
		if template[i] != '$' || i+1 >= len(template) {
			continue
		}
		brace := template[i+1] == '{'
		start := i + 1
		if brace {
			start++
		}
		j := start
		for j < len(template) && isIdentByte(template[j]) {
			j++
		}
		if j > start {
			out[template[start:j]] = true
		}
	}
	return out
}

// CartesianProduct expands ranges and fixed values into the ordered
// sequence of variable maps BatchRunner substitutes into its
// templates (spec §4.9).
func CartesianProduct(ranges []Range, values map[string]string) []map[string]string {
	keys := make([]string, len(ranges))
	for i, r := range ranges {
		keys[i] = r.Key
	}
	sort.Strings(keys)

	combos := []map[string]string{{}}
	for _, r := range ranges {
		var next []map[string]string
		for v := r.Min; v <= r.Max; v++ {
			for _, combo := range combos {
				cp := cloneMap(combo)
				cp[r.Key] = strconv.Itoa(v)
				next = append(next, cp)
			}
		}
		combos = next
	}
	for _, combo := range combos {
		for k, v := range values {
			combo[k] = v
		}
	}
	return combos
}

func cloneMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
