package utils

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// ProcessTemplate substitutes {name} placeholders with the supplied variables.
// Every placeholder must be resolvable: unresolved names are reported as an
// error rather than leaking braces into a user-facing message.
func ProcessTemplate(template string, vars map[string]string) (string, error) {
	var missing []string
	out := placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		name := match[1 : len(match)-1]
		val, ok := vars[name]
		if !ok {
			missing = append(missing, name)
			return match
		}
		return val
	})
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", fmt.Errorf("template has unresolved placeholders: %s", strings.Join(missing, ", "))
	}
	return out, nil
}
