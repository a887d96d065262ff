package governance

import (
	"fmt"
	"regexp"

	"github.com/ormasoftchile/tessera/pkg/config"
)

// defaultMask replaces matches when a rule has no explicit replacement.
const defaultMask = "********"

// CompiledRedaction is a pre-compiled redaction rule.
type CompiledRedaction struct {
	Pattern *regexp.Regexp
	Replace string
}

// CompileRedactionRules compiles the project's redaction rules.
func CompileRedactionRules(rules []config.RedactionRule) ([]*CompiledRedaction, error) {
	var compiled []*CompiledRedaction
	for _, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("redaction pattern %q: %w", r.Pattern, err)
		}
		replace := r.Replace
		if replace == "" {
			replace = defaultMask
		}
		compiled = append(compiled, &CompiledRedaction{
			Pattern: re,
			Replace: replace,
		})
	}
	return compiled, nil
}

// RedactOutput applies all compiled redaction rules to the given output.
func RedactOutput(output string, rules []*CompiledRedaction) string {
	result := output
	for _, r := range rules {
		result = r.Pattern.ReplaceAllString(result, r.Replace)
	}
	return result
}
