package runner

import (
	"strings"

	"github.com/ormasoftchile/tessera/pkg/schema"
)

// matchCase applies the name and tag filters. Suite-level tags count for
// every case; an empty filter matches everything.
func matchCase(c *schema.Case, suiteTags []string, filter string, tags []string) bool {
	if filter != "" && !strings.Contains(c.Name, filter) {
		return false
	}
	if len(tags) == 0 {
		return true
	}
	for _, want := range tags {
		for _, have := range c.Tags {
			if have == want {
				return true
			}
		}
		for _, have := range suiteTags {
			if have == want {
				return true
			}
		}
	}
	return false
}
