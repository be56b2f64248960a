package validate

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/captable/internal/model"
)

// ValidateDocument checks holder uniqueness and referential integrity, then
// validates every round. Round errors are prefixed with rounds[r].
func ValidateDocument(doc model.Document) []ValidationError {
	c := &collector{}

	known := make(map[string]int, len(doc.Holders))
	for i, h := range doc.Holders {
		field := fmt.Sprintf("holders[%d].name", i)
		if strings.TrimSpace(h.Name) == "" {
			c.add(field, ErrHolderNameBlank, "holder name is required")
			continue
		}
		key := holderKey(h.Name)
		if first, seen := known[key]; seen {
			c.add(field, ErrDuplicateHolder, "duplicate holder name %q (holders[%d])", h.Name, first)
			continue
		}
		known[key] = i
	}

	for r, round := range doc.Rounds {
		prefix := fmt.Sprintf("rounds[%d].", r)
		for _, e := range Validate(round) {
			e.Field = prefix + e.Field
			c.errs = append(c.errs, e)
		}
		for i, inst := range round.Instruments {
			if strings.TrimSpace(inst.HolderName) == "" {
				continue
			}
			if _, ok := known[holderKey(inst.HolderName)]; !ok {
				c.add(prefix+instField(i, "holder_name"), ErrUnknownHolder,
					"unknown holder %q", inst.HolderName)
			}
		}
	}
	return c.errs
}

// holderKey is the identity used to compare holder names.
func holderKey(name string) string {
	return norm.NFC.String(name)
}
