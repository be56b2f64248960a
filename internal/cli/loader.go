package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"github.com/roach88/captable/internal/document"
	"github.com/roach88/captable/internal/lineage"
	"github.com/roach88/captable/internal/model"
	"github.com/roach88/captable/internal/session"
	"github.com/roach88/captable/internal/validate"
)

// Command error codes (E001-E099). Business-rule failures reuse the
// validation codes of package validate (E2xx).
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeBadArgument  = "E002" // Invalid flag or argument value
	ErrCodeConfig       = "E003" // Configuration could not be resolved
	ErrCodeMalformed    = "E004" // Document failed structural checks
	ErrCodeNotFound     = "E005" // Path not found
	ErrCodeEditRejected = "E006" // Edit rejected by the session
	ErrCodeWriteFailed  = "E007" // File write error
	ErrCodeNoService    = "E008" // No computation service configured
	ErrCodeUnavailable  = "E009" // Computation service unreachable
	ErrCodeRejected     = "E010" // Computation service reported the document invalid
	ErrCodeTestFailed   = "E011" // One or more scenarios failed
)

// loadDocument reads the document at path. Missing files and structural
// problems are reported on f and returned as command errors.
func loadDocument(f *OutputFormatter, path string) (model.Document, error) {
	doc, err := document.Load(path)
	if err == nil {
		f.VerboseLog("Loaded %s (%d holders, %d rounds)", path, len(doc.Holders), len(doc.Rounds))
		return doc, nil
	}

	var structural *document.StructuralError
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return model.Document{}, commandError(f, ErrCodeNotFound, fmt.Sprintf("document not found: %s", path), nil)
	case errors.As(err, &structural):
		var details any
		if structural.Path != "" {
			details = map[string]string{"path": structural.Path}
		}
		return model.Document{}, commandError(f, ErrCodeMalformed, structural.Error(), details)
	default:
		return model.Document{}, commandError(f, ErrCodeGeneric, err.Error(), nil)
	}
}

// openSession loads path and starts an editing session on it.
func openSession(opts *RootOptions, f *OutputFormatter, path string, extra ...session.Option) (*session.Session, error) {
	doc, err := loadDocument(f, path)
	if err != nil {
		return nil, err
	}
	sessOpts := append([]session.Option{session.WithLogger(opts.log)}, extra...)
	return session.New(doc, sessOpts...), nil
}

// saveDocument writes the session's document to out.
func saveDocument(f *OutputFormatter, sess *session.Session, out string) error {
	if err := document.Save(out, sess.Snapshot()); err != nil {
		_ = f.Error(ErrCodeWriteFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, ErrCodeWriteFailed+": save document", err)
	}
	f.VerboseLog("Wrote %s", out)
	return nil
}

// flattenErrors prefixes each round's errors with its path and returns them
// in round order.
func flattenErrors(errs map[int][]validate.ValidationError) []validate.ValidationError {
	rounds := make([]int, 0, len(errs))
	for ri := range errs {
		rounds = append(rounds, ri)
	}
	sort.Ints(rounds)

	var out []validate.ValidationError
	for _, ri := range rounds {
		for _, e := range errs[ri] {
			e.Field = fmt.Sprintf("rounds[%d].%s", ri, e.Field)
			out = append(out, e)
		}
	}
	return out
}

func locationStrings(locs []lineage.Location) []string {
	if len(locs) == 0 {
		return nil
	}
	out := make([]string, len(locs))
	for i, l := range locs {
		out[i] = l.String()
	}
	return out
}
