// Package document reads and writes exchanged cap table documents.
//
// Decoding runs in two stages. A structural check against an embedded CUE
// schema rejects malformed containers (missing schema_version, holders or
// rounds that are not sequences) with one blocking *StructuralError. Only
// then are rounds and flat instruments decoded into the model.
package document

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"

	"github.com/roach88/captable/internal/model"
)

// Format is a document serialization.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath infers the format from a file extension. Anything other
// than .yaml or .yml is JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// StructuralError reports a malformed document. It blocks all further
// processing of the document.
type StructuralError struct {
	Path    string // dotted path of the offending value; "" for the whole document
	Message string
	Err     error
}

func (e *StructuralError) Error() string {
	if e.Path == "" {
		return "malformed document: " + e.Message
	}
	return fmt.Sprintf("malformed document: %s: %s", e.Path, e.Message)
}

// Unwrap returns the underlying decode error, if any.
func (e *StructuralError) Unwrap() error { return e.Err }

//go:embed schema.cue
var schemaSource string

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaDef  cue.Value
	schemaErr  error

	// cue values are not safe for concurrent evaluation.
	checkMu sync.Mutex
)

func documentSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		v := schemaCtx.CompileString(schemaSource, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("compile document schema: %w", err)
			return
		}
		schemaDef = v.LookupPath(cue.ParsePath("#Document"))
	})
	return schemaCtx, schemaDef, schemaErr
}

// CheckStructure validates the containers of a JSON document.
func CheckStructure(data []byte) error {
	ctx, def, err := documentSchema()
	if err != nil {
		return err
	}
	expr, err := cuejson.Extract("document.json", data)
	if err != nil {
		return &StructuralError{Message: firstCUEMessage(err), Err: err}
	}
	checkMu.Lock()
	defer checkMu.Unlock()
	v := def.Unify(ctx.BuildExpr(expr))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return structuralFromCUE(err)
	}
	return nil
}

func structuralFromCUE(err error) *StructuralError {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &StructuralError{Message: err.Error(), Err: err}
	}
	first := errs[0]
	format, args := first.Msg()
	return &StructuralError{
		Path:    strings.Join(first.Path(), "."),
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

func firstCUEMessage(err error) string {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err.Error()
	}
	format, args := errs[0].Msg()
	return fmt.Sprintf(format, args...)
}

// Decode parses a document in the given format.
func Decode(data []byte, format Format) (model.Document, error) {
	if format == FormatYAML {
		converted, err := yamlToJSON(data)
		if err != nil {
			return model.Document{}, &StructuralError{Message: err.Error(), Err: err}
		}
		data = converted
	}
	if err := CheckStructure(data); err != nil {
		return model.Document{}, err
	}

	var doc model.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return model.Document{}, &StructuralError{Message: err.Error(), Err: err}
	}
	if major, _, _ := strings.Cut(doc.SchemaVersion, "."); major != majorVersion() {
		return model.Document{}, &StructuralError{
			Path:    "schema_version",
			Message: fmt.Sprintf("unsupported schema version %q (want %s.x)", doc.SchemaVersion, majorVersion()),
		}
	}
	if doc.Holders == nil {
		doc.Holders = []model.Holder{}
	}
	if doc.Rounds == nil {
		doc.Rounds = []model.Round{}
	}
	return doc, nil
}

func majorVersion() string {
	major, _, _ := strings.Cut(model.SchemaVersion, ".")
	return major
}

// Encode renders doc as indented JSON with flat instruments.
func Encode(doc model.Document) ([]byte, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// EncodeFormat renders doc in format. YAML output keeps the key order and
// decimal digits of the JSON form.
func EncodeFormat(doc model.Document, format Format) ([]byte, error) {
	data, err := Encode(doc)
	if err != nil || format != FormatYAML {
		return data, err
	}
	out, err := jsonToYAML(data)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return out, nil
}

// Load reads and decodes the document at path.
func Load(path string) (model.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Document{}, fmt.Errorf("read document: %w", err)
	}
	return Decode(data, FormatFromPath(path))
}

// Save writes doc to path in the format its extension names (see
// FormatFromPath). The file is replaced atomically.
func Save(path string, doc model.Document) error {
	data, err := EncodeFormat(doc, FormatFromPath(path))
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("save document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}
