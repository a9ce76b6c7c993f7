package harness

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
)

//go:embed schema.cue
var schemaSource string

// ValidationError is one schema violation in a scenario file.
type ValidationError struct {
	// Field is the path into the document, dot-joined. Empty for
	// violations at the document root.
	Field string `json:"field,omitempty"`

	// Message describes the violation.
	Message string `json:"message"`

	// Line is the 1-based source line, zero when unknown.
	Line int `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	switch {
	case e.Field != "" && e.Line > 0:
		return fmt.Sprintf("line %d: %s: %s", e.Line, e.Field, e.Message)
	case e.Field != "":
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	case e.Line > 0:
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	default:
		return e.Message
	}
}

// SchemaError aggregates every violation found in one file.
type SchemaError struct {
	File   string
	Errors []ValidationError
}

func (e *SchemaError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, v := range e.Errors {
		msgs[i] = v.Error()
	}
	return fmt.Sprintf("schema check %s: %s", e.File, strings.Join(msgs, "; "))
}

// ValidateBytes checks one scenario document against the embedded
// schema. It returns every violation found, not just the first; a nil
// return means the document has the right shape. Semantic rules are
// checked separately by Scenario.Validate.
func ValidateBytes(filename string, data []byte) []ValidationError {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	def := schema.LookupPath(cue.ParsePath("#Scenario"))
	if err := def.Err(); err != nil {
		return toValidationErrors(filename, err)
	}

	file, err := cueyaml.Extract(filename, data)
	if err != nil {
		return toValidationErrors(filename, err)
	}
	doc := ctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return toValidationErrors(filename, err)
	}

	if err := def.Unify(doc).Validate(cue.Concrete(true)); err != nil {
		return toValidationErrors(filename, err)
	}
	return nil
}

// toValidationErrors flattens a CUE error into per-violation entries,
// preferring source positions inside the scenario file over positions
// in the schema itself.
func toValidationErrors(filename string, err error) []ValidationError {
	list := cueerrors.Errors(err)
	out := make([]ValidationError, 0, len(list))
	for _, e := range list {
		format, args := e.Msg()
		ve := ValidationError{
			Field:   strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(format, args...),
		}
		for _, pos := range append(e.InputPositions(), e.Position()) {
			if pos.IsValid() && pos.Filename() == filename {
				ve.Line = pos.Line()
				break
			}
		}
		out = append(out, ve)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Line < out[j].Line })
	return out
}
