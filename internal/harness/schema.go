package harness

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
)

//go:embed schema.cue
var schemaSource string

// SchemaError is one violation of the scenario schema.
type SchemaError struct {
	File    string `json:"file"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e SchemaError) Error() string {
	var loc string
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", e.File, e.Line)
	} else {
		loc = e.File
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", loc, e.Path, e.Message)
	}
	return fmt.Sprintf("%s: %s", loc, e.Message)
}

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaDef  cue.Value
	schemaErr  error
)

// scenarioSchema compiles the embedded schema once. A cue.Context is not
// safe for concurrent use, so callers serialize on schemaMu.
func scenarioSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		v := schemaCtx.CompileString(schemaSource, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("compile scenario schema: %w", err)
			return
		}
		schemaDef = v.LookupPath(cue.ParsePath("#Scenario"))
		if err := schemaDef.Err(); err != nil {
			schemaErr = fmt.Errorf("lookup #Scenario: %w", err)
		}
	})
	return schemaCtx, schemaDef, schemaErr
}

var schemaMu sync.Mutex

// ValidateSchema checks scenario YAML against the embedded CUE schema and
// returns every violation found. filename is used for positions only.
func ValidateSchema(filename string, data []byte) []SchemaError {
	schemaMu.Lock()
	defer schemaMu.Unlock()

	ctx, def, err := scenarioSchema()
	if err != nil {
		return []SchemaError{{File: filename, Message: err.Error()}}
	}

	file, err := cueyaml.Extract(filename, data)
	if err != nil {
		return toSchemaErrors(filename, err)
	}
	doc := ctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return toSchemaErrors(filename, err)
	}

	if err := def.Unify(doc).Validate(cue.Concrete(true)); err != nil {
		return toSchemaErrors(filename, err)
	}
	return nil
}

func toSchemaErrors(filename string, err error) []SchemaError {
	var out []SchemaError
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		se := SchemaError{
			File:    filename,
			Path:    strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(format, args...),
			Line:    lineIn(filename, e),
		}
		out = append(out, se)
	}
	if len(out) == 0 {
		out = append(out, SchemaError{File: filename, Message: err.Error()})
	}
	return out
}

// lineIn returns the first line of e that points into filename rather than
// into the schema.
func lineIn(filename string, e cueerrors.Error) int {
	for _, p := range cueerrors.Positions(e) {
		if p.IsValid() && p.Filename() == filename {
			return p.Line()
		}
	}
	return 0
}
