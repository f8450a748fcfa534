package catalog

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/jagtrack/internal/ir"
)

//go:embed schema.cue
var schemaSource string

// DefaultConnector applies to templates that declare no connector.
var DefaultConnector = ir.Connector{Execution: ir.ExecutionParallel, Operator: ir.OperatorAnd}

// CompileError is a template compilation error with source position.
type CompileError struct {
	Code    string
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Field, e.Message)
}

// CompileTemplate parses one template struct, e.g. the value at
// jag."rescue-victim". The urn defaults to the struct label.
func CompileTemplate(v cue.Value) (*ir.Template, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	t := &ir.Template{Connector: DefaultConnector}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		t.URN = labels[len(labels)-1].Unquoted()
	}
	if urnVal := v.LookupPath(cue.ParsePath("urn")); urnVal.Exists() {
		urn, err := urnVal.String()
		if err != nil || urn == "" {
			return nil, &CompileError{Code: ErrCodeTemplateURN, Field: "urn", Message: "urn must be a non-empty string", Pos: urnVal.Pos()}
		}
		t.URN = urn
	}
	if t.URN == "" {
		return nil, &CompileError{Code: ErrCodeTemplateURN, Field: "urn", Message: "urn is required", Pos: v.Pos()}
	}

	if nameVal := v.LookupPath(cue.ParsePath("name")); nameVal.Exists() {
		name, err := nameVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		t.Name = name
	}

	if connVal := v.LookupPath(cue.ParsePath("connector")); connVal.Exists() {
		conn, err := compileConnector(connVal)
		if err != nil {
			return nil, err
		}
		t.Connector = conn
	}

	children, err := compileChildren(v)
	if err != nil {
		return nil, err
	}
	t.Children = children

	if estVal := v.LookupPath(cue.ParsePath("estimates")); estVal.Exists() {
		est, err := compileEstimates(estVal)
		if err != nil {
			return nil, err
		}
		t.Estimates = est
	}

	if err := checkSchema(v); err != nil {
		return nil, err
	}
	return t, nil
}

func compileConnector(v cue.Value) (ir.Connector, error) {
	var conn ir.Connector
	exec, err := v.LookupPath(cue.ParsePath("execution")).String()
	if err != nil {
		return conn, &CompileError{Code: ErrCodeConnector, Field: "connector.execution", Message: "execution is required", Pos: v.Pos()}
	}
	op, err := v.LookupPath(cue.ParsePath("operator")).String()
	if err != nil {
		return conn, &CompileError{Code: ErrCodeConnector, Field: "connector.operator", Message: "operator is required", Pos: v.Pos()}
	}
	conn = ir.Connector{Execution: ir.Execution(exec), Operator: ir.Operator(op)}
	if err := conn.Validate(); err != nil {
		return conn, &CompileError{Code: ErrCodeConnector, Field: "connector", Message: err.Error(), Pos: v.Pos()}
	}
	return conn, nil
}

func compileChildren(v cue.Value) ([]ir.ChildRef, error) {
	listVal := v.LookupPath(cue.ParsePath("children"))
	if !listVal.Exists() {
		return nil, nil
	}
	iter, err := listVal.List()
	if err != nil {
		return nil, &CompileError{Code: ErrCodeChildren, Field: "children", Message: "children must be a list", Pos: listVal.Pos()}
	}

	var out []ir.ChildRef
	for i := 0; iter.Next(); i++ {
		cv := iter.Value()
		field := fmt.Sprintf("children[%d]", i)

		urn, err := cv.LookupPath(cue.ParsePath("urn")).String()
		if err != nil || urn == "" {
			return nil, &CompileError{Code: ErrCodeChildren, Field: field + ".urn", Message: "child urn is required", Pos: cv.Pos()}
		}
		ref := ir.ChildRef{URN: urn}
		if reqVal := cv.LookupPath(cue.ParsePath("required")); reqVal.Exists() {
			req, err := reqVal.Bool()
			if err != nil {
				return nil, &CompileError{Code: ErrCodeChildren, Field: field + ".required", Message: "required must be a bool", Pos: reqVal.Pos()}
			}
			ref.Required = req
		}
		out = append(out, ref)
	}
	return out, nil
}

func compileEstimates(v cue.Value) (ir.Estimates, error) {
	var est ir.Estimates
	for _, f := range []struct {
		name string
		dst  *int64
	}{
		{"preparing_ms", &est.PreparingMS},
		{"addressing_ms", &est.AddressingMS},
	} {
		fv := v.LookupPath(cue.ParsePath(f.name))
		if !fv.Exists() {
			continue
		}
		n, err := fv.Int64()
		if err != nil || n < 0 {
			return est, &CompileError{Code: ErrCodeEstimates, Field: "estimates." + f.name, Message: "must be a non-negative integer (milliseconds)", Pos: fv.Pos()}
		}
		*f.dst = n
	}
	return est, nil
}

// checkSchema rejects anything the field checks above let through,
// chiefly unknown fields.
func checkSchema(v cue.Value) error {
	schema := v.Context().CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("catalog schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Template"))
	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		ce := &CompileError{Code: ErrCodeSchema, Field: "template", Message: errors.Details(err, nil), Pos: v.Pos()}
		if ps := errors.Positions(err); len(ps) > 0 {
			ce.Pos = ps[0]
		}
		return ce
	}
	return nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{Code: ErrCodeGeneric, Field: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return err
}

// CompileString compiles catalog source text. It is used for catalogs
// embedded in scenarios and tests.
func CompileString(src string) ([]ir.Template, []error) {
	v := cuecontext.New().CompileString(src, cue.Filename("catalog.cue"))
	if err := v.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}
	return compileValue(v)
}
