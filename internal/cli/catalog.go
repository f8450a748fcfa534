package cli

import (
	"errors"

	"github.com/roach88/jagtrack/internal/catalog"
	"github.com/roach88/jagtrack/internal/ir"
	"github.com/roach88/jagtrack/internal/jag"
	"github.com/roach88/jagtrack/internal/registry"
)

// CatalogIssue is one problem found in a template catalog.
type CatalogIssue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// issueFromError converts a catalog load error into an issue.
func issueFromError(err error) CatalogIssue {
	var le *catalog.LoadError
	if errors.As(err, &le) {
		issue := CatalogIssue{Code: le.Code, Message: le.Message}
		if le.Pos.IsValid() {
			issue.File = le.Pos.Filename()
			issue.Line = le.Pos.Line()
		}
		return issue
	}
	return CatalogIssue{Code: catalog.ErrCodeGeneric, Message: err.Error()}
}

// registryIssues flattens a registry.New error into one issue per
// failed check.
func registryIssues(err error) []CatalogIssue {
	parts := []error{err}
	if outer, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range outer.Unwrap() {
			if inner, ok := e.(interface{ Unwrap() []error }); ok {
				parts = inner.Unwrap()
			}
		}
	}
	issues := make([]CatalogIssue, 0, len(parts))
	for _, p := range parts {
		issues = append(issues, CatalogIssue{Code: catalog.ErrCodeRegistry, Message: p.Error()})
	}
	return issues
}

// loadRegistry loads the catalog in dir and builds a registry that assigns
// instance ids from ids. Any catalog problem is an error.
func loadRegistry(dir string, ids jag.IDGenerator) (*registry.Registry, []ir.Template, error) {
	res, errs := catalog.Load(dir)
	if len(errs) > 0 {
		return nil, nil, errors.Join(errs...)
	}
	reg, err := registry.New(res.Templates, ids)
	if err != nil {
		return nil, nil, err
	}
	return reg, res.Templates, nil
}

// templateURNs lists the urns of a catalog in declaration order.
func templateURNs(templates []ir.Template) []string {
	out := make([]string, len(templates))
	for i, t := range templates {
		out[i] = t.URN
	}
	return out
}
