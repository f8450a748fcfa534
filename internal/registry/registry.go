// Package registry instantiates activity trees from the template catalog.
//
// The catalog is immutable once the Registry is built. New rejects
// catalogs that could not produce a well-formed tree: invalid connectors,
// children referring to unknown templates, and templates that contain
// themselves through any chain of children.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/jagtrack/internal/ir"
	"github.com/roach88/jagtrack/internal/jag"
)

var (
	// ErrUnknownTemplate is returned when a URN is not in the catalog.
	ErrUnknownTemplate = errors.New("unknown template")

	// ErrInvalidCatalog wraps every catalog validation failure.
	ErrInvalidCatalog = errors.New("invalid template catalog")
)

// Registry maps template URNs to templates and builds node trees.
type Registry struct {
	templates map[string]ir.Template
	order     []string
	ids       jag.IDGenerator
}

// New validates the catalog and returns a registry that assigns instance
// ids from ids.
func New(templates []ir.Template, ids jag.IDGenerator) (*Registry, error) {
	r := &Registry{
		templates: make(map[string]ir.Template, len(templates)),
		ids:       ids,
	}

	var errs []error
	for _, t := range templates {
		if t.URN == "" {
			errs = append(errs, errors.New("template with empty urn"))
			continue
		}
		if _, dup := r.templates[t.URN]; dup {
			errs = append(errs, fmt.Errorf("duplicate template %s", t.URN))
			continue
		}
		if err := t.Connector.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("template %s: %w", t.URN, err))
		}
		r.templates[t.URN] = cloneTemplate(t)
		r.order = append(r.order, t.URN)
	}
	for _, urn := range r.order {
		for _, c := range r.templates[urn].Children {
			if _, ok := r.templates[c.URN]; !ok {
				errs = append(errs, fmt.Errorf("template %s: child %s: %w", urn, c.URN, ErrUnknownTemplate))
			}
		}
	}
	if len(errs) == 0 {
		for _, cycle := range FindRecursion(templates) {
			errs = append(errs, fmt.Errorf("recursive template: %s", cycle))
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, errors.Join(errs...))
	}
	return r, nil
}

// Template returns the template for urn.
func (r *Registry) Template(urn string) (ir.Template, bool) {
	t, ok := r.templates[urn]
	if !ok {
		return ir.Template{}, false
	}
	return cloneTemplate(t), true
}

// Templates returns every template in catalog order.
func (r *Registry) Templates() []ir.Template {
	out := make([]ir.Template, 0, len(r.order))
	for _, urn := range r.order {
		out = append(out, cloneTemplate(r.templates[urn]))
	}
	return out
}

// Create instantiates the template tree rooted at urn. Every node in the
// tree shares the given inputs and outputs.
func (r *Registry) Create(urn string, inputs, outputs ir.Params) (*jag.Node, error) {
	t, ok := r.templates[urn]
	if !ok {
		slog.Error("cannot instantiate unknown template", "urn", urn)
		return nil, fmt.Errorf("create %s: %w", urn, ErrUnknownTemplate)
	}
	n, err := jag.New(r.ids.Generate(), ir.Identity{URN: urn, Inputs: inputs, Outputs: outputs}, t.Connector)
	if err != nil {
		return nil, err
	}
	n.SetEstimates(t.Estimates)
	for _, ref := range t.Children {
		child, err := r.Create(ref.URN, inputs, outputs)
		if err != nil {
			return nil, err
		}
		n.AddChild(child, ref.Required)
	}
	return n, nil
}

// CreateFromDescription rebuilds a tree reported by another observer.
// Identity, ids and required flags come from the description. The
// connector comes from the description when present, otherwise from the
// catalog; estimates always come from the catalog. An empty id is
// replaced with a generated one.
func (r *Registry) CreateFromDescription(d ir.Description) (*jag.Node, error) {
	t, known := r.templates[d.URN]

	var conn ir.Connector
	switch {
	case d.Connector != nil:
		conn = *d.Connector
	case known:
		conn = t.Connector
	default:
		slog.Error("cannot rebuild instance of unknown template", "urn", d.URN, "id", d.ID)
		return nil, fmt.Errorf("create %s from description: %w", d.URN, ErrUnknownTemplate)
	}

	id := d.ID
	if id == "" {
		id = r.ids.Generate()
	}
	n, err := jag.New(id, d.Identity(), conn)
	if err != nil {
		return nil, err
	}
	if known {
		n.SetEstimates(t.Estimates)
	}
	for _, cd := range d.Children {
		child, err := r.CreateFromDescription(cd)
		if err != nil {
			return nil, err
		}
		n.AddChild(child, cd.Required)
	}
	return n, nil
}

func cloneTemplate(t ir.Template) ir.Template {
	t.Children = slices.Clone(t.Children)
	return t
}
