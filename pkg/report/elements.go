package report

import (
	"context"
	"fmt"

	"github.com/Sternrassler/mstr-client/pkg/objects"
	"github.com/Sternrassler/mstr-client/pkg/pagination"
	"golang.org/x/sync/errgroup"
)

// ElementsLimit is the page size of attribute element listings.
const ElementsLimit = 50000

// Element is an attribute element.
type Element struct {
	ID         string   `json:"id"`
	FormValues []string `json:"formValues"`
}

// AttributeElements holds the elements of one attribute.
type AttributeElements struct {
	Attribute Attribute
	Elements  []Element
}

// AttrElements lists the elements of every attribute on the template, in
// template order. Attributes are listed concurrently when the report is
// parallel.
func (r *Report) AttrElements(ctx context.Context) ([]AttributeElements, error) {
	def, err := r.Definition(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]AttributeElements, len(def.Attributes))
	g, gctx := errgroup.WithContext(ctx)
	workers := 1
	if r.parallel {
		workers = pagination.Concurrency(len(def.Attributes), 0, 0)
	}
	g.SetLimit(workers)

	for i, attr := range def.Attributes {
		g.Go(func() error {
			elements, err := r.elements(gctx, attr)
			if err != nil {
				return err
			}
			out[i] = AttributeElements{Attribute: attr, Elements: elements}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Report) elements(ctx context.Context, attr Attribute) ([]Element, error) {
	rows, err := objects.Fetch(ctx, r.client, objects.FetchRequest{
		Path:      r.kind.elementsPath(r.id, attr.ID),
		ChunkSize: ElementsLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("attribute %s elements: %w", attr.Name, err)
	}
	elements, err := objects.Decode[Element](rows)
	if err != nil {
		return nil, fmt.Errorf("attribute %s elements: %w", attr.Name, err)
	}

	r.logger.Debug().
		Str("attribute_id", attr.ID).
		Int("elements", len(elements)).
		Msg("Listed attribute elements")
	return elements, nil
}
