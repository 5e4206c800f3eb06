package lawapi

import (
	"context"

	"github.com/ppiankov/lexsearch/internal/model"
)

// Collection is one kind's searchable result set, paged by the ingestion
// pipeline.
type Collection struct {
	Client *Client
	Kind   model.Kind
	Filter Filter
}

// DocumentKind returns the kind of every item in the collection.
func (c *Collection) DocumentKind() model.Kind {
	return c.Kind
}

// ListPage returns the reported total and the items of one page.
func (c *Collection) ListPage(ctx context.Context, page, size int) (int, []model.Record, error) {
	p, err := c.Client.List(ctx, c.Kind, page, size, c.Filter)
	if err != nil {
		return 0, nil, err
	}
	return p.Total, p.Items, nil
}
