// Package identifiers is the DOI registration collaborator contract.
// A public node gets identifiers requested; metadata updates follow
// privacy and content changes.
package identifiers

import (
	"context"

	"github.com/pattisdr/osf.io/internal/model"
)

type Client interface {
	// RequestIdentifiers mints identifiers for a newly public node.
	RequestIdentifiers(ctx context.Context, node *model.Node) error
	// UpdateMetadata pushes current node state to the identifier registry.
	UpdateMetadata(ctx context.Context, node *model.Node) error
}

var _ Client = (*Noop)(nil)

type Noop struct {
}

func NewNoop() *Noop {
	return &Noop{}
}

func (n *Noop) RequestIdentifiers(ctx context.Context, node *model.Node) error {
	return nil
}

func (n *Noop) UpdateMetadata(ctx context.Context, node *model.Node) error {
	return nil
}
