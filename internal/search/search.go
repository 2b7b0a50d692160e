// Package search is the search-index collaborator contract. Index updates
// are best effort: unavailability is logged and never escapes a node
// operation.
package search

import (
	"context"

	"github.com/pattisdr/osf.io/internal/model"
	"github.com/sirupsen/logrus"
)

type Indexer interface {
	UpdateNode(ctx context.Context, node *model.Node) error
	BulkUpdateNodes(ctx context.Context, nodes []*model.Node) error
	DeleteNode(ctx context.Context, node *model.Node) error
}

var _ Indexer = (*Noop)(nil)

type Noop struct {
}

func NewNoop() *Noop {
	return &Noop{}
}

func (n *Noop) UpdateNode(ctx context.Context, node *model.Node) error {
	return nil
}

func (n *Noop) BulkUpdateNodes(ctx context.Context, nodes []*model.Node) error {
	return nil
}

func (n *Noop) DeleteNode(ctx context.Context, node *model.Node) error {
	return nil
}

// BestEffort wraps an indexer so failures are logged and swallowed.
func BestEffort(indexer Indexer) Indexer {
	return &bestEffort{indexer: indexer}
}

type bestEffort struct {
	indexer Indexer
}

func (b *bestEffort) UpdateNode(ctx context.Context, node *model.Node) error {
	if err := b.indexer.UpdateNode(ctx, node); err != nil {
		logrus.Errorf("search update failed for node %s: %v", node.ID, err)
	}
	return nil
}

func (b *bestEffort) BulkUpdateNodes(ctx context.Context, nodes []*model.Node) error {
	if err := b.indexer.BulkUpdateNodes(ctx, nodes); err != nil {
		logrus.Errorf("search bulk update failed: %v", err)
	}
	return nil
}

func (b *bestEffort) DeleteNode(ctx context.Context, node *model.Node) error {
	if err := b.indexer.DeleteNode(ctx, node); err != nil {
		logrus.Errorf("search delete failed for node %s: %v", node.ID, err)
	}
	return nil
}
