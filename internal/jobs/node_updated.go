package jobs

import (
	"context"

	"github.com/pattisdr/osf.io/internal/cache"
	"github.com/pattisdr/osf.io/internal/identifiers"
	"github.com/pattisdr/osf.io/internal/queue"
	"github.com/pattisdr/osf.io/internal/search"
	"github.com/pattisdr/osf.io/internal/store"
	"github.com/sirupsen/logrus"
)

// NodeUpdatedTask drains the task queue, pushing changed nodes to the
// search index and the identifier registry. Tasks for nodes that were
// deleted in the meantime are dropped.
type NodeUpdatedTask struct {
	queue       queue.Queue
	store       store.Store
	indexer     search.Indexer
	identifiers identifiers.Client
	cache       cache.KV
}

func NewNodeUpdatedTask(q queue.Queue, s store.Store, indexer search.Indexer, ident identifiers.Client, kv cache.KV) *NodeUpdatedTask {
	return &NodeUpdatedTask{
		queue:       q,
		store:       s,
		indexer:     indexer,
		identifiers: ident,
		cache:       kv,
	}
}

func (n *NodeUpdatedTask) Name() string {
	return "node_updated"
}

func (n *NodeUpdatedTask) Run() {
	ctx := context.Background()
	for {
		task, err := n.queue.Dequeue(ctx)
		if err != nil {
			logrus.Errorf("dequeue failed: %v", err)
			return
		}
		if task == nil {
			return
		}

		if err := n.process(ctx, task); err != nil {
			logrus.Errorf("task %s failed for node %s: %v", task.Name, task.NodeID, err)
		}
	}
}

func (n *NodeUpdatedTask) process(ctx context.Context, task *queue.Task) error {
	switch task.Name {
	case queue.TaskNodeUpdated:
		node, err := n.store.GetNode(ctx, task.NodeID)
		if err != nil {
			if err == store.ErrNotFound {
				return nil
			}
			return err
		}

		if node.IsDeleted {
			return n.indexer.DeleteNode(ctx, node)
		}

		if err := n.indexer.UpdateNode(ctx, node); err != nil {
			return err
		}

		if node.IsPublic {
			return n.identifiers.UpdateMetadata(ctx, node)
		}
		return nil
	case queue.TaskIdentifierUpdate:
		node, err := n.store.GetNode(ctx, task.NodeID)
		if err != nil {
			if err == store.ErrNotFound {
				return nil
			}
			return err
		}
		// mint on first publication, then push current metadata
		if err := n.identifiers.RequestIdentifiers(ctx, node); err != nil {
			return err
		}
		return n.identifiers.UpdateMetadata(ctx, node)
	case queue.TaskStorageUsageRefresh:
		// invalidation only, the next read recomputes
		return n.cache.Delete(ctx, cache.StorageUsageKey(task.NodeID))
	default:
		logrus.Warnf("unknown task %s for node %s", task.Name, task.NodeID)
		return nil
	}
}
