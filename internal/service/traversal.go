package service

import (
	"context"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/pattisdr/osf.io/internal/auth"
	"github.com/pattisdr/osf.io/internal/model"
	"github.com/pattisdr/osf.io/internal/store"
)

// GetParent returns the node's unique primary parent, or nil for a top
// level node. Link edges never make a parent.
func (n *NodeService) GetParent(ctx context.Context, node *model.Node) (*model.Node, error) {
	rel, err := n.store.PrimaryParentRelation(ctx, node.ID)
	if err != nil {
		return nil, err
	}
	if rel == nil {
		return nil, nil
	}
	parent, err := n.store.GetNode(ctx, rel.ParentID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return parent, nil
}

// GetRoot resolves the topmost ancestor through primary edges. The result
// is materialized on the node and reused until the parent edge set changes.
func (n *NodeService) GetRoot(ctx context.Context, node *model.Node) (*model.Node, error) {
	if node.RootID != nil {
		root, err := n.store.GetNode(ctx, *node.RootID)
		if err == nil {
			return root, nil
		}
		if err != store.ErrNotFound {
			return nil, err
		}
	}

	rootID, err := n.store.RootID(ctx, node.ID)
	if err != nil {
		return nil, err
	}
	node.RootID = &rootID
	if err := n.store.UpdateNode(ctx, node); err != nil {
		return nil, err
	}
	if rootID == node.ID {
		return node, nil
	}
	return n.store.GetNode(ctx, rootID)
}

// GetChildren returns every descendant reachable through primary edges,
// optionally restricted to non-deleted nodes. The result is the same
// whether the starting node is a root or an interior node.
func (n *NodeService) GetChildren(ctx context.Context, node *model.Node, activeOnly bool) ([]*model.Node, error) {
	ids, err := n.store.DescendantIDs(ctx, node.ID, activeOnly)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return n.store.ListNodesFromIDs(ctx, ids)
}

// GetDescendantsRecursive walks the subtree depth first. Recursion only
// ever follows primary edges; with primaryOnly false, link children are
// included as leaves but never descended into. The walk is restartable
// and reproduces the same sequence absent concurrent structural changes.
func (n *NodeService) GetDescendantsRecursive(ctx context.Context, node *model.Node, primaryOnly bool) ([]*model.Node, error) {
	visited := map[string]bool{node.ID: true}
	var out []*model.Node
	if err := n.descend(ctx, node.ID, primaryOnly, visited, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (n *NodeService) descend(ctx context.Context, nodeID string, primaryOnly bool, visited map[string]bool, out *[]*model.Node) error {
	rels, err := n.store.RelationsByParent(ctx, nodeID)
	if err != nil {
		return err
	}
	for _, rel := range rels {
		if rel.IsNodeLink && primaryOnly {
			continue
		}
		if visited[rel.ChildID] {
			continue
		}
		visited[rel.ChildID] = true

		child, err := n.store.GetNode(ctx, rel.ChildID)
		if err != nil {
			return mapStoreErr(err)
		}
		*out = append(*out, child)

		if !rel.IsNodeLink {
			if err := n.descend(ctx, rel.ChildID, primaryOnly, visited, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReorderChildren rewrites the presentation order of the node's outgoing
// edges. The sequence must be a permutation of the current children, link
// targets included.
func (n *NodeService) ReorderChildren(ctx context.Context, node *model.Node, childIDs []string, a *auth.Auth) error {
	ok, err := n.CanEdit(ctx, node, a, nil)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAuthorized
	}

	rels, err := n.store.RelationsByParent(ctx, node.ID)
	if err != nil {
		return err
	}
	current := mapset.NewSet[string]()
	for _, rel := range rels {
		current.Add(rel.ChildID)
	}
	if len(childIDs) != len(rels) || !current.Equal(mapsetOf(childIDs...)) {
		return fmt.Errorf("%w: child ids must be a permutation of the current children", ErrValidation)
	}

	return n.store.ReorderChildren(ctx, node.ID, childIDs)
}

// AddNodeLink points the node at another node through a link edge. The
// target keeps its own primary parent; arbitrarily many links may point at
// it from different parents.
func (n *NodeService) AddNodeLink(ctx context.Context, node, target *model.Node, a *auth.Auth) error {
	ok, err := n.CanEdit(ctx, node, a, nil)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAuthorized
	}
	if node.ID == target.ID {
		return fmt.Errorf("%w: cannot link a node to itself", ErrValidation)
	}
	if target.IsDeleted {
		return fmt.Errorf("%w: cannot link a deleted node", ErrInvalidState)
	}

	return n.store.Transaction(ctx, func(tx store.Store) error {
		_, err := tx.GetRelation(ctx, node.ID, target.ID, true)
		if err == nil {
			return fmt.Errorf("%w: link already exists", ErrValidation)
		}
		if err != store.ErrNotFound {
			return err
		}
		_, err = tx.GetRelation(ctx, node.ID, target.ID, false)
		if err == nil {
			return fmt.Errorf("%w: node is already a child", ErrValidation)
		}
		if err != store.ErrNotFound {
			return err
		}

		order, err := tx.NextOrder(ctx, node.ID)
		if err != nil {
			return err
		}
		rel := &model.NodeRelation{
			ID:         uuid.New().String(),
			ParentID:   node.ID,
			ChildID:    target.ID,
			IsNodeLink: true,
			Order:      order,
		}
		if err := tx.CreateRelation(ctx, rel); err != nil {
			return err
		}
		return n.addLog(ctx, tx, node, model.NodeLinkCreated, a.UserID(), model.Mapping{
			"pointer": target.ID,
		})
	})
}

// RemoveNodeLink deletes the link edge to the target. The target node
// itself is untouched.
func (n *NodeService) RemoveNodeLink(ctx context.Context, node, target *model.Node, a *auth.Auth) error {
	ok, err := n.CanEdit(ctx, node, a, nil)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAuthorized
	}

	return n.store.Transaction(ctx, func(tx store.Store) error {
		rel, err := tx.GetRelation(ctx, node.ID, target.ID, true)
		if err != nil {
			return mapStoreErr(err)
		}
		if err := tx.DeleteRelation(ctx, rel.ID); err != nil {
			return err
		}

		// ordering keys stay dense per parent
		remaining, err := tx.RelationsByParent(ctx, node.ID)
		if err != nil {
			return err
		}
		childIDs := make([]string, 0, len(remaining))
		for _, r := range remaining {
			childIDs = append(childIDs, r.ChildID)
		}
		if err := tx.ReorderChildren(ctx, node.ID, childIDs); err != nil {
			return err
		}

		return n.addLog(ctx, tx, node, model.NodeLinkRemoved, a.UserID(), model.Mapping{
			"pointer": target.ID,
		})
	})
}

// FindReadableDescendants yields descendants visible to the auth, pruning
// each branch at its first readable node: once a readable node is found
// its own subtree is not descended into, and an unreadable node's children
// are searched for readable ones further down.
func (n *NodeService) FindReadableDescendants(ctx context.Context, node *model.Node, a *auth.Auth) ([]*model.Node, error) {
	var out []*model.Node
	visited := map[string]bool{node.ID: true}
	if err := n.findReadable(ctx, node.ID, a, visited, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (n *NodeService) findReadable(ctx context.Context, nodeID string, a *auth.Auth, visited map[string]bool, out *[]*model.Node) error {
	rels, err := n.store.RelationsByParent(ctx, nodeID)
	if err != nil {
		return err
	}
	for _, rel := range rels {
		if visited[rel.ChildID] {
			continue
		}
		visited[rel.ChildID] = true

		child, err := n.store.GetNode(ctx, rel.ChildID)
		if err != nil {
			return mapStoreErr(err)
		}
		if child.IsDeleted {
			continue
		}

		readable, err := n.CanView(ctx, child, a)
		if err != nil {
			return err
		}
		if readable {
			*out = append(*out, child)
			continue
		}
		if !rel.IsNodeLink {
			if err := n.findReadable(ctx, rel.ChildID, a, visited, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// FindReadableAntecedent ascends primary parents until one is visible to
// the auth, returning nil when none is.
func (n *NodeService) FindReadableAntecedent(ctx context.Context, node *model.Node, a *auth.Auth) (*model.Node, error) {
	parent, err := n.GetParent(ctx, node)
	if err != nil {
		return nil, err
	}
	for parent != nil {
		readable, err := n.CanView(ctx, parent, a)
		if err != nil {
			return nil, err
		}
		if readable {
			return parent, nil
		}
		parent, err = n.GetParent(ctx, parent)
		if err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// NodeAndPrimaryDescendants returns the node followed by its non-deleted
// primary descendants.
func (n *NodeService) NodeAndPrimaryDescendants(ctx context.Context, node *model.Node) ([]*model.Node, error) {
	descendants, err := n.GetChildren(ctx, node, true)
	if err != nil {
		return nil, err
	}
	return append([]*model.Node{node}, descendants...), nil
}

// IsForkOf walks the fork derivation chain.
func (n *NodeService) IsForkOf(ctx context.Context, node *model.Node, otherID string) (bool, error) {
	current := node
	for current.ForkedFromID != nil {
		if *current.ForkedFromID == otherID {
			return true, nil
		}
		next, err := n.store.GetNode(ctx, *current.ForkedFromID)
		if err != nil {
			return false, mapStoreErr(err)
		}
		current = next
	}
	return false, nil
}

// IsRegistrationOf walks the registration derivation chain.
func (n *NodeService) IsRegistrationOf(ctx context.Context, node *model.Node, otherID string) (bool, error) {
	current := node
	for current.RegisteredFromID != nil {
		if *current.RegisteredFromID == otherID {
			return true, nil
		}
		next, err := n.store.GetNode(ctx, *current.RegisteredFromID)
		if err != nil {
			return false, mapStoreErr(err)
		}
		current = next
	}
	return false, nil
}
