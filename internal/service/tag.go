package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pattisdr/osf.io/internal/auth"
	"github.com/pattisdr/osf.io/internal/model"
	"github.com/pattisdr/osf.io/internal/permissions"
	"github.com/pattisdr/osf.io/internal/store"
)

// AddTag attaches a user tag, creating the tag record on first use.
func (n *NodeService) AddTag(ctx context.Context, node *model.Node, name string, a *auth.Auth) error {
	ok, err := n.CanEdit(ctx, node, a, nil)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAuthorized
	}
	if name == "" {
		return fmt.Errorf("%w: tag cannot be empty", ErrValidation)
	}

	err = n.store.Transaction(ctx, func(tx store.Store) error {
		has, err := tx.NodeHasTag(ctx, node.ID, name, false)
		if err != nil {
			return err
		}
		if has {
			return nil
		}

		tag, err := tx.GetOrCreateTag(ctx, name, false)
		if err != nil {
			return err
		}
		if err := tx.AttachTag(ctx, node.ID, tag.ID); err != nil {
			return err
		}
		return n.addLog(ctx, tx, node, model.TagAdded, a.UserID(), model.Mapping{"tag": name})
	})
	if err != nil {
		return err
	}

	n.search.UpdateNode(ctx, node)
	n.enqueueNodeUpdated(ctx, node.ID, a.UserID(), "tags")
	return nil
}

// RemoveTag detaches a user tag. Removing a tag the node does not carry is
// a not-found condition.
func (n *NodeService) RemoveTag(ctx context.Context, node *model.Node, name string, a *auth.Auth) error {
	if err := n.RemoveTags(ctx, node, []string{name}, a); err != nil {
		return err
	}
	return nil
}

// RemoveTags detaches several user tags in one transaction. Every named tag
// must be present.
func (n *NodeService) RemoveTags(ctx context.Context, node *model.Node, names []string, a *auth.Auth) error {
	ok, err := n.CanEdit(ctx, node, a, nil)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAuthorized
	}

	err = n.store.Transaction(ctx, func(tx store.Store) error {
		for _, name := range names {
			has, err := tx.NodeHasTag(ctx, node.ID, name, false)
			if err != nil {
				return err
			}
			if !has {
				return fmt.Errorf("%w: tag %q not present", ErrNotFound, name)
			}

			tag, err := tx.GetOrCreateTag(ctx, name, false)
			if err != nil {
				return err
			}
			if err := tx.DetachTag(ctx, node.ID, tag.ID); err != nil {
				return err
			}
			if err := n.addLog(ctx, tx, node, model.TagRemoved, a.UserID(), model.Mapping{"tag": name}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	n.search.UpdateNode(ctx, node)
	n.enqueueNodeUpdated(ctx, node.ID, a.UserID(), "tags")
	return nil
}

// AddSystemTag attaches a system tag without logging. System tags are
// bookkeeping, not user content.
func (n *NodeService) AddSystemTag(ctx context.Context, node *model.Node, name string) error {
	return n.store.Transaction(ctx, func(tx store.Store) error {
		tag, err := tx.GetOrCreateTag(ctx, name, true)
		if err != nil {
			return err
		}
		return tx.AttachTag(ctx, node.ID, tag.ID)
	})
}

// Tags lists the node's user tags.
func (n *NodeService) Tags(ctx context.Context, node *model.Node) ([]*model.Tag, error) {
	return n.store.ListTags(ctx, node.ID, false)
}

// AddAffiliatedInstitution affiliates the node with an institution the
// acting user belongs to.
func (n *NodeService) AddAffiliatedInstitution(ctx context.Context, node *model.Node, institution *model.Institution, a *auth.Auth) error {
	ok, err := n.CanEdit(ctx, node, a, nil)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAuthorized
	}

	affiliated, err := n.store.UserAffiliated(ctx, a.UserID(), institution.ID)
	if err != nil {
		return err
	}
	if !affiliated {
		return fmt.Errorf("%w: user is not affiliated with %s", ErrValidation, institution.Name)
	}

	return n.store.Transaction(ctx, func(tx store.Store) error {
		has, err := tx.NodeAffiliated(ctx, node.ID, institution.ID)
		if err != nil {
			return err
		}
		if has {
			return nil
		}
		if err := tx.AttachInstitution(ctx, node.ID, institution.ID); err != nil {
			return err
		}
		return n.addLog(ctx, tx, node, model.AffiliatedInstitutionAdded, a.UserID(), model.Mapping{
			"institution": institution.ID,
		})
	})
}

// RemoveAffiliatedInstitution drops the node's affiliation.
func (n *NodeService) RemoveAffiliatedInstitution(ctx context.Context, node *model.Node, institution *model.Institution, a *auth.Auth) error {
	ok, err := n.CanEdit(ctx, node, a, nil)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAuthorized
	}

	return n.store.Transaction(ctx, func(tx store.Store) error {
		has, err := tx.NodeAffiliated(ctx, node.ID, institution.ID)
		if err != nil {
			return err
		}
		if !has {
			return fmt.Errorf("%w: node is not affiliated with %s", ErrNotFound, institution.Name)
		}
		if err := tx.DetachInstitution(ctx, node.ID, institution.ID); err != nil {
			return err
		}
		return n.addLog(ctx, tx, node, model.AffiliatedInstitutionRemoved, a.UserID(), model.Mapping{
			"institution": institution.ID,
		})
	})
}

// AffiliatedInstitutions lists the node's institutional affiliations.
func (n *NodeService) AffiliatedInstitutions(ctx context.Context, node *model.Node) ([]*model.Institution, error) {
	return n.store.ListNodeInstitutions(ctx, node.ID)
}

// AddPrivateLink creates a view-only link covering the node and, when
// includeChildren is set, all of its primary descendants. Admin only.
func (n *NodeService) AddPrivateLink(ctx context.Context, node *model.Node, name string, anonymous, includeChildren bool, a *auth.Auth) (*model.PrivateLink, error) {
	ok, err := n.hasPermission(ctx, n.store, node.ID, a.UserID(), permissions.Admin)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAuthorized
	}

	key, err := model.GenerateLinkKey()
	if err != nil {
		return nil, err
	}

	link := &model.PrivateLink{
		ID:        uuid.New().String(),
		Key:       key,
		Name:      name,
		Anonymous: anonymous,
		CreatorID: a.UserID(),
	}

	nodeIDs := []string{node.ID}
	if includeChildren {
		descendants, err := n.store.DescendantIDs(ctx, node.ID, true)
		if err != nil {
			return nil, err
		}
		nodeIDs = append(nodeIDs, descendants...)
	}

	err = n.store.Transaction(ctx, func(tx store.Store) error {
		if err := tx.CreatePrivateLink(ctx, link, nodeIDs); err != nil {
			return err
		}
		return n.addLog(ctx, tx, node, model.ViewOnlyLinkAdded, a.UserID(), model.Mapping{
			"anonymous_link": fmt.Sprintf("%t", anonymous),
		})
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}

// ActivePrivateLinkKeys lists the keys of the node's non-deleted view-only
// links. Admin only; keys grant visibility to anyone holding them.
func (n *NodeService) ActivePrivateLinkKeys(ctx context.Context, node *model.Node, a *auth.Auth) ([]string, error) {
	ok, err := n.hasPermission(ctx, n.store, node.ID, a.UserID(), permissions.Admin)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAuthorized
	}
	return n.store.ActiveLinkKeys(ctx, node.ID)
}

// DeletePrivateLink retires a view-only link. The key stops granting
// visibility immediately.
func (n *NodeService) DeletePrivateLink(ctx context.Context, node *model.Node, linkID string, a *auth.Auth) error {
	ok, err := n.hasPermission(ctx, n.store, node.ID, a.UserID(), permissions.Admin)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAuthorized
	}

	return n.store.Transaction(ctx, func(tx store.Store) error {
		if err := tx.DeletePrivateLink(ctx, linkID); err != nil {
			return mapStoreErr(err)
		}
		return n.addLog(ctx, tx, node, model.ViewOnlyLinkRemoved, a.UserID(), nil)
	})
}
