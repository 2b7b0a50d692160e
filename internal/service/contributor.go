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

// AddContributor adds a user as a contributor at the given permission
// level (write when empty). Actor must be admin on the node.
func (n *NodeService) AddContributor(ctx context.Context, node *model.Node, user *model.User, permission string, visible bool, a *auth.Auth) (*model.Contributor, error) {
	ok, err := n.hasPermission(ctx, n.store, node.ID, a.UserID(), permissions.Admin)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAuthorized
	}

	if permission == "" {
		permission = permissions.DefaultContributorPermissions
	}
	if !permissions.Valid(permission) {
		return nil, fmt.Errorf("%w: %v", ErrValidation, permissions.ErrUnknownPermission)
	}

	contrib := &model.Contributor{
		ID:      uuid.New().String(),
		UserID:  user.ID,
		NodeID:  node.ID,
		Visible: visible,
	}
	applyPermission(contrib, permission)

	err = n.store.Transaction(ctx, func(tx store.Store) error {
		if _, err := tx.GetContributor(ctx, node.ID, user.ID); err == nil {
			return fmt.Errorf("%w: user is already a contributor", ErrValidation)
		} else if err != store.ErrNotFound {
			return err
		}

		existing, err := tx.ListContributors(ctx, node.ID)
		if err != nil {
			return err
		}
		contrib.Order = len(existing)

		if err := tx.CreateContributor(ctx, contrib); err != nil {
			return err
		}
		return n.addLog(ctx, tx, node, model.ContributorAdded, a.UserID(), model.Mapping{
			"contributor": user.ID,
		})
	})
	if err != nil {
		return nil, err
	}

	n.enqueueNodeUpdated(ctx, node.ID, a.UserID(), "contributors")
	return contrib, nil
}

// RemoveContributor removes a contributorship. Actors may remove themselves;
// removing anyone else requires admin. The last admin can never be removed,
// nor the last visible contributor.
func (n *NodeService) RemoveContributor(ctx context.Context, node *model.Node, userID string, a *auth.Auth) error {
	if a.UserID() != userID {
		ok, err := n.hasPermission(ctx, n.store, node.ID, a.UserID(), permissions.Admin)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotAuthorized
		}
	}

	err := n.store.Transaction(ctx, func(tx store.Store) error {
		contrib, err := tx.GetContributor(ctx, node.ID, userID)
		if err != nil {
			return mapStoreErr(err)
		}

		if contrib.Admin {
			admins, err := tx.CountAdmins(ctx, node.ID)
			if err != nil {
				return err
			}
			if admins <= 1 {
				return fmt.Errorf("%w: cannot remove the only admin", ErrInvalidState)
			}
		}
		if contrib.Visible {
			visible, err := tx.CountVisible(ctx, node.ID)
			if err != nil {
				return err
			}
			if visible <= 1 {
				return fmt.Errorf("%w: must have at least one visible contributor", ErrInvalidState)
			}
		}

		if err := tx.DeleteContributor(ctx, node.ID, userID); err != nil {
			return err
		}
		return n.addLog(ctx, tx, node, model.ContributorRemoved, a.UserID(), model.Mapping{
			"contributor": userID,
		})
	})
	if err != nil {
		return err
	}

	n.enqueueNodeUpdated(ctx, node.ID, a.UserID(), "contributors")
	return nil
}

// SetPermissions changes a contributor's permission level, logging the
// old and new levels. Demoting the only admin is rejected.
func (n *NodeService) SetPermissions(ctx context.Context, node *model.Node, userID, permission string, a *auth.Auth) error {
	ok, err := n.hasPermission(ctx, n.store, node.ID, a.UserID(), permissions.Admin)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAuthorized
	}
	if !permissions.Valid(permission) {
		return fmt.Errorf("%w: %v", ErrValidation, permissions.ErrUnknownPermission)
	}

	return n.store.Transaction(ctx, func(tx store.Store) error {
		contrib, err := tx.GetContributor(ctx, node.ID, userID)
		if err != nil {
			return mapStoreErr(err)
		}

		old, err := permissions.Reduce(heldLevels(contrib))
		if err != nil {
			return err
		}
		if old == permission {
			return nil
		}

		if contrib.Admin && permission != permissions.Admin {
			admins, err := tx.CountAdmins(ctx, node.ID)
			if err != nil {
				return err
			}
			if admins <= 1 {
				return fmt.Errorf("%w: cannot demote the only admin", ErrInvalidState)
			}
		}

		applyPermission(contrib, permission)
		if err := tx.UpdateContributor(ctx, contrib); err != nil {
			return err
		}
		return n.addLog(ctx, tx, node, model.PermissionsUpdated, a.UserID(), model.Mapping{
			"contributor":    userID,
			"permission_old": old,
			"permission_new": permission,
		})
	})
}

// GetPermissions returns the levels the user holds directly on the node.
// Inherited access is not reflected here.
func (n *NodeService) GetPermissions(ctx context.Context, node *model.Node, userID string) ([]string, error) {
	contrib, err := n.store.GetContributor(ctx, node.ID, userID)
	if err == store.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return heldLevels(contrib), nil
}

// SetVisible toggles whether the contributor is shown publicly. The last
// visible contributor cannot be hidden.
func (n *NodeService) SetVisible(ctx context.Context, node *model.Node, userID string, visible bool, a *auth.Auth) error {
	ok, err := n.hasPermission(ctx, n.store, node.ID, a.UserID(), permissions.Admin)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAuthorized
	}

	return n.store.Transaction(ctx, func(tx store.Store) error {
		contrib, err := tx.GetContributor(ctx, node.ID, userID)
		if err != nil {
			return mapStoreErr(err)
		}
		if contrib.Visible == visible {
			return nil
		}

		if !visible {
			count, err := tx.CountVisible(ctx, node.ID)
			if err != nil {
				return err
			}
			if count <= 1 {
				return fmt.Errorf("%w: must have at least one visible contributor", ErrInvalidState)
			}
		}

		contrib.Visible = visible
		if err := tx.UpdateContributor(ctx, contrib); err != nil {
			return err
		}

		action := model.MadeContributorInvisible
		if visible {
			action = model.MadeContributorVisible
		}
		return n.addLog(ctx, tx, node, action, a.UserID(), model.Mapping{
			"contributor": userID,
		})
	})
}

// CanView answers whether the auth may read the node. Public nodes are
// readable by anyone; an anonymized share link restricts visibility to
// exactly its node set; otherwise direct contributorship, an active
// view-only link covering the node, or admin on an ancestor grants read.
func (n *NodeService) CanView(ctx context.Context, node *model.Node, a *auth.Auth) (bool, error) {
	if node == nil {
		return false, nil
	}

	if a.Anonymized() {
		return n.store.LinkCoversNode(ctx, a.PrivateLink.ID, node.ID)
	}

	if node.IsPublic {
		return true, nil
	}

	if a != nil && a.PrivateKey != "" {
		link, err := n.store.GetPrivateLinkByKey(ctx, a.PrivateKey)
		if err != nil && err != store.ErrNotFound {
			return false, err
		}
		if link != nil && !link.IsDeleted {
			covered, err := n.store.LinkCoversNode(ctx, link.ID, node.ID)
			if err != nil {
				return false, err
			}
			if covered {
				return true, nil
			}
		}
	}

	if !a.LoggedIn() {
		return false, nil
	}

	ok, err := n.hasPermission(ctx, n.store, node.ID, a.UserID(), permissions.Read)
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}

	// admin on any ancestor grants read, cascading down non-link edges
	return n.store.HasImplicitRead(ctx, a.UserID(), node.ID)
}

// CanEdit answers whether the actor may write the node. Write never
// inherits from ancestors. Exactly one of a or user must be supplied.
func (n *NodeService) CanEdit(ctx context.Context, node *model.Node, a *auth.Auth, user *model.User) (bool, error) {
	if (a == nil) == (user == nil) {
		return false, fmt.Errorf("%w: exactly one of auth or user must be supplied", ErrValidation)
	}

	userID := ""
	if a != nil {
		userID = a.UserID()
	} else {
		userID = user.ID
	}
	if userID == "" {
		return false, nil
	}

	return n.hasPermission(ctx, n.store, node.ID, userID, permissions.Write)
}

// IsAdminParent reports whether the user holds admin on any strict
// ancestor of the node.
func (n *NodeService) IsAdminParent(ctx context.Context, node *model.Node, userID string) (bool, error) {
	ancestors, err := n.store.AncestorIDs(ctx, node.ID)
	if err != nil {
		return false, err
	}
	for _, id := range ancestors {
		ok, err := n.hasPermission(ctx, n.store, id, userID, permissions.Admin)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// HasPermissionOnChildren reports whether the user holds the permission on
// the node or on any primary descendant.
func (n *NodeService) HasPermissionOnChildren(ctx context.Context, node *model.Node, userID, permission string) (bool, error) {
	ok, err := n.hasPermission(ctx, n.store, node.ID, userID, permission)
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}

	descendants, err := n.store.DescendantIDs(ctx, node.ID, true)
	if err != nil {
		return false, err
	}
	for _, id := range descendants {
		ok, err := n.hasPermission(ctx, n.store, id, userID, permission)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// AdminContributorIDs returns the ids of users holding admin on the node
// or any primary descendant, deduplicated.
func (n *NodeService) AdminContributorIDs(ctx context.Context, node *model.Node) ([]string, error) {
	ids := []string{node.ID}
	descendants, err := n.store.DescendantIDs(ctx, node.ID, true)
	if err != nil {
		return nil, err
	}
	ids = append(ids, descendants...)

	seen := map[string]bool{}
	var admins []string
	for _, nodeID := range ids {
		contribs, err := n.store.ListContributors(ctx, nodeID)
		if err != nil {
			return nil, err
		}
		for _, contrib := range contribs {
			if contrib.Admin && !seen[contrib.UserID] {
				seen[contrib.UserID] = true
				admins = append(admins, contrib.UserID)
			}
		}
	}
	return admins, nil
}

// hasPermission checks the direct contributorship flags only.
func (n *NodeService) hasPermission(ctx context.Context, s store.Store, nodeID, userID, permission string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	contrib, err := s.GetContributor(ctx, nodeID, userID)
	if err == store.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	switch permission {
	case permissions.Read:
		return contrib.Read, nil
	case permissions.Write:
		return contrib.Write, nil
	case permissions.Admin:
		return contrib.Admin, nil
	}
	return false, permissions.ErrUnknownPermission
}

func applyPermission(contrib *model.Contributor, permission string) {
	contrib.Read = false
	contrib.Write = false
	contrib.Admin = false
	for _, level := range permissions.Expand(permission) {
		switch level {
		case permissions.Read:
			contrib.Read = true
		case permissions.Write:
			contrib.Write = true
		case permissions.Admin:
			contrib.Admin = true
		}
	}
}

func heldLevels(contrib *model.Contributor) []string {
	var held []string
	if contrib.Read {
		held = append(held, permissions.Read)
	}
	if contrib.Write {
		held = append(held, permissions.Write)
	}
	if contrib.Admin {
		held = append(held, permissions.Admin)
	}
	return held
}
