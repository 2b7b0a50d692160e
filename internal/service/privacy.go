package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pattisdr/osf.io/internal/auth"
	"github.com/pattisdr/osf.io/internal/model"
	"github.com/pattisdr/osf.io/internal/permissions"
	"github.com/pattisdr/osf.io/internal/queue"
	"github.com/pattisdr/osf.io/internal/store"
	"github.com/sirupsen/logrus"
)

// SetPrivacy moves the node between private and public. Admin only.
//
// Private to public is blocked for suspended nodes, for spammy nodes
// (policy controlled for flagged, always for confirmed spam), for
// registrations with a pending
// approval, and for embargoed registrations (those must go through
// RequestEmbargoTermination). Public to private is blocked for
// registrations unless an embargo is still pending. Both transitions log
// and rotate the scoped analytics read key; going public pushes the
// identifier registry update asynchronously.
func (n *NodeService) SetPrivacy(ctx context.Context, node *model.Node, permission string, a *auth.Auth) error {
	ok, err := n.hasPermission(ctx, n.store, node.ID, a.UserID(), permissions.Admin)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAuthorized
	}

	switch permission {
	case model.Public:
		if node.IsPublic {
			return nil
		}
		if node.Suspended {
			return fmt.Errorf("%w: suspended content cannot be made public", ErrInvalidState)
		}
		if n.spam.BlocksPublic(node) {
			return fmt.Errorf("%w: spam flagged content cannot be made public", ErrInvalidState)
		}
		if node.IsPendingRegistration() {
			return fmt.Errorf("%w: registration with an unapproved approval cannot be made public", ErrInvalidState)
		}
		if node.IsPendingEmbargo() {
			return fmt.Errorf("%w: registration with an unapproved embargo cannot be made public", ErrInvalidState)
		}
		if node.IsEmbargoed() {
			return fmt.Errorf("%w: embargoed registration requires embargo termination", ErrInvalidState)
		}
	case model.Private:
		if !node.IsPublic {
			return nil
		}
		if node.IsRegistration() && !node.IsPendingEmbargo() {
			return fmt.Errorf("%w: public registrations must be withdrawn, not made private", ErrInvalidState)
		}
	default:
		return fmt.Errorf("%w: privacy must be %q or %q", ErrValidation, model.Public, model.Private)
	}

	err = n.store.Transaction(ctx, func(tx store.Store) error {
		action := model.MadePrivate
		if permission == model.Public {
			node.IsPublic = true
			node.AnalyticsReadKey = uuid.New().String()
			action = model.MadePublic
		} else {
			node.IsPublic = false
			node.AnalyticsReadKey = ""
		}
		if err := tx.UpdateNode(ctx, node); err != nil {
			return err
		}
		return n.addLog(ctx, tx, node, action, a.UserID(), nil)
	})
	if err != nil {
		return err
	}

	n.addons.AfterSetPrivacy(ctx, node, permission)
	n.search.UpdateNode(ctx, node)
	n.enqueueNodeUpdated(ctx, node.ID, a.UserID(), "is_public")

	if permission == model.Public {
		task := &queue.Task{Name: queue.TaskIdentifierUpdate, NodeID: node.ID, Status: model.Public}
		if err := n.queue.Enqueue(ctx, task); err != nil {
			logrus.Errorf("failed to enqueue identifier update for node %s: %v", node.ID, err)
		}
	}
	return nil
}

// RequestEmbargoTermination records a request to end an active embargo
// early. The registration stays embargoed until the request is approved,
// which happens outside this engine.
func (n *NodeService) RequestEmbargoTermination(ctx context.Context, node *model.Node, a *auth.Auth) error {
	if !node.IsEmbargoed() {
		return fmt.Errorf("%w: only embargoed registrations accept termination requests", ErrInvalidState)
	}
	ok, err := n.hasPermission(ctx, n.store, node.ID, a.UserID(), permissions.Admin)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAuthorized
	}

	return n.store.Transaction(ctx, func(tx store.Store) error {
		return n.addLog(ctx, tx, node, model.EmbargoTerminationRequested, a.UserID(), nil)
	})
}
