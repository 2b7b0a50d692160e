package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/pattisdr/osf.io/internal/auth"
	"github.com/pattisdr/osf.io/internal/model"
	"github.com/pattisdr/osf.io/internal/store"
)

const (
	logClonePageSize = 100

	forkTitlePrefix     = "Fork of "
	templateTitlePrefix = "Templated from "
)

// RegisterNode freezes the node tree into a registration: a full scalar
// clone with contributors, tags, institutions, a copied license and the
// source's audit log, recursed over every primary child. Node links are
// carried as links to the original targets, never cloned.
//
// A non-empty childIDs list restricts registration to a subtree. Excluding
// a child whose own primary descendants are included is rejected: a
// registration must never contain a node without its parent.
//
// The new node is committed before its children, so a crash mid-recursion
// can leave a partial tree; the operation is re-run as the resolution.
func (n *NodeService) RegisterNode(ctx context.Context, node *model.Node, schema string, data []byte, a *auth.Auth, childIDs []string) (*model.Node, []string, error) {
	if node.IsDeleted {
		return nil, nil, fmt.Errorf("%w: cannot register a deleted node", ErrInvalidState)
	}
	if node.IsCollection() || node.IsQuickFiles() {
		return nil, nil, fmt.Errorf("%w: this node type cannot be registered", ErrInvalidState)
	}

	canEdit, err := n.CanEdit(ctx, node, a, nil)
	if err != nil {
		return nil, nil, err
	}
	if !canEdit {
		adminParent, err := n.IsAdminParent(ctx, node, a.UserID())
		if err != nil {
			return nil, nil, err
		}
		if !adminParent {
			return nil, nil, ErrNotAuthorized
		}
	}

	meta, err := n.compress.Encode(data)
	if err != nil {
		return nil, nil, err
	}

	childSet := mapset.NewSet(childIDs...)
	var created []*model.Node
	registration, err := n.registerTree(ctx, node, schema, meta, a, childSet, nil, &created)
	if err != nil {
		return nil, nil, err
	}

	if err := n.rerootSubtree(ctx, created, registration.ID); err != nil {
		return nil, nil, err
	}

	n.search.BulkUpdateNodes(ctx, created)
	messages := n.addons.AfterRegister(ctx, node, registration, a.UserID())
	return registration, messages, nil
}

func (n *NodeService) registerTree(ctx context.Context, original *model.Node, schema string, meta []byte, a *auth.Auth, childSet mapset.Set[string], parent *model.Node, created *[]*model.Node) (*model.Node, error) {
	now := time.Now()
	registration := cloneScalars(original)
	registration.Type = model.TypeRegistration
	registration.RegisteredFromID = &original.ID
	registration.RegisteredDate = &now
	registration.RegisteredMeta = meta
	registration.RegisteredSchema = schema
	registration.RegistrationState = model.RegistrationPending
	registration.EmbargoState = model.EmbargoNone
	userID := a.UserID()
	registration.RegisteredUserID = &userID

	err := n.store.Transaction(ctx, func(tx store.Store) error {
		if err := tx.CreateNode(ctx, registration); err != nil {
			return err
		}
		if err := n.allocateGuid(ctx, tx, registration.ID); err != nil {
			return err
		}

		contribs, err := tx.ListContributors(ctx, original.ID)
		if err != nil {
			return err
		}
		copies := make([]*model.Contributor, 0, len(contribs))
		for _, contrib := range contribs {
			copies = append(copies, &model.Contributor{
				ID:      uuid.New().String(),
				UserID:  contrib.UserID,
				NodeID:  registration.ID,
				Read:    contrib.Read,
				Write:   contrib.Write,
				Admin:   contrib.Admin,
				Visible: contrib.Visible,
				Order:   contrib.Order,
			})
		}
		if err := tx.BulkCreateContributors(ctx, copies); err != nil {
			return err
		}

		if parent != nil {
			order, err := tx.NextOrder(ctx, parent.ID)
			if err != nil {
				return err
			}
			rel := &model.NodeRelation{
				ID:       uuid.New().String(),
				ParentID: parent.ID,
				ChildID:  registration.ID,
				Order:    order,
			}
			if err := tx.CreateRelation(ctx, rel); err != nil {
				return err
			}
		}

		if err := n.copyAttachments(ctx, tx, original, registration); err != nil {
			return err
		}

		return n.addLog(ctx, tx, original, model.RegistrationInitiated, a.UserID(), model.Mapping{
			"registration": registration.ID,
		})
	})
	if err != nil {
		return nil, err
	}
	*created = append(*created, registration)

	if err := n.cloneLogs(ctx, original.ID, registration.ID); err != nil {
		return nil, err
	}

	rels, err := n.store.RelationsByParent(ctx, original.ID)
	if err != nil {
		return nil, err
	}
	for _, rel := range rels {
		if rel.IsNodeLink {
			if err := n.copyLinkEdge(ctx, registration.ID, rel); err != nil {
				return nil, err
			}
			continue
		}

		child, err := n.store.GetNode(ctx, rel.ChildID)
		if err != nil {
			return nil, mapStoreErr(err)
		}
		if child.IsDeleted {
			continue
		}

		if childSet.Cardinality() > 0 && !childSet.Contains(child.ID) {
			included, err := n.hasIncludedDescendant(ctx, child.ID, childSet)
			if err != nil {
				return nil, err
			}
			if included {
				return nil, fmt.Errorf("%w: cannot register a node without including its parent", ErrValidation)
			}
			continue
		}

		if _, err := n.registerTree(ctx, child, schema, meta, a, childSet, registration, created); err != nil {
			return nil, err
		}
	}

	return registration, nil
}

// ForkNode clones the tree into a new, always private fork owned solely by
// the acting user. Read access suffices; branches the actor cannot read are
// silently omitted rather than failing the fork.
func (n *NodeService) ForkNode(ctx context.Context, node *model.Node, a *auth.Auth) (*model.Node, []string, error) {
	if node.IsDeleted {
		return nil, nil, fmt.Errorf("%w: cannot fork a deleted node", ErrInvalidState)
	}
	if node.IsCollection() || node.IsQuickFiles() {
		return nil, nil, fmt.Errorf("%w: this node type cannot be forked", ErrInvalidState)
	}
	readable, err := n.CanView(ctx, node, a)
	if err != nil {
		return nil, nil, err
	}
	if !readable {
		return nil, nil, ErrNotAuthorized
	}

	var created []*model.Node
	fork, err := n.forkTree(ctx, node, a, nil, forkTitlePrefix, &created)
	if err != nil {
		return nil, nil, err
	}

	if err := n.rerootSubtree(ctx, created, fork.ID); err != nil {
		return nil, nil, err
	}

	n.search.BulkUpdateNodes(ctx, created)
	messages := n.addons.AfterFork(ctx, node, fork, a.UserID())
	return fork, messages, nil
}

func (n *NodeService) forkTree(ctx context.Context, original *model.Node, a *auth.Auth, parent *model.Node, titlePrefix string, created *[]*model.Node) (*model.Node, error) {
	now := time.Now()
	fork := cloneScalars(original)
	fork.Title = truncateTitle(titlePrefix + original.Title)
	fork.IsFork = true
	fork.ForkedFromID = &original.ID
	fork.ForkedDate = &now
	fork.CreatorID = a.UserID()

	err := n.store.Transaction(ctx, func(tx store.Store) error {
		if err := tx.CreateNode(ctx, fork); err != nil {
			return err
		}
		if err := n.allocateGuid(ctx, tx, fork.ID); err != nil {
			return err
		}

		contrib := &model.Contributor{
			ID:      uuid.New().String(),
			UserID:  a.UserID(),
			NodeID:  fork.ID,
			Read:    true,
			Write:   true,
			Admin:   true,
			Visible: true,
		}
		if err := tx.CreateContributor(ctx, contrib); err != nil {
			return err
		}

		if parent != nil {
			order, err := tx.NextOrder(ctx, parent.ID)
			if err != nil {
				return err
			}
			rel := &model.NodeRelation{
				ID:       uuid.New().String(),
				ParentID: parent.ID,
				ChildID:  fork.ID,
				Order:    order,
			}
			if err := tx.CreateRelation(ctx, rel); err != nil {
				return err
			}
		}

		if err := n.copyAttachments(ctx, tx, original, fork); err != nil {
			return err
		}

		return n.addLog(ctx, tx, original, model.NodeForked, a.UserID(), model.Mapping{
			"fork": fork.ID,
		})
	})
	if err != nil {
		return nil, err
	}
	*created = append(*created, fork)

	if err := n.cloneLogs(ctx, original.ID, fork.ID); err != nil {
		return nil, err
	}

	rels, err := n.store.RelationsByParent(ctx, original.ID)
	if err != nil {
		return nil, err
	}
	for _, rel := range rels {
		if rel.IsNodeLink {
			if err := n.copyLinkEdge(ctx, fork.ID, rel); err != nil {
				return nil, err
			}
			continue
		}

		child, err := n.store.GetNode(ctx, rel.ChildID)
		if err != nil {
			return nil, mapStoreErr(err)
		}
		if child.IsDeleted {
			continue
		}

		readable, err := n.CanView(ctx, child, a)
		if err != nil {
			return nil, err
		}
		if !readable {
			// unreadable branches are omitted, not fatal
			continue
		}

		if _, err := n.forkTree(ctx, child, a, fork, "", created); err != nil {
			if errors.Is(err, ErrNotAuthorized) {
				continue
			}
			return nil, err
		}
	}

	return fork, nil
}

// UseAsTemplate copies the tree's structure and settings into a fresh,
// private node owned by the acting user. Audit logs, node links and
// contributor lists do not carry over. The changes map, keyed by source
// node id, overrides fields on individual copies.
func (n *NodeService) UseAsTemplate(ctx context.Context, node *model.Node, a *auth.Auth, changes map[string]map[string]string) (*model.Node, []string, error) {
	if node.IsDeleted {
		return nil, nil, fmt.Errorf("%w: cannot template a deleted node", ErrInvalidState)
	}
	readable, err := n.CanView(ctx, node, a)
	if err != nil {
		return nil, nil, err
	}
	if !readable {
		return nil, nil, ErrNotAuthorized
	}

	var created []*model.Node
	copy, err := n.templateTree(ctx, node, a, nil, changes, true, &created)
	if err != nil {
		return nil, nil, err
	}

	if err := n.rerootSubtree(ctx, created, copy.ID); err != nil {
		return nil, nil, err
	}

	n.search.BulkUpdateNodes(ctx, created)
	messages := n.addons.AfterTemplate(ctx, node, copy, a.UserID())
	return copy, messages, nil
}

func (n *NodeService) templateTree(ctx context.Context, original *model.Node, a *auth.Auth, parent *model.Node, changes map[string]map[string]string, top bool, created *[]*model.Node) (*model.Node, error) {
	copy := cloneScalars(original)
	copy.TemplateNodeID = &original.ID
	copy.CreatorID = a.UserID()
	if top {
		copy.Title = truncateTitle(templateTitlePrefix + original.Title)
	}
	if overrides, ok := changes[original.ID]; ok {
		if title, ok := overrides["title"]; ok {
			validated, err := validateTitle(title)
			if err != nil {
				return nil, err
			}
			copy.Title = validated
		}
		if description, ok := overrides["description"]; ok {
			copy.Description = description
		}
		if category, ok := overrides["category"]; ok {
			if _, known := model.CategoryMap[category]; !known {
				return nil, fmt.Errorf("%w: unknown category %q", ErrValidation, category)
			}
			copy.Category = category
		}
	}

	err := n.store.Transaction(ctx, func(tx store.Store) error {
		if err := tx.CreateNode(ctx, copy); err != nil {
			return err
		}
		if err := n.allocateGuid(ctx, tx, copy.ID); err != nil {
			return err
		}

		contrib := &model.Contributor{
			ID:      uuid.New().String(),
			UserID:  a.UserID(),
			NodeID:  copy.ID,
			Read:    true,
			Write:   true,
			Admin:   true,
			Visible: true,
		}
		if err := tx.CreateContributor(ctx, contrib); err != nil {
			return err
		}

		if parent != nil {
			order, err := tx.NextOrder(ctx, parent.ID)
			if err != nil {
				return err
			}
			rel := &model.NodeRelation{
				ID:       uuid.New().String(),
				ParentID: parent.ID,
				ChildID:  copy.ID,
				Order:    order,
			}
			if err := tx.CreateRelation(ctx, rel); err != nil {
				return err
			}
		}

		if err := n.copyLicense(ctx, tx, original, copy); err != nil {
			return err
		}

		return n.addLog(ctx, tx, copy, model.CreatedFrom, a.UserID(), model.Mapping{
			"template_node": original.ID,
		})
	})
	if err != nil {
		return nil, err
	}
	*created = append(*created, copy)

	rels, err := n.store.RelationsByParent(ctx, original.ID)
	if err != nil {
		return nil, err
	}
	for _, rel := range rels {
		if rel.IsNodeLink {
			continue
		}

		child, err := n.store.GetNode(ctx, rel.ChildID)
		if err != nil {
			return nil, mapStoreErr(err)
		}
		if child.IsDeleted {
			continue
		}

		readable, err := n.CanView(ctx, child, a)
		if err != nil {
			return nil, err
		}
		if !readable {
			continue
		}

		if _, err := n.templateTree(ctx, child, a, copy, changes, false, created); err != nil {
			if errors.Is(err, ErrNotAuthorized) {
				continue
			}
			return nil, err
		}
	}

	return copy, nil
}

// cloneScalars copies the shared scalar fields into a fresh private node.
// Clones never inherit privacy, spam state, the wiki collaboration
// namespace or subscription state.
func cloneScalars(original *model.Node) *model.Node {
	return &model.Node{
		ID:             uuid.New().String(),
		Type:           original.Type,
		Title:          original.Title,
		Description:    original.Description,
		Category:       original.Category,
		CreatorID:      original.CreatorID,
		CommentLevel:   original.CommentLevel,
		CustomCitation: original.CustomCitation,
	}
}

// copyAttachments carries tags, institutions and a copied license row onto
// the clone.
func (n *NodeService) copyAttachments(ctx context.Context, tx store.Store, original, clone *model.Node) error {
	for _, system := range []bool{false, true} {
		tags, err := tx.ListTags(ctx, original.ID, system)
		if err != nil {
			return err
		}
		for _, tag := range tags {
			if err := tx.AttachTag(ctx, clone.ID, tag.ID); err != nil {
				return err
			}
		}
	}

	institutions, err := tx.ListNodeInstitutions(ctx, original.ID)
	if err != nil {
		return err
	}
	for _, inst := range institutions {
		if err := tx.AttachInstitution(ctx, clone.ID, inst.ID); err != nil {
			return err
		}
	}

	return n.copyLicense(ctx, tx, original, clone)
}

// copyLicense attaches a copy of the original's own license row, never the
// same row. Inherited licenses stay inherited.
func (n *NodeService) copyLicense(ctx context.Context, tx store.Store, original, clone *model.Node) error {
	if original.NodeLicenseID == nil {
		return nil
	}
	license, err := tx.GetLicense(ctx, *original.NodeLicenseID)
	if err != nil {
		return mapStoreErr(err)
	}
	licenseCopy := license.Copy()
	if err := tx.CreateLicense(ctx, licenseCopy); err != nil {
		return err
	}
	clone.NodeLicenseID = &licenseCopy.ID
	return tx.UpdateNode(ctx, clone)
}

// copyLinkEdge points the clone at the original link target. Link targets
// are never cloned.
func (n *NodeService) copyLinkEdge(ctx context.Context, parentID string, rel *model.NodeRelation) error {
	return n.store.CreateRelation(ctx, &model.NodeRelation{
		ID:         uuid.New().String(),
		ParentID:   parentID,
		ChildID:    rel.ChildID,
		IsNodeLink: true,
		Order:      rel.Order,
	})
}

// cloneLogs copies the source's audit trail onto the clone in fixed size
// chunks, preserving action, params and timestamps under new ids. Chunking
// bounds transaction size; an interrupted copy resumes at the next chunk
// offset when re-run.
func (n *NodeService) cloneLogs(ctx context.Context, fromID, toID string) error {
	offset := 0
	for {
		logs, err := n.store.ListLogs(ctx, fromID, offset, logClonePageSize)
		if err != nil {
			return err
		}
		if len(logs) == 0 {
			return nil
		}

		copies := make([]*model.NodeLog, 0, len(logs))
		for _, log := range logs {
			originalID := log.NodeID
			if log.OriginalNodeID != nil {
				originalID = *log.OriginalNodeID
			}
			copies = append(copies, &model.NodeLog{
				ID:             uuid.New().String(),
				Action:         log.Action,
				Date:           log.Date,
				Params:         log.Params,
				NodeID:         toID,
				UserID:         log.UserID,
				OriginalNodeID: &originalID,
				ShouldHide:     log.ShouldHide,
			})
		}
		if err := n.store.BulkCreateLogs(ctx, copies); err != nil {
			return err
		}

		if len(logs) < logClonePageSize {
			return nil
		}
		offset += logClonePageSize
	}
}

// RegisteredMeta returns the decoded registration snapshot payload.
func (n *NodeService) RegisteredMeta(ctx context.Context, node *model.Node) ([]byte, error) {
	if !node.IsRegistration() {
		return nil, fmt.Errorf("%w: node is not a registration", ErrInvalidState)
	}
	if len(node.RegisteredMeta) == 0 {
		return nil, nil
	}
	return n.compress.Decode(node.RegisteredMeta)
}

// hasIncludedDescendant reports whether any primary descendant of the node
// appears in the child filter set.
func (n *NodeService) hasIncludedDescendant(ctx context.Context, nodeID string, childSet mapset.Set[string]) (bool, error) {
	descendants, err := n.store.DescendantIDs(ctx, nodeID, true)
	if err != nil {
		return false, err
	}
	for _, id := range descendants {
		if childSet.Contains(id) {
			return true, nil
		}
	}
	return false, nil
}

// rerootSubtree materializes the new tree's root on every created node.
// Clones never inherit the source's root.
func (n *NodeService) rerootSubtree(ctx context.Context, created []*model.Node, rootID string) error {
	for _, node := range created {
		node.RootID = &rootID
		if err := n.store.UpdateNode(ctx, node); err != nil {
			return err
		}
	}
	return nil
}
