package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/pattisdr/osf.io/internal/addons"
	"github.com/pattisdr/osf.io/internal/auth"
	"github.com/pattisdr/osf.io/internal/cache"
	"github.com/pattisdr/osf.io/internal/compress"
	"github.com/pattisdr/osf.io/internal/identifiers"
	"github.com/pattisdr/osf.io/internal/model"
	"github.com/pattisdr/osf.io/internal/permissions"
	"github.com/pattisdr/osf.io/internal/queue"
	"github.com/pattisdr/osf.io/internal/search"
	"github.com/pattisdr/osf.io/internal/spam"
	"github.com/pattisdr/osf.io/internal/store"
	"github.com/sirupsen/logrus"
)

const guidAllocateRetries = 5

// NewNodeService creates a new NodeService.
func NewNodeService(store store.Store, tasks queue.Queue, kv cache.KV, indexer search.Indexer, ident identifiers.Client, registry *addons.Registry, compress compress.Compress, spamPolicy spam.Policy) *NodeService {
	service := &NodeService{
		store:       store,
		queue:       tasks,
		cache:       kv,
		search:      search.BestEffort(indexer),
		identifiers: ident,
		addons:      registry,
		compress:    compress,
		spam:        spamPolicy,
	}

	return service
}

// NodeService carries all node aggregate operations: creation, mutation,
// privacy, contributors, traversal and the clone family. Every operation
// takes an explicit auth; no ambient state is consulted.
type NodeService struct {
	store       store.Store
	queue       queue.Queue
	cache       cache.KV
	search      search.Indexer
	identifiers identifiers.Client
	addons      *addons.Registry
	compress    compress.Compress
	spam        spam.Policy
}

// CreateNodeInput is the construction payload. The variant is fixed at
// creation; nodes never change type afterwards.
type CreateNodeInput struct {
	Title       string
	Description string
	Category    string
	Type        string
	ParentID    string
}

// CreateNode constructs a node, makes its creator the first contributor
// (admin, visible) and allocates its guid. With a parent it becomes a
// primary child and logs node_created on the parent; without one it is a
// top level project.
func (n *NodeService) CreateNode(ctx context.Context, input *CreateNodeInput, a *auth.Auth) (*model.Node, error) {
	if !a.LoggedIn() {
		return nil, ErrNotAuthorized
	}
	title, err := validateTitle(input.Title)
	if err != nil {
		return nil, err
	}
	if _, ok := model.CategoryMap[input.Category]; !ok {
		return nil, fmt.Errorf("%w: unknown category %q", ErrValidation, input.Category)
	}

	nodeType := input.Type
	if nodeType == "" {
		nodeType = model.TypeNode
	}

	node := &model.Node{
		ID:          uuid.New().String(),
		Type:        nodeType,
		Title:       title,
		Description: input.Description,
		Category:    input.Category,
		CreatorID:   a.UserID(),
	}

	err = n.store.Transaction(ctx, func(tx store.Store) error {
		var parent *model.Node
		if input.ParentID != "" {
			parent, err = tx.GetNode(ctx, input.ParentID)
			if err != nil {
				return mapStoreErr(err)
			}
			ok, err := n.hasPermission(ctx, tx, parent.ID, a.UserID(), permissions.Write)
			if err != nil {
				return err
			}
			if !ok {
				return ErrNotAuthorized
			}
		}

		if err := tx.CreateNode(ctx, node); err != nil {
			return err
		}

		if err := n.allocateGuid(ctx, tx, node.ID); err != nil {
			return err
		}

		contrib := &model.Contributor{
			ID:      uuid.New().String(),
			UserID:  a.UserID(),
			NodeID:  node.ID,
			Read:    true,
			Write:   true,
			Admin:   true,
			Visible: true,
		}
		if err := tx.CreateContributor(ctx, contrib); err != nil {
			return err
		}

		action := model.ProjectCreated
		if parent != nil {
			order, err := tx.NextOrder(ctx, parent.ID)
			if err != nil {
				return err
			}
			rel := &model.NodeRelation{
				ID:       uuid.New().String(),
				ParentID: parent.ID,
				ChildID:  node.ID,
				Order:    order,
			}
			if err := tx.CreateRelation(ctx, rel); err != nil {
				return err
			}
			action = model.NodeCreated
		}

		rootID, err := tx.RootID(ctx, node.ID)
		if err != nil {
			return err
		}
		node.RootID = &rootID
		if err := tx.UpdateNode(ctx, node); err != nil {
			return err
		}

		return n.addLog(ctx, tx, node, action, a.UserID(), model.Mapping{"title": node.Title})
	})
	if err != nil {
		return nil, err
	}

	n.search.UpdateNode(ctx, node)
	n.enqueueNodeUpdated(ctx, node.ID, a.UserID(), "title", "category")

	return node, nil
}

// User retrieves a user by id.
func (n *NodeService) User(ctx context.Context, id string) (*model.User, error) {
	user, err := n.store.GetUser(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return user, nil
}

// CreateUser registers a new acting principal.
func (n *NodeService) CreateUser(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.Username == "" {
		return fmt.Errorf("%w: username cannot be blank", ErrValidation)
	}
	return n.store.CreateUser(ctx, user)
}

// GetNode retrieves a node by internal id.
func (n *NodeService) GetNode(ctx context.Context, id string) (*model.Node, error) {
	node, err := n.store.GetNode(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return node, nil
}

// Resolve looks a node up by guid. Soft-deleted nodes do not resolve.
func (n *NodeService) Resolve(ctx context.Context, guid string) (*model.Node, error) {
	node, err := n.ResolveIncludingDeleted(ctx, guid)
	if err != nil {
		return nil, err
	}
	if node.IsDeleted {
		return nil, ErrNotFound
	}
	return node, nil
}

// ResolveIncludingDeleted looks a node up by guid for administrative
// access, resolving soft-deleted targets too.
func (n *NodeService) ResolveIncludingDeleted(ctx context.Context, guid string) (*model.Node, error) {
	g, err := n.store.GetGuid(ctx, guid)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	node, err := n.store.GetNode(ctx, g.NodeID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return node, nil
}

// Guid returns the node's short identifier.
func (n *NodeService) Guid(ctx context.Context, nodeID string) (string, error) {
	g, err := n.store.GuidForNode(ctx, nodeID)
	if err != nil {
		return "", mapStoreErr(err)
	}
	return g.ID, nil
}

// SetTitle validates and applies a new title, logging the change. Setting
// the current title again is a no-op.
func (n *NodeService) SetTitle(ctx context.Context, node *model.Node, title string, a *auth.Auth) error {
	ok, err := n.CanEdit(ctx, node, a, nil)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAuthorized
	}

	title, err = validateTitle(title)
	if err != nil {
		return err
	}
	if title == node.Title {
		return nil
	}

	return n.store.Transaction(ctx, func(tx store.Store) error {
		old := node.Title
		node.Title = title
		if err := tx.UpdateNode(ctx, node); err != nil {
			return err
		}
		if err := n.addLog(ctx, tx, node, model.EditedTitle, a.UserID(), model.Mapping{
			"title_original": old,
			"title_new":      title,
		}); err != nil {
			return err
		}
		n.enqueueNodeUpdated(ctx, node.ID, a.UserID(), "title")
		return nil
	})
}

// SetDescription applies a new description, logging the change.
func (n *NodeService) SetDescription(ctx context.Context, node *model.Node, description string, a *auth.Auth) error {
	ok, err := n.CanEdit(ctx, node, a, nil)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAuthorized
	}
	if description == node.Description {
		return nil
	}

	return n.store.Transaction(ctx, func(tx store.Store) error {
		old := node.Description
		node.Description = description
		if err := tx.UpdateNode(ctx, node); err != nil {
			return err
		}
		if err := n.addLog(ctx, tx, node, model.EditedDescription, a.UserID(), model.Mapping{
			"description_original": old,
			"description_new":      description,
		}); err != nil {
			return err
		}
		n.enqueueNodeUpdated(ctx, node.ID, a.UserID(), "description")
		return nil
	})
}

// updatable is the field whitelist accepted by Update.
var updatable = map[string]bool{
	"title":       true,
	"description": true,
	"category":    true,
	"is_public":   true,
}

// Update applies a batch of whitelisted field changes. Registrations accept
// only is_public. Privacy changes route through the privacy state machine;
// the rest are applied together under a single updated_fields log.
func (n *NodeService) Update(ctx context.Context, node *model.Node, fields map[string]string, a *auth.Auth) error {
	for key := range fields {
		if !updatable[key] {
			return fmt.Errorf("%w: field %q is not updatable", ErrValidation, key)
		}
		if node.IsRegistration() && key != "is_public" {
			return fmt.Errorf("%w: registrations only accept is_public", ErrValidation)
		}
	}

	// the caller's map stays untouched
	pending := make(map[string]string, len(fields))
	for key, value := range fields {
		pending[key] = value
	}

	if v, ok := pending["is_public"]; ok {
		privacy := model.Private
		if v == "true" {
			privacy = model.Public
		}
		if err := n.SetPrivacy(ctx, node, privacy, a); err != nil {
			return err
		}
		delete(pending, "is_public")
	}
	if len(pending) == 0 {
		return nil
	}

	ok, err := n.CanEdit(ctx, node, a, nil)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAuthorized
	}

	return n.store.Transaction(ctx, func(tx store.Store) error {
		params := model.Mapping{}
		saved := make([]string, 0, len(pending))
		for key, value := range pending {
			switch key {
			case "title":
				title, err := validateTitle(value)
				if err != nil {
					return err
				}
				params["title_original"] = node.Title
				params["title_new"] = title
				node.Title = title
			case "description":
				params["description_original"] = node.Description
				params["description_new"] = value
				node.Description = value
			case "category":
				if _, known := model.CategoryMap[value]; !known {
					return fmt.Errorf("%w: unknown category %q", ErrValidation, value)
				}
				params["category_original"] = node.Category
				params["category_new"] = value
				node.Category = value
			}
			saved = append(saved, key)
		}
		if err := tx.UpdateNode(ctx, node); err != nil {
			return err
		}
		if err := n.addLog(ctx, tx, node, model.UpdatedFields, a.UserID(), params); err != nil {
			return err
		}
		n.enqueueNodeUpdated(ctx, node.ID, a.UserID(), saved...)
		return nil
	})
}

// UpdateCustomCitation sets, edits or clears the custom citation. Admin
// only; the log action reflects which of the three happened.
func (n *NodeService) UpdateCustomCitation(ctx context.Context, node *model.Node, citation string, a *auth.Auth) error {
	ok, err := n.hasPermission(ctx, n.store, node.ID, a.UserID(), permissions.Admin)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAuthorized
	}
	if citation == node.CustomCitation {
		return nil
	}

	action := model.CustomCitationEdited
	switch {
	case node.CustomCitation == "":
		action = model.CustomCitationAdded
	case citation == "":
		action = model.CustomCitationRemoved
	}

	return n.store.Transaction(ctx, func(tx store.Store) error {
		node.CustomCitation = citation
		if err := tx.UpdateNode(ctx, node); err != nil {
			return err
		}
		return n.addLog(ctx, tx, node, action, a.UserID(), nil)
	})
}

// SetAccessRequestsEnabled toggles whether non-contributors may request
// access. Admin only.
func (n *NodeService) SetAccessRequestsEnabled(ctx context.Context, node *model.Node, enabled bool, a *auth.Auth) error {
	ok, err := n.hasPermission(ctx, n.store, node.ID, a.UserID(), permissions.Admin)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAuthorized
	}
	if node.AccessRequestsEnabled == enabled {
		return nil
	}

	action := model.AccessRequestsDisabled
	if enabled {
		action = model.AccessRequestsEnabled
	}

	return n.store.Transaction(ctx, func(tx store.Store) error {
		node.AccessRequestsEnabled = enabled
		if err := tx.UpdateNode(ctx, node); err != nil {
			return err
		}
		return n.addLog(ctx, tx, node, action, a.UserID(), nil)
	})
}

// SetNodeLicense attaches a fresh license record to the node.
func (n *NodeService) SetNodeLicense(ctx context.Context, node *model.Node, license *model.NodeLicense, a *auth.Auth) error {
	ok, err := n.CanEdit(ctx, node, a, nil)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAuthorized
	}

	err = n.store.Transaction(ctx, func(tx store.Store) error {
		if license.ID == "" {
			license.ID = uuid.New().String()
		}
		if err := tx.CreateLicense(ctx, license); err != nil {
			return err
		}
		node.NodeLicenseID = &license.ID
		node.NodeLicense = license
		if err := tx.UpdateNode(ctx, node); err != nil {
			return err
		}
		return n.addLog(ctx, tx, node, model.ChangedLicense, a.UserID(), model.Mapping{
			"license_id": license.LicenseID,
		})
	})
	if err != nil {
		return err
	}

	n.enqueueNodeUpdated(ctx, node.ID, a.UserID(), "node_license")
	return nil
}

// License resolves the node's effective license: its own if set, else the
// nearest ancestor's.
func (n *NodeService) License(ctx context.Context, node *model.Node) (*model.NodeLicense, error) {
	return n.store.ResolveLicense(ctx, node.ID)
}

// RemoveNode soft-deletes the node. It is rejected while any primary child
// is still active; callers delete bottom up. Deleted is terminal.
func (n *NodeService) RemoveNode(ctx context.Context, node *model.Node, a *auth.Auth) error {
	ok, err := n.CanEdit(ctx, node, a, nil)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAuthorized
	}
	if node.IsDeleted {
		return ErrInvalidState
	}

	err = n.store.Transaction(ctx, func(tx store.Store) error {
		rels, err := tx.RelationsByParent(ctx, node.ID)
		if err != nil {
			return err
		}
		for _, rel := range rels {
			if rel.IsNodeLink {
				continue
			}
			child, err := tx.GetNode(ctx, rel.ChildID)
			if err != nil {
				return err
			}
			if !child.IsDeleted {
				return fmt.Errorf("%w: node has active children", ErrInvalidState)
			}
		}

		now := time.Now()
		node.IsDeleted = true
		node.DeletedDate = &now
		if err := tx.UpdateNode(ctx, node); err != nil {
			return err
		}

		action := model.NodeRemoved
		if parent, err := tx.PrimaryParentRelation(ctx, node.ID); err != nil {
			return err
		} else if parent == nil {
			action = model.ProjectDeleted
		}
		return n.addLog(ctx, tx, node, action, a.UserID(), nil)
	})
	if err != nil {
		return err
	}

	n.addons.AfterDelete(ctx, node, a.UserID())
	n.search.DeleteNode(ctx, node)
	n.enqueueNodeUpdated(ctx, node.ID, a.UserID(), "is_deleted")
	return nil
}

// StorageUsage returns the cached storage usage total for the node. On a
// miss a refresh task is enqueued and ok is false.
func (n *NodeService) StorageUsage(ctx context.Context, nodeID string) (int64, bool, error) {
	value, err := n.cache.Get(ctx, cache.StorageUsageKey(nodeID))
	if err == cache.ErrMiss {
		if qerr := n.queue.Enqueue(ctx, &queue.Task{Name: queue.TaskStorageUsageRefresh, NodeID: nodeID}); qerr != nil {
			logrus.Errorf("failed to enqueue storage usage refresh for node %s: %v", nodeID, qerr)
		}
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	usage, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false, err
	}
	return usage, true, nil
}

const storageUsageTTL = 24 * time.Hour

// RecordStorageUsage caches the byte total a storage backend reported for
// the node.
func (n *NodeService) RecordStorageUsage(ctx context.Context, nodeID string, total int64) error {
	if total < 0 {
		return fmt.Errorf("%w: usage cannot be negative", ErrValidation)
	}
	return n.cache.Set(ctx, cache.StorageUsageKey(nodeID), strconv.FormatInt(total, 10), storageUsageTTL)
}

// Logs pages through the node's audit trail in insertion order.
func (n *NodeService) Logs(ctx context.Context, node *model.Node, offset, limit int) ([]*model.NodeLog, error) {
	return n.store.ListLogs(ctx, node.ID, offset, limit)
}

// Contributors lists the node's contributors in presentation order.
func (n *NodeService) Contributors(ctx context.Context, node *model.Node) ([]*model.Contributor, error) {
	return n.store.ListContributors(ctx, node.ID)
}

// addLog appends an immutable audit record against the node.
func (n *NodeService) addLog(ctx context.Context, tx store.Store, node *model.Node, action, userID string, params model.Mapping) error {
	log := &model.NodeLog{
		ID:     uuid.New().String(),
		Action: action,
		Date:   time.Now(),
		Params: params,
		NodeID: node.ID,
	}
	if userID != "" {
		log.UserID = &userID
	}
	return tx.CreateLog(ctx, log)
}

// allocateGuid assigns a fresh short id, retrying on collision.
func (n *NodeService) allocateGuid(ctx context.Context, tx store.Store, nodeID string) error {
	var lastErr error
	for i := 0; i < guidAllocateRetries; i++ {
		id, err := model.GenerateGuid()
		if err != nil {
			return err
		}
		if err := tx.CreateGuid(ctx, &model.Guid{ID: id, NodeID: nodeID}); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("guid allocation failed: %w", lastErr)
}

// enqueueNodeUpdated dispatches the fire-and-forget node-updated task. A
// task already pending for the same node has its saved-field set unioned
// instead of a duplicate being enqueued.
func (n *NodeService) enqueueNodeUpdated(ctx context.Context, nodeID, userID string, savedFields ...string) {
	pending := n.queue.FindPending(func(t *queue.Task) bool {
		return t.Name == queue.TaskNodeUpdated && t.NodeID == nodeID
	})
	if pending != nil {
		pending.SavedFields.Append(savedFields...)
		return
	}

	task := &queue.Task{
		Name:        queue.TaskNodeUpdated,
		NodeID:      nodeID,
		UserID:      userID,
		SavedFields: mapsetOf(savedFields...),
	}
	if err := n.queue.Enqueue(ctx, task); err != nil {
		logrus.Errorf("failed to enqueue node updated for node %s: %v", nodeID, err)
	}
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("%w: title cannot be blank", ErrValidation)
	}
	if len([]rune(title)) > model.MaxTitleLength {
		return "", fmt.Errorf("%w: title cannot exceed %d characters", ErrValidation, model.MaxTitleLength)
	}
	return title, nil
}

func truncateTitle(title string) string {
	runes := []rune(title)
	if len(runes) > model.MaxTitleLength {
		return string(runes[:model.MaxTitleLength])
	}
	return title
}

func mapsetOf(values ...string) mapset.Set[string] {
	return mapset.NewSet(values...)
}

func mapStoreErr(err error) error {
	if err == store.ErrNotFound {
		return ErrNotFound
	}
	return err
}
