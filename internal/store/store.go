package store

import (
	"context"
	"errors"

	"github.com/pattisdr/osf.io/internal/model"
)

var (
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("record not found")
)

type Store interface {
	NodeStore
	RelationStore
	ContributorStore
	LogStore
	GuidStore
	UserStore
	TagStore
	InstitutionStore
	PrivateLinkStore
	LicenseStore
	Transaction(ctx context.Context, f func(tx Store) error) error
	Migrate() error
}

type NodeStore interface {
	// CreateNode creates a new node.
	CreateNode(ctx context.Context, node *model.Node) error
	// GetNode retrieves a node by internal id.
	GetNode(ctx context.Context, id string) (*model.Node, error)
	// UpdateNode persists changed node fields.
	UpdateNode(ctx context.Context, node *model.Node) error
	// ListNodesFromIDs retrieves nodes by internal ids.
	ListNodesFromIDs(ctx context.Context, ids []string) ([]*model.Node, error)
	// DescendantIDs returns all descendants of the node reachable through
	// primary (non-link) edges, optionally restricted to non-deleted nodes.
	DescendantIDs(ctx context.Context, nodeID string, activeOnly bool) ([]string, error)
	// AncestorIDs returns the node's ancestors through primary edges,
	// ordered nearest first.
	AncestorIDs(ctx context.Context, nodeID string) ([]string, error)
	// RootID resolves the topmost ancestor through primary edges; a node
	// with no primary parent is its own root.
	RootID(ctx context.Context, nodeID string) (string, error)
	// ResolveLicense returns the license of the nearest ancestor (including
	// the node itself) carrying one, or nil.
	ResolveLicense(ctx context.Context, nodeID string) (*model.NodeLicense, error)
	// HasImplicitRead reports whether the user holds admin on the node or
	// on any ancestor reachable through primary edges.
	HasImplicitRead(ctx context.Context, userID, nodeID string) (bool, error)
}

type RelationStore interface {
	CreateRelation(ctx context.Context, rel *model.NodeRelation) error
	// GetRelation fetches the edge between a parent and child of the given
	// linkness, if present.
	GetRelation(ctx context.Context, parentID, childID string, isNodeLink bool) (*model.NodeRelation, error)
	// RelationsByParent lists the parent's outgoing edges in presentation
	// order.
	RelationsByParent(ctx context.Context, parentID string) ([]*model.NodeRelation, error)
	// PrimaryParentRelation returns the child's unique non-link edge, or
	// nil when the node is top level.
	PrimaryParentRelation(ctx context.Context, childID string) (*model.NodeRelation, error)
	DeleteRelation(ctx context.Context, id string) error
	// NextOrder returns the next dense ordering key for the parent.
	NextOrder(ctx context.Context, parentID string) (int, error)
	// ReorderChildren rewrites the ordering keys of the parent's edges to
	// match the given child id sequence.
	ReorderChildren(ctx context.Context, parentID string, childIDs []string) error
}

type ContributorStore interface {
	CreateContributor(ctx context.Context, contrib *model.Contributor) error
	// GetContributor fetches the (user, node) record, locking it for update
	// inside a transaction where the dialect supports row locks.
	GetContributor(ctx context.Context, nodeID, userID string) (*model.Contributor, error)
	UpdateContributor(ctx context.Context, contrib *model.Contributor) error
	DeleteContributor(ctx context.Context, nodeID, userID string) error
	ListContributors(ctx context.Context, nodeID string) ([]*model.Contributor, error)
	BulkCreateContributors(ctx context.Context, contribs []*model.Contributor) error
	CountAdmins(ctx context.Context, nodeID string) (int64, error)
	CountVisible(ctx context.Context, nodeID string) (int64, error)
}

type LogStore interface {
	CreateLog(ctx context.Context, log *model.NodeLog) error
	// ListLogs pages through a node's logs in insertion order.
	ListLogs(ctx context.Context, nodeID string, offset, limit int) ([]*model.NodeLog, error)
	CountLogs(ctx context.Context, nodeID string) (int64, error)
	BulkCreateLogs(ctx context.Context, logs []*model.NodeLog) error
}

type GuidStore interface {
	CreateGuid(ctx context.Context, guid *model.Guid) error
	GetGuid(ctx context.Context, id string) (*model.Guid, error)
	GuidForNode(ctx context.Context, nodeID string) (*model.Guid, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	// UserAffiliated reports whether the user is affiliated with the
	// institution.
	UserAffiliated(ctx context.Context, userID, institutionID string) (bool, error)
}

type TagStore interface {
	// GetOrCreateTag finds or creates the (name, system) tag.
	GetOrCreateTag(ctx context.Context, name string, system bool) (*model.Tag, error)
	AttachTag(ctx context.Context, nodeID, tagID string) error
	DetachTag(ctx context.Context, nodeID, tagID string) error
	// ListTags returns the node's tags; system selects the partition.
	ListTags(ctx context.Context, nodeID string, system bool) ([]*model.Tag, error)
	NodeHasTag(ctx context.Context, nodeID, name string, system bool) (bool, error)
}

type InstitutionStore interface {
	CreateInstitution(ctx context.Context, inst *model.Institution) error
	AttachInstitution(ctx context.Context, nodeID, institutionID string) error
	DetachInstitution(ctx context.Context, nodeID, institutionID string) error
	ListNodeInstitutions(ctx context.Context, nodeID string) ([]*model.Institution, error)
	NodeAffiliated(ctx context.Context, nodeID, institutionID string) (bool, error)
	// AffiliateUser links a user to an institution.
	AffiliateUser(ctx context.Context, userID, institutionID string) error
}

type PrivateLinkStore interface {
	// CreatePrivateLink creates a view-only link scoped to the given nodes.
	CreatePrivateLink(ctx context.Context, link *model.PrivateLink, nodeIDs []string) error
	GetPrivateLinkByKey(ctx context.Context, key string) (*model.PrivateLink, error)
	// ActiveLinkKeys returns the non-deleted link keys covering the node.
	ActiveLinkKeys(ctx context.Context, nodeID string) ([]string, error)
	// LinkCoversNode reports whether the link's node set contains the node.
	LinkCoversNode(ctx context.Context, linkID, nodeID string) (bool, error)
	DeletePrivateLink(ctx context.Context, linkID string) error
}

type LicenseStore interface {
	CreateLicense(ctx context.Context, license *model.NodeLicense) error
	GetLicense(ctx context.Context, id string) (*model.NodeLicense, error)
}
