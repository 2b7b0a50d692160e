package model

import (
	"time"
)

// Node type discriminator values. A node is constructed as the correct
// variant from the start; rows never change type after creation.
const (
	TypeNode         = "osf.node"
	TypeRegistration = "osf.registration"
	TypeCollection   = "osf.collection"
	TypeQuickFiles   = "osf.quickfilesnode"
)

// Privacy values accepted by SetPrivacy.
const (
	Private = "private"
	Public  = "public"
)

// Spam states, in order of increasing certainty.
const (
	SpamUnknown = 0
	SpamFlagged = 1
	SpamMarked  = 2
	SpamHam     = 4
)

// Registration approval / embargo states.
const (
	RegistrationApproved = "approved"
	RegistrationPending  = "pending"

	EmbargoNone     = "none"
	EmbargoPending  = "pending"
	EmbargoActive   = "embargoed"
	EmbargoComplete = "completed"
)

// CategoryMap maps the category enum to its display string.
var CategoryMap = map[string]string{
	"analysis":             "Analysis",
	"communication":        "Communication",
	"data":                 "Data",
	"hypothesis":           "Hypothesis",
	"instrumentation":      "Instrumentation",
	"methods and measures": "Methods and Measures",
	"procedure":            "Procedure",
	"project":              "Project",
	"software":             "Software",
	"other":                "Other",
	"":                     "Uncategorized",
}

// MaxTitleLength is the hard cap on node titles. Clone operations truncate
// to this length instead of rejecting.
const MaxTitleLength = 512

// Node is a project or component. All variants (node, registration,
// collection, quickfiles) share this table and are differentiated by Type.
type Node struct {
	ID          string `gorm:"primaryKey;uuid;not null"`
	Type        string `gorm:"not null;default:'osf.node';index:idx_nodes_public_deleted_type"`
	Title       string `gorm:"not null"`
	Description string
	Category    string

	IsPublic  bool `gorm:"index:idx_nodes_public_deleted_type"`
	IsDeleted bool `gorm:"index:idx_nodes_public_deleted_type"`
	Suspended bool

	DeletedDate *time.Time

	CreatorID string `gorm:"uuid;not null;index"`

	// Root is a materialized pointer to the topmost ancestor, recomputed
	// whenever the primary parent edge set changes.
	RootID *string `gorm:"uuid;index"`

	IsFork       bool    `gorm:"index"`
	ForkedFromID *string `gorm:"uuid"`
	ForkedDate   *time.Time

	TemplateNodeID *string `gorm:"uuid"`

	RegisteredFromID  *string `gorm:"uuid"`
	RegisteredUserID  *string `gorm:"uuid"`
	RegisteredDate    *time.Time
	RegisteredMeta    []byte // compressed JSON keyed by schema id
	RegisteredSchema  string
	RegistrationState string
	EmbargoState      string

	NodeLicenseID *string `gorm:"uuid"`
	NodeLicense   *NodeLicense

	CommentLevel          string `gorm:"default:'public'"`
	CustomCitation        string
	AccessRequestsEnabled bool `gorm:"default:true"`
	SpamStatus            int

	// AnalyticsReadKey is the scoped read-only analytics key, generated
	// when the node is made public and cleared when it goes private.
	AnalyticsReadKey string

	// WikiPrivateUUIDs maps wiki page name to its private collaboration
	// namespace id. Cleared on every clone.
	WikiPrivateUUIDs Mapping `gorm:"type:text"`

	// ChildNodeSubscriptions maps user id to the child node ids the user
	// subscribes to.
	ChildNodeSubscriptions Mapping `gorm:"type:text"`

	Tags         []*Tag         `gorm:"many2many:node_tags"`
	Institutions []*Institution `gorm:"many2many:node_institutions"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Node) TableName() string {
	return "nodes"
}

func (n *Node) IsRegistration() bool {
	return n.Type == TypeRegistration
}

func (n *Node) IsCollection() bool {
	return n.Type == TypeCollection
}

func (n *Node) IsQuickFiles() bool {
	return n.Type == TypeQuickFiles
}

// IsOriginal reports whether the node is neither a registration nor a fork.
func (n *Node) IsOriginal() bool {
	return !n.IsRegistration() && !n.IsFork
}

func (n *Node) IsPendingRegistration() bool {
	return n.IsRegistration() && n.RegistrationState == RegistrationPending
}

func (n *Node) IsPendingEmbargo() bool {
	return n.IsRegistration() && n.EmbargoState == EmbargoPending
}

func (n *Node) IsEmbargoed() bool {
	return n.IsRegistration() && n.EmbargoState == EmbargoActive
}

// IsSpam reports confirmed spam.
func (n *Node) IsSpam() bool {
	return n.SpamStatus == SpamMarked
}

// IsSpammy reports suspected or confirmed spam.
func (n *Node) IsSpammy() bool {
	return n.SpamStatus == SpamFlagged || n.SpamStatus == SpamMarked
}

// CategoryDisplay is the human readable representation of the category.
func (n *Node) CategoryDisplay() string {
	return CategoryMap[n.Category]
}
