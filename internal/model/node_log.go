package model

import "time"

// NodeLog actions.
const (
	ProjectCreated = "project_created"
	NodeCreated    = "node_created"
	NodeRemoved    = "node_removed"
	ProjectDeleted = "project_deleted"

	MadePublic  = "made_public"
	MadePrivate = "made_private"

	TagAdded   = "tag_added"
	TagRemoved = "tag_removed"

	EditedTitle       = "edit_title"
	EditedDescription = "edit_description"
	UpdatedFields     = "updated_fields"

	ContributorAdded             = "contributor_added"
	ContributorRemoved           = "contributor_removed"
	PermissionsUpdated           = "permissions_updated"
	MadeContributorVisible       = "made_contributor_visible"
	MadeContributorInvisible     = "made_contributor_invisible"
	AffiliatedInstitutionAdded   = "affiliated_institution_added"
	AffiliatedInstitutionRemoved = "affiliated_institution_removed"

	ChangedLicense = "license_changed"

	NodeLinkCreated = "pointer_created"
	NodeLinkRemoved = "pointer_removed"

	NodeForked            = "node_forked"
	CreatedFrom           = "created_from"
	RegistrationInitiated = "registration_initiated"

	CustomCitationAdded   = "custom_citation_added"
	CustomCitationEdited  = "custom_citation_edited"
	CustomCitationRemoved = "custom_citation_removed"

	AccessRequestsEnabled  = "node_access_requests_enabled"
	AccessRequestsDisabled = "node_access_requests_disabled"

	EmbargoTerminationRequested = "embargo_termination_requested"

	ViewOnlyLinkAdded   = "view_only_link_added"
	ViewOnlyLinkRemoved = "view_only_link_removed"
)

// NodeLog is an immutable audit record. Logs are append only; they are never
// updated or deleted, only bulk-cloned (with new ids) onto forks and
// registrations.
type NodeLog struct {
	ID     string    `gorm:"primaryKey;uuid;not null"`
	Action string    `gorm:"not null;index"`
	Date   time.Time `gorm:"not null;index"`

	// Params is the JSON parameter payload of the action.
	Params Mapping `gorm:"type:text"`

	NodeID string  `gorm:"uuid;not null;index"`
	UserID *string `gorm:"uuid"`

	// OriginalNodeID preserves clone provenance: for cloned logs it points
	// at the node the log was originally written against.
	OriginalNodeID *string `gorm:"uuid"`

	ShouldHide bool

	CreatedAt time.Time
}

func (NodeLog) TableName() string {
	return "node_logs"
}
