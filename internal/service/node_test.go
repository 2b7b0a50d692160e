package service

import (
	"context"
	"strings"
	"testing"

	"github.com/pattisdr/osf.io/internal/auth"
	"github.com/pattisdr/osf.io/internal/model"
	"github.com/pattisdr/osf.io/internal/queue"
	"github.com/stretchr/testify/assert"
)

func TestNodeService_CreateNode(t *testing.T) {
	svc, _ := newTestService()
	user := newTestUser(t, svc)
	a := auth.FromUser(user)

	node := newTestNode(t, svc, a, "My Project", "")

	assert.False(t, node.IsPublic)
	assert.Equal(t, model.TypeNode, node.Type)
	assert.Equal(t, user.ID, node.CreatorID)
	assert.NotNil(t, node.RootID)
	assert.Equal(t, node.ID, *node.RootID)

	// creator becomes the sole admin contributor, visible
	contribs, err := svc.store.ListContributors(context.TODO(), node.ID)
	assert.NoError(t, err)
	assert.Len(t, contribs, 1)
	assert.Equal(t, user.ID, contribs[0].UserID)
	assert.True(t, contribs[0].Admin)
	assert.True(t, contribs[0].Read)
	assert.True(t, contribs[0].Write)
	assert.True(t, contribs[0].Visible)

	guid, err := svc.Guid(context.TODO(), node.ID)
	assert.NoError(t, err)
	assert.Len(t, guid, 5)

	resolved, err := svc.Resolve(context.TODO(), guid)
	assert.NoError(t, err)
	assert.Equal(t, node.ID, resolved.ID)

	log := lastLog(t, svc, node.ID)
	assert.Equal(t, model.ProjectCreated, log.Action)
}

func TestNodeService_CreateNode_Validation(t *testing.T) {
	svc, _ := newTestService()
	user := newTestUser(t, svc)
	a := auth.FromUser(user)

	tests := []struct {
		name     string
		title    string
		category string
	}{
		{name: "blank title", title: "   ", category: "project"},
		{name: "overlong title", title: strings.Repeat("x", model.MaxTitleLength+1), category: "project"},
		{name: "unknown category", title: "ok", category: "nonsense"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateNode(context.TODO(), &CreateNodeInput{
				Title:    tt.title,
				Category: tt.category,
			}, a)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestNodeService_CreateChild(t *testing.T) {
	svc, _ := newTestService()
	user := newTestUser(t, svc)
	a := auth.FromUser(user)

	parent := newTestNode(t, svc, a, "parent", "")
	child := newTestNode(t, svc, a, "child", parent.ID)

	assert.Equal(t, parent.ID, *child.RootID)

	got, err := svc.GetParent(context.TODO(), child)
	assert.NoError(t, err)
	assert.Equal(t, parent.ID, got.ID)

	log := lastLog(t, svc, child.ID)
	assert.Equal(t, model.NodeCreated, log.Action)

	// a stranger cannot attach children
	stranger := newTestUser(t, svc)
	_, err = svc.CreateNode(context.TODO(), &CreateNodeInput{
		Title:    "intruder",
		Category: "project",
		ParentID: parent.ID,
	}, auth.FromUser(stranger))
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestNodeService_SetTitle(t *testing.T) {
	svc, _ := newTestService()
	user := newTestUser(t, svc)
	a := auth.FromUser(user)
	node := newTestNode(t, svc, a, "before", "")

	err := svc.SetTitle(context.TODO(), node, "after", a)
	assert.NoError(t, err)
	assert.Equal(t, "after", node.Title)

	log := lastLog(t, svc, node.ID)
	assert.Equal(t, model.EditedTitle, log.Action)
	assert.Equal(t, "before", log.Params["title_original"])
	assert.Equal(t, "after", log.Params["title_new"])

	err = svc.SetTitle(context.TODO(), node, "", a)
	assert.ErrorIs(t, err, ErrValidation)

	reader := newTestUser(t, svc)
	err = svc.SetTitle(context.TODO(), node, "nope", auth.FromUser(reader))
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestNodeService_Update(t *testing.T) {
	svc, _ := newTestService()
	user := newTestUser(t, svc)
	a := auth.FromUser(user)
	node := newTestNode(t, svc, a, "update me", "")

	err := svc.Update(context.TODO(), node, map[string]string{
		"title":       "updated",
		"description": "now described",
		"category":    "data",
	}, a)
	assert.NoError(t, err)
	assert.Equal(t, "updated", node.Title)
	assert.Equal(t, "now described", node.Description)
	assert.Equal(t, "data", node.Category)

	log := lastLog(t, svc, node.ID)
	assert.Equal(t, model.UpdatedFields, log.Action)
	assert.Equal(t, "update me", log.Params["title_original"])

	err = svc.Update(context.TODO(), node, map[string]string{"creator_id": "x"}, a)
	assert.ErrorIs(t, err, ErrValidation)

	// the caller's field map comes back unchanged
	fields := map[string]string{"is_public": "true", "title": "published"}
	err = svc.Update(context.TODO(), node, fields, a)
	assert.NoError(t, err)
	assert.Equal(t, map[string]string{"is_public": "true", "title": "published"}, fields)
}

func TestNodeService_Update_RegistrationOnlyAcceptsPrivacy(t *testing.T) {
	svc, _ := newTestService()
	user := newTestUser(t, svc)
	a := auth.FromUser(user)
	node := newTestNode(t, svc, a, "to register", "")

	registration, _, err := svc.RegisterNode(context.TODO(), node, "schema-1", []byte(`{"q1":"a"}`), a, nil)
	assert.NoError(t, err)

	err = svc.Update(context.TODO(), registration, map[string]string{"title": "x"}, a)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestNodeService_RemoveNode(t *testing.T) {
	svc, _ := newTestService()
	user := newTestUser(t, svc)
	a := auth.FromUser(user)

	parent := newTestNode(t, svc, a, "parent", "")
	child := newTestNode(t, svc, a, "child", parent.ID)

	// active child blocks removal and leaves the parent untouched
	err := svc.RemoveNode(context.TODO(), parent, a)
	assert.ErrorIs(t, err, ErrInvalidState)
	got, err := svc.GetNode(context.TODO(), parent.ID)
	assert.NoError(t, err)
	assert.False(t, got.IsDeleted)

	err = svc.RemoveNode(context.TODO(), child, a)
	assert.NoError(t, err)
	assert.True(t, child.IsDeleted)
	assert.NotNil(t, child.DeletedDate)

	err = svc.RemoveNode(context.TODO(), parent, a)
	assert.NoError(t, err)

	// deleted is terminal
	err = svc.RemoveNode(context.TODO(), parent, a)
	assert.ErrorIs(t, err, ErrInvalidState)

	// deleted nodes no longer resolve by guid
	guid, err := svc.Guid(context.TODO(), parent.ID)
	assert.NoError(t, err)
	_, err = svc.Resolve(context.TODO(), guid)
	assert.ErrorIs(t, err, ErrNotFound)

	admin, err := svc.ResolveIncludingDeleted(context.TODO(), guid)
	assert.NoError(t, err)
	assert.True(t, admin.IsDeleted)
}

func TestNodeService_EnqueueDedup(t *testing.T) {
	svc, tasks := newTestService()
	user := newTestUser(t, svc)
	a := auth.FromUser(user)
	node := newTestNode(t, svc, a, "dedup", "")

	before := tasks.Len()
	err := svc.SetTitle(context.TODO(), node, "dedup 2", a)
	assert.NoError(t, err)
	err = svc.SetDescription(context.TODO(), node, "described", a)
	assert.NoError(t, err)

	// second update unions saved fields instead of enqueuing again
	assert.Equal(t, before, tasks.Len())
	pending := tasks.FindPending(func(task *queue.Task) bool {
		return task.Name == queue.TaskNodeUpdated && task.NodeID == node.ID
	})
	assert.NotNil(t, pending)
	assert.True(t, pending.SavedFields.Contains("title"))
	assert.True(t, pending.SavedFields.Contains("description"))
}

func TestNodeService_Tags(t *testing.T) {
	svc, _ := newTestService()
	user := newTestUser(t, svc)
	a := auth.FromUser(user)
	node := newTestNode(t, svc, a, "tagged", "")

	err := svc.AddTag(context.TODO(), node, "neuroscience", a)
	assert.NoError(t, err)
	log := lastLog(t, svc, node.ID)
	assert.Equal(t, model.TagAdded, log.Action)
	assert.Equal(t, "neuroscience", log.Params["tag"])

	// system tags stay out of the user listing
	err = svc.AddSystemTag(context.TODO(), node, "osf4m")
	assert.NoError(t, err)
	tags, err := svc.Tags(context.TODO(), node)
	assert.NoError(t, err)
	assert.Len(t, tags, 1)
	assert.Equal(t, "neuroscience", tags[0].Name)

	err = svc.RemoveTag(context.TODO(), node, "absent", a)
	assert.ErrorIs(t, err, ErrNotFound)

	err = svc.RemoveTag(context.TODO(), node, "neuroscience", a)
	assert.NoError(t, err)
	tags, err = svc.Tags(context.TODO(), node)
	assert.NoError(t, err)
	assert.Len(t, tags, 0)
}

func TestNodeService_License(t *testing.T) {
	svc, _ := newTestService()
	user := newTestUser(t, svc)
	a := auth.FromUser(user)

	parent := newTestNode(t, svc, a, "licensed parent", "")
	child := newTestNode(t, svc, a, "child", parent.ID)
	grandchild := newTestNode(t, svc, a, "grandchild", child.ID)

	err := svc.SetNodeLicense(context.TODO(), parent, &model.NodeLicense{
		LicenseID: "CC-BY-4.0",
		Name:      "CC-By Attribution 4.0 International",
		Year:      "2026",
	}, a)
	assert.NoError(t, err)
	assert.Equal(t, model.ChangedLicense, lastLog(t, svc, parent.ID).Action)

	// nearest ancestor wins
	err = svc.SetNodeLicense(context.TODO(), child, &model.NodeLicense{
		LicenseID: "MIT",
		Name:      "MIT License",
	}, a)
	assert.NoError(t, err)

	resolved, err := svc.License(context.TODO(), grandchild)
	assert.NoError(t, err)
	assert.NotNil(t, resolved)
	assert.Equal(t, "MIT", resolved.LicenseID)

	resolved, err = svc.License(context.TODO(), parent)
	assert.NoError(t, err)
	assert.Equal(t, "CC-BY-4.0", resolved.LicenseID)
}

func TestNodeService_CustomCitation(t *testing.T) {
	svc, _ := newTestService()
	user := newTestUser(t, svc)
	a := auth.FromUser(user)
	node := newTestNode(t, svc, a, "cited", "")

	err := svc.UpdateCustomCitation(context.TODO(), node, "Doe (2026)", a)
	assert.NoError(t, err)
	assert.Equal(t, model.CustomCitationAdded, lastLog(t, svc, node.ID).Action)

	err = svc.UpdateCustomCitation(context.TODO(), node, "Doe et al. (2026)", a)
	assert.NoError(t, err)
	assert.Equal(t, model.CustomCitationEdited, lastLog(t, svc, node.ID).Action)

	err = svc.UpdateCustomCitation(context.TODO(), node, "", a)
	assert.NoError(t, err)
	assert.Equal(t, model.CustomCitationRemoved, lastLog(t, svc, node.ID).Action)
}

func TestNodeService_Institutions(t *testing.T) {
	svc, _ := newTestService()
	user := newTestUser(t, svc)
	a := auth.FromUser(user)
	node := newTestNode(t, svc, a, "affiliated", "")

	inst := &model.Institution{ID: "11111111-1111-1111-1111-111111111111", Name: "Center for Open Science"}
	err := svc.store.CreateInstitution(context.TODO(), inst)
	assert.NoError(t, err)

	// user must be affiliated first
	err = svc.AddAffiliatedInstitution(context.TODO(), node, inst, a)
	assert.ErrorIs(t, err, ErrValidation)

	err = svc.store.AffiliateUser(context.TODO(), user.ID, inst.ID)
	assert.NoError(t, err)
	err = svc.AddAffiliatedInstitution(context.TODO(), node, inst, a)
	assert.NoError(t, err)
	assert.Equal(t, model.AffiliatedInstitutionAdded, lastLog(t, svc, node.ID).Action)

	institutions, err := svc.AffiliatedInstitutions(context.TODO(), node)
	assert.NoError(t, err)
	assert.Len(t, institutions, 1)

	err = svc.RemoveAffiliatedInstitution(context.TODO(), node, inst, a)
	assert.NoError(t, err)
	assert.Equal(t, model.AffiliatedInstitutionRemoved, lastLog(t, svc, node.ID).Action)
}

func TestNodeService_StorageUsage(t *testing.T) {
	svc, tasks := newTestService()
	user := newTestUser(t, svc)
	a := auth.FromUser(user)
	node := newTestNode(t, svc, a, "big project", "")

	// a cold cache enqueues a refresh and reports no value
	usage, ok, err := svc.StorageUsage(context.TODO(), node.ID)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, usage)
	pending := tasks.FindPending(func(task *queue.Task) bool {
		return task.Name == queue.TaskStorageUsageRefresh && task.NodeID == node.ID
	})
	assert.NotNil(t, pending)

	err = svc.RecordStorageUsage(context.TODO(), node.ID, 4096)
	assert.NoError(t, err)
	usage, ok, err = svc.StorageUsage(context.TODO(), node.ID)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(4096), usage)

	err = svc.RecordStorageUsage(context.TODO(), node.ID, -1)
	assert.ErrorIs(t, err, ErrValidation)
}
