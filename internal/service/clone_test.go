package service

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/pattisdr/osf.io/internal/auth"
	"github.com/pattisdr/osf.io/internal/model"
	"github.com/pattisdr/osf.io/internal/permissions"
	"github.com/stretchr/testify/assert"
)

func TestNodeService_ForkNode(t *testing.T) {
	svc, _ := newTestService()
	owner := newTestUser(t, svc)
	oa := auth.FromUser(owner)

	node := newTestNode(t, svc, oa, "original work", "")
	err := svc.SetPrivacy(context.TODO(), node, model.Public, oa)
	assert.NoError(t, err)
	err = svc.AddTag(context.TODO(), node, "replication", oa)
	assert.NoError(t, err)

	// a plain reader can fork a public node
	forker := newTestUser(t, svc)
	fa := auth.FromUser(forker)
	fork, _, err := svc.ForkNode(context.TODO(), node, fa)
	assert.NoError(t, err)

	assert.False(t, fork.IsPublic)
	assert.True(t, fork.IsFork)
	assert.Equal(t, node.ID, *fork.ForkedFromID)
	assert.NotNil(t, fork.ForkedDate)
	assert.Equal(t, "Fork of original work", fork.Title)
	assert.Equal(t, forker.ID, fork.CreatorID)

	// exactly one contributor: the forker, as admin
	contribs, err := svc.store.ListContributors(context.TODO(), fork.ID)
	assert.NoError(t, err)
	assert.Len(t, contribs, 1)
	assert.Equal(t, forker.ID, contribs[0].UserID)
	assert.True(t, contribs[0].Admin)

	// tags came along, the source log trail was cloned
	tags, err := svc.Tags(context.TODO(), fork)
	assert.NoError(t, err)
	assert.Len(t, tags, 1)
	logs, err := svc.store.ListLogs(context.TODO(), fork.ID, 0, 100)
	assert.NoError(t, err)
	assert.Greater(t, len(logs), 0)
	for _, log := range logs {
		assert.Equal(t, fork.ID, log.NodeID)
		assert.Equal(t, node.ID, *log.OriginalNodeID)
	}

	// the source records the fork
	assert.Equal(t, model.NodeForked, lastLog(t, svc, node.ID).Action)

	isFork, err := svc.IsForkOf(context.TODO(), fork, node.ID)
	assert.NoError(t, err)
	assert.True(t, isFork)
}

func TestNodeService_ForkNode_RequiresRead(t *testing.T) {
	svc, _ := newTestService()
	owner := newTestUser(t, svc)
	oa := auth.FromUser(owner)
	node := newTestNode(t, svc, oa, "private work", "")

	stranger := newTestUser(t, svc)
	_, _, err := svc.ForkNode(context.TODO(), node, auth.FromUser(stranger))
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestNodeService_ForkNode_TitleTruncated(t *testing.T) {
	svc, _ := newTestService()
	owner := newTestUser(t, svc)
	oa := auth.FromUser(owner)

	node := newTestNode(t, svc, oa, strings.Repeat("t", model.MaxTitleLength), "")
	fork, _, err := svc.ForkNode(context.TODO(), node, oa)
	assert.NoError(t, err)
	assert.Len(t, fork.Title, model.MaxTitleLength)
	assert.True(t, strings.HasPrefix(fork.Title, "Fork of "))
}

func TestNodeService_ForkNode_DeepTreeWithLink(t *testing.T) {
	svc, _ := newTestService()
	owner := newTestUser(t, svc)
	oa := auth.FromUser(owner)

	// P -> C1 -> C2 primary chain, plus a node link C1 -> X
	p := newTestNode(t, svc, oa, "P", "")
	c1 := newTestNode(t, svc, oa, "C1", p.ID)
	c2 := newTestNode(t, svc, oa, "C2", c1.ID)
	x := newTestNode(t, svc, oa, "X", "")
	err := svc.store.CreateRelation(context.TODO(), &model.NodeRelation{
		ID:         uuid.New().String(),
		ParentID:   c1.ID,
		ChildID:    x.ID,
		IsNodeLink: true,
	})
	assert.NoError(t, err)

	fork, _, err := svc.ForkNode(context.TODO(), p, oa)
	assert.NoError(t, err)

	descendants, err := svc.GetChildren(context.TODO(), fork, true)
	assert.NoError(t, err)
	assert.Len(t, descendants, 2)

	// every primary node is a fresh clone rooted at the fork
	forkedIDs := map[string]bool{}
	for _, d := range descendants {
		assert.NotEqual(t, c1.ID, d.ID)
		assert.NotEqual(t, c2.ID, d.ID)
		assert.Equal(t, fork.ID, *d.RootID)
		forkedIDs[d.ID] = true
	}
	_ = c2

	// the link edge survives and still points at the original X
	var c1Fork *model.Node
	for _, d := range descendants {
		if d.Title == "C1" {
			c1Fork = d
		}
	}
	assert.NotNil(t, c1Fork)
	rels, err := svc.store.RelationsByParent(context.TODO(), c1Fork.ID)
	assert.NoError(t, err)
	foundLink := false
	for _, rel := range rels {
		if rel.IsNodeLink {
			foundLink = true
			assert.Equal(t, x.ID, rel.ChildID)
		}
	}
	assert.True(t, foundLink)
}

func TestNodeService_ForkNode_OmitsUnreadableBranches(t *testing.T) {
	svc, _ := newTestService()
	owner := newTestUser(t, svc)
	oa := auth.FromUser(owner)

	p := newTestNode(t, svc, oa, "partially shared", "")
	hidden := newTestNode(t, svc, oa, "hidden child", p.ID)

	reader := newTestUser(t, svc)
	_, err := svc.AddContributor(context.TODO(), p, reader, permissions.Read, true, oa)
	assert.NoError(t, err)

	fork, _, err := svc.ForkNode(context.TODO(), p, auth.FromUser(reader))
	assert.NoError(t, err)

	// the unreadable child is omitted, not fatal
	descendants, err := svc.GetChildren(context.TODO(), fork, true)
	assert.NoError(t, err)
	assert.Len(t, descendants, 0)
	_ = hidden
}

func TestNodeService_RegisterNode(t *testing.T) {
	svc, _ := newTestService()
	owner := newTestUser(t, svc)
	oa := auth.FromUser(owner)

	p := newTestNode(t, svc, oa, "study", "")
	c1 := newTestNode(t, svc, oa, "materials", p.ID)
	newTestNode(t, svc, oa, "analysis plan", c1.ID)

	collaborator := newTestUser(t, svc)
	_, err := svc.AddContributor(context.TODO(), p, collaborator, "", true, oa)
	assert.NoError(t, err)

	registration, _, err := svc.RegisterNode(context.TODO(), p, "prereg-challenge", []byte(`{"q1":"hypothesis"}`), oa, nil)
	assert.NoError(t, err)

	assert.False(t, registration.IsPublic)
	assert.Equal(t, model.TypeRegistration, registration.Type)
	assert.Equal(t, p.ID, *registration.RegisteredFromID)
	assert.Equal(t, owner.ID, *registration.RegisteredUserID)
	assert.Equal(t, "prereg-challenge", registration.RegisteredSchema)
	assert.Equal(t, model.RegistrationPending, registration.RegistrationState)
	assert.NotNil(t, registration.RegisteredDate)

	meta, err := svc.RegisteredMeta(context.TODO(), registration)
	assert.NoError(t, err)
	assert.JSONEq(t, `{"q1":"hypothesis"}`, string(meta))
	_, err = svc.RegisteredMeta(context.TODO(), p)
	assert.ErrorIs(t, err, ErrInvalidState)

	// the full primary subtree is mirrored: same shape, same count
	originals, err := svc.GetChildren(context.TODO(), p, true)
	assert.NoError(t, err)
	mirrored, err := svc.GetChildren(context.TODO(), registration, true)
	assert.NoError(t, err)
	assert.Equal(t, len(originals), len(mirrored))
	for _, m := range mirrored {
		assert.Equal(t, model.TypeRegistration, m.Type)
		assert.Equal(t, registration.ID, *m.RootID)
	}

	// contributors are copied in full, unlike forks
	contribs, err := svc.store.ListContributors(context.TODO(), registration.ID)
	assert.NoError(t, err)
	assert.Len(t, contribs, 2)

	isReg, err := svc.IsRegistrationOf(context.TODO(), registration, p.ID)
	assert.NoError(t, err)
	assert.True(t, isReg)
}

func TestNodeService_RegisterNode_ChildFilter(t *testing.T) {
	svc, _ := newTestService()
	owner := newTestUser(t, svc)
	oa := auth.FromUser(owner)

	p := newTestNode(t, svc, oa, "partial", "")
	c1 := newTestNode(t, svc, oa, "kept", p.ID)
	c2 := newTestNode(t, svc, oa, "dropped", p.ID)
	g := newTestNode(t, svc, oa, "grandchild", c2.ID)

	// excluding c2 while including its child is all-or-nothing per branch
	_, _, err := svc.RegisterNode(context.TODO(), p, "s", []byte(`{}`), oa, []string{c1.ID, g.ID})
	assert.ErrorIs(t, err, ErrValidation)

	// excluding the whole c2 branch is fine
	registration, _, err := svc.RegisterNode(context.TODO(), p, "s", []byte(`{}`), oa, []string{c1.ID})
	assert.NoError(t, err)
	mirrored, err := svc.GetChildren(context.TODO(), registration, true)
	assert.NoError(t, err)
	assert.Len(t, mirrored, 1)
	assert.Equal(t, "kept", mirrored[0].Title)
}

func TestNodeService_RegisterNode_Preconditions(t *testing.T) {
	svc, _ := newTestService()
	owner := newTestUser(t, svc)
	oa := auth.FromUser(owner)

	node := newTestNode(t, svc, oa, "guarded source", "")

	// read-only contributors cannot register
	reader := newTestUser(t, svc)
	_, err := svc.AddContributor(context.TODO(), node, reader, permissions.Read, true, oa)
	assert.NoError(t, err)
	_, _, err = svc.RegisterNode(context.TODO(), node, "s", []byte(`{}`), auth.FromUser(reader), nil)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	// an admin on the parent can register a child without direct write
	child := newTestNode(t, svc, oa, "child to register", node.ID)
	parentAdmin := newTestUser(t, svc)
	_, err = svc.AddContributor(context.TODO(), node, parentAdmin, permissions.Admin, true, oa)
	assert.NoError(t, err)
	_, _, err = svc.RegisterNode(context.TODO(), child, "s", []byte(`{}`), auth.FromUser(parentAdmin), nil)
	assert.NoError(t, err)

	// deleted sources cannot be registered
	leaf := newTestNode(t, svc, oa, "doomed", "")
	err = svc.RemoveNode(context.TODO(), leaf, oa)
	assert.NoError(t, err)
	_, _, err = svc.RegisterNode(context.TODO(), leaf, "s", []byte(`{}`), oa, nil)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestNodeService_UseAsTemplate(t *testing.T) {
	svc, _ := newTestService()
	owner := newTestUser(t, svc)
	oa := auth.FromUser(owner)

	p := newTestNode(t, svc, oa, "protocol", "")
	c1 := newTestNode(t, svc, oa, "survey", p.ID)
	x := newTestNode(t, svc, oa, "linked elsewhere", "")
	err := svc.store.CreateRelation(context.TODO(), &model.NodeRelation{
		ID:         uuid.New().String(),
		ParentID:   p.ID,
		ChildID:    x.ID,
		IsNodeLink: true,
	})
	assert.NoError(t, err)
	err = svc.SetPrivacy(context.TODO(), p, model.Public, oa)
	assert.NoError(t, err)

	templated, _, err := svc.UseAsTemplate(context.TODO(), p, oa, map[string]map[string]string{
		c1.ID: {"title": "survey v2"},
	})
	assert.NoError(t, err)

	assert.False(t, templated.IsPublic)
	assert.Equal(t, "Templated from protocol", templated.Title)
	assert.Equal(t, p.ID, *templated.TemplateNodeID)

	// structure carries over with per-node overrides; links do not
	descendants, err := svc.GetChildren(context.TODO(), templated, true)
	assert.NoError(t, err)
	assert.Len(t, descendants, 1)
	assert.Equal(t, "survey v2", descendants[0].Title)
	rels, err := svc.store.RelationsByParent(context.TODO(), templated.ID)
	assert.NoError(t, err)
	for _, rel := range rels {
		assert.False(t, rel.IsNodeLink)
	}

	// no log history carries over, only the provenance record
	logs, err := svc.store.ListLogs(context.TODO(), templated.ID, 0, 100)
	assert.NoError(t, err)
	assert.Len(t, logs, 1)
	assert.Equal(t, model.CreatedFrom, logs[0].Action)
}
