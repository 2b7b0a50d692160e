package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/pattisdr/osf.io/internal/auth"
	"github.com/pattisdr/osf.io/internal/model"
	"github.com/pattisdr/osf.io/internal/permissions"
	"github.com/stretchr/testify/assert"
)

func TestNodeService_GetRoot(t *testing.T) {
	svc, _ := newTestService()
	user := newTestUser(t, svc)
	a := auth.FromUser(user)

	p := newTestNode(t, svc, a, "root", "")
	c := newTestNode(t, svc, a, "child", p.ID)
	g := newTestNode(t, svc, a, "grandchild", c.ID)

	root, err := svc.GetRoot(context.TODO(), g)
	assert.NoError(t, err)
	assert.Equal(t, p.ID, root.ID)

	// root resolution is idempotent and the root has no parent
	again, err := svc.GetRoot(context.TODO(), root)
	assert.NoError(t, err)
	assert.Equal(t, root.ID, again.ID)
	parent, err := svc.GetParent(context.TODO(), root)
	assert.NoError(t, err)
	assert.Nil(t, parent)
}

func TestNodeService_GetChildren(t *testing.T) {
	svc, _ := newTestService()
	user := newTestUser(t, svc)
	a := auth.FromUser(user)

	p := newTestNode(t, svc, a, "top", "")
	c := newTestNode(t, svc, a, "mid", p.ID)
	g := newTestNode(t, svc, a, "leaf", c.ID)

	all, err := svc.GetChildren(context.TODO(), p, false)
	assert.NoError(t, err)
	assert.Len(t, all, 2)

	// an interior node answers the same question the same way
	fromMid, err := svc.GetChildren(context.TODO(), c, false)
	assert.NoError(t, err)
	assert.Len(t, fromMid, 1)
	assert.Equal(t, g.ID, fromMid[0].ID)

	// the parent of a non-deleted child appears under the shared root
	ids := map[string]bool{}
	for _, d := range all {
		ids[d.ID] = true
	}
	assert.True(t, ids[c.ID])

	err = svc.RemoveNode(context.TODO(), g, a)
	assert.NoError(t, err)
	active, err := svc.GetChildren(context.TODO(), p, true)
	assert.NoError(t, err)
	assert.Len(t, active, 1)
	all, err = svc.GetChildren(context.TODO(), p, false)
	assert.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestNodeService_GetDescendantsRecursive(t *testing.T) {
	svc, _ := newTestService()
	user := newTestUser(t, svc)
	a := auth.FromUser(user)

	p := newTestNode(t, svc, a, "walk root", "")
	c1 := newTestNode(t, svc, a, "first", p.ID)
	c2 := newTestNode(t, svc, a, "second", c1.ID)
	x := newTestNode(t, svc, a, "link target", "")
	xChild := newTestNode(t, svc, a, "behind the link", x.ID)
	err := svc.store.CreateRelation(context.TODO(), &model.NodeRelation{
		ID:         uuid.New().String(),
		ParentID:   p.ID,
		ChildID:    x.ID,
		IsNodeLink: true,
	})
	assert.NoError(t, err)

	primary, err := svc.GetDescendantsRecursive(context.TODO(), p, true)
	assert.NoError(t, err)
	assert.Len(t, primary, 2)

	// link children appear as leaves; the walk never descends through a link
	all, err := svc.GetDescendantsRecursive(context.TODO(), p, false)
	assert.NoError(t, err)
	assert.Len(t, all, 3)
	seen := map[string]bool{}
	for _, d := range all {
		seen[d.ID] = true
	}
	assert.True(t, seen[c1.ID])
	assert.True(t, seen[c2.ID])
	assert.True(t, seen[x.ID])
	assert.False(t, seen[xChild.ID])

	// restartable: a second walk reproduces the same sequence
	again, err := svc.GetDescendantsRecursive(context.TODO(), p, false)
	assert.NoError(t, err)
	assert.Equal(t, len(all), len(again))
	for i := range all {
		assert.Equal(t, all[i].ID, again[i].ID)
	}
}

func TestNodeService_FindReadableDescendants(t *testing.T) {
	svc, _ := newTestService()
	owner := newTestUser(t, svc)
	oa := auth.FromUser(owner)

	// top (private) -> mid (readable by u) -> leaf (readable by u via mid)
	top := newTestNode(t, svc, oa, "opaque top", "")
	mid := newTestNode(t, svc, oa, "shared mid", top.ID)
	leaf := newTestNode(t, svc, oa, "under mid", mid.ID)
	sibling := newTestNode(t, svc, oa, "opaque sibling", top.ID)

	u := newTestUser(t, svc)
	_, err := svc.AddContributor(context.TODO(), mid, u, permissions.Admin, true, oa)
	assert.NoError(t, err)

	readable, err := svc.FindReadableDescendants(context.TODO(), top, auth.FromUser(u))
	assert.NoError(t, err)

	// the search stops at the first readable node per branch
	assert.Len(t, readable, 1)
	assert.Equal(t, mid.ID, readable[0].ID)
	_ = leaf
	_ = sibling
}

func TestNodeService_FindReadableAntecedent(t *testing.T) {
	svc, _ := newTestService()
	owner := newTestUser(t, svc)
	oa := auth.FromUser(owner)

	top := newTestNode(t, svc, oa, "public top", "")
	mid := newTestNode(t, svc, oa, "private mid", top.ID)
	leaf := newTestNode(t, svc, oa, "deep leaf", mid.ID)
	err := svc.SetPrivacy(context.TODO(), top, model.Public, oa)
	assert.NoError(t, err)

	u := newTestUser(t, svc)
	antecedent, err := svc.FindReadableAntecedent(context.TODO(), leaf, auth.FromUser(u))
	assert.NoError(t, err)
	assert.NotNil(t, antecedent)
	assert.Equal(t, top.ID, antecedent.ID)

	// nothing readable above a lone private node
	lone := newTestNode(t, svc, oa, "isolated", "")
	antecedent, err = svc.FindReadableAntecedent(context.TODO(), lone, auth.FromUser(u))
	assert.NoError(t, err)
	assert.Nil(t, antecedent)
}

func TestNodeService_ReorderChildren(t *testing.T) {
	svc, _ := newTestService()
	user := newTestUser(t, svc)
	a := auth.FromUser(user)

	p := newTestNode(t, svc, a, "parent", "")
	c1 := newTestNode(t, svc, a, "first", p.ID)
	c2 := newTestNode(t, svc, a, "second", p.ID)
	c3 := newTestNode(t, svc, a, "third", p.ID)

	err := svc.ReorderChildren(context.TODO(), p, []string{c3.ID, c1.ID, c2.ID}, a)
	assert.NoError(t, err)

	rels, err := svc.store.RelationsByParent(context.TODO(), p.ID)
	assert.NoError(t, err)
	assert.Len(t, rels, 3)
	assert.Equal(t, c3.ID, rels[0].ChildID)
	assert.Equal(t, c1.ID, rels[1].ChildID)
	assert.Equal(t, c2.ID, rels[2].ChildID)

	// the sequence must cover exactly the current children
	err = svc.ReorderChildren(context.TODO(), p, []string{c1.ID, c2.ID}, a)
	assert.ErrorIs(t, err, ErrValidation)
	err = svc.ReorderChildren(context.TODO(), p, []string{c1.ID, c2.ID, uuid.New().String()}, a)
	assert.ErrorIs(t, err, ErrValidation)

	stranger := newTestUser(t, svc)
	err = svc.ReorderChildren(context.TODO(), p, []string{c1.ID, c2.ID, c3.ID}, auth.FromUser(stranger))
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestNodeService_NodeLinks(t *testing.T) {
	svc, _ := newTestService()
	user := newTestUser(t, svc)
	a := auth.FromUser(user)

	node := newTestNode(t, svc, a, "project", "")
	target := newTestNode(t, svc, a, "linked", "")

	err := svc.AddNodeLink(context.TODO(), node, target, a)
	assert.NoError(t, err)
	log := lastLog(t, svc, node.ID)
	assert.Equal(t, model.NodeLinkCreated, log.Action)
	assert.Equal(t, target.ID, log.Params["pointer"])

	// the link shows up as a leaf, and the target keeps its own parent
	all, err := svc.GetDescendantsRecursive(context.TODO(), node, false)
	assert.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Equal(t, target.ID, all[0].ID)
	parent, err := svc.GetParent(context.TODO(), target)
	assert.NoError(t, err)
	assert.Nil(t, parent)

	// a second identical link is rejected
	err = svc.AddNodeLink(context.TODO(), node, target, a)
	assert.ErrorIs(t, err, ErrValidation)
	err = svc.AddNodeLink(context.TODO(), node, node, a)
	assert.ErrorIs(t, err, ErrValidation)

	err = svc.RemoveNodeLink(context.TODO(), node, target, a)
	assert.NoError(t, err)
	assert.Equal(t, model.NodeLinkRemoved, lastLog(t, svc, node.ID).Action)
	all, err = svc.GetDescendantsRecursive(context.TODO(), node, false)
	assert.NoError(t, err)
	assert.Empty(t, all)

	// removing a link that is not there is a not-found condition
	err = svc.RemoveNodeLink(context.TODO(), node, target, a)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNodeService_NodeLinks_OrderingAfterUnlink(t *testing.T) {
	svc, _ := newTestService()
	user := newTestUser(t, svc)
	a := auth.FromUser(user)

	node := newTestNode(t, svc, a, "link list", "")
	first := newTestNode(t, svc, a, "first target", "")
	second := newTestNode(t, svc, a, "second target", "")
	third := newTestNode(t, svc, a, "third target", "")

	assert.NoError(t, svc.AddNodeLink(context.TODO(), node, first, a))
	assert.NoError(t, svc.AddNodeLink(context.TODO(), node, second, a))
	assert.NoError(t, svc.RemoveNodeLink(context.TODO(), node, first, a))
	assert.NoError(t, svc.AddNodeLink(context.TODO(), node, third, a))

	// ordering keys stay dense and unique through unlink and relink
	rels, err := svc.store.RelationsByParent(context.TODO(), node.ID)
	assert.NoError(t, err)
	assert.Len(t, rels, 2)
	orders := map[int]string{}
	for _, rel := range rels {
		_, taken := orders[rel.Order]
		assert.False(t, taken, "order %d assigned twice", rel.Order)
		orders[rel.Order] = rel.ChildID
	}
	assert.Equal(t, second.ID, orders[0])
	assert.Equal(t, third.ID, orders[1])

	// a node's own primary child cannot also be its link target
	child := newTestNode(t, svc, a, "own child", node.ID)
	err = svc.AddNodeLink(context.TODO(), node, child, a)
	assert.ErrorIs(t, err, ErrValidation)
}
