package service

import (
	"context"
	"testing"

	"github.com/pattisdr/osf.io/internal/auth"
	"github.com/pattisdr/osf.io/internal/model"
	"github.com/pattisdr/osf.io/internal/queue"
	"github.com/pattisdr/osf.io/internal/spam"
	"github.com/stretchr/testify/assert"
)

func TestNodeService_SetPrivacy_MakePublic(t *testing.T) {
	svc, tasks := newTestService()
	user := newTestUser(t, svc)
	a := auth.FromUser(user)
	node := newTestNode(t, svc, a, "going public", "")

	err := svc.SetPrivacy(context.TODO(), node, model.Public, a)
	assert.NoError(t, err)
	assert.True(t, node.IsPublic)
	assert.NotEmpty(t, node.AnalyticsReadKey)
	assert.Equal(t, model.MadePublic, lastLog(t, svc, node.ID).Action)

	// the identifier registry is notified asynchronously
	pending := tasks.FindPending(func(task *queue.Task) bool {
		return task.Name == queue.TaskIdentifierUpdate && task.NodeID == node.ID
	})
	assert.NotNil(t, pending)
	assert.Equal(t, model.Public, pending.Status)

	// back to private clears the analytics key
	err = svc.SetPrivacy(context.TODO(), node, model.Private, a)
	assert.NoError(t, err)
	assert.False(t, node.IsPublic)
	assert.Empty(t, node.AnalyticsReadKey)
	assert.Equal(t, model.MadePrivate, lastLog(t, svc, node.ID).Action)
}

func TestNodeService_SetPrivacy_RequiresAdmin(t *testing.T) {
	svc, _ := newTestService()
	user := newTestUser(t, svc)
	a := auth.FromUser(user)
	node := newTestNode(t, svc, a, "guarded", "")

	writer := newTestUser(t, svc)
	_, err := svc.AddContributor(context.TODO(), node, writer, "", true, a)
	assert.NoError(t, err)

	err = svc.SetPrivacy(context.TODO(), node, model.Public, auth.FromUser(writer))
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestNodeService_SetPrivacy_SpamBlocked(t *testing.T) {
	svc, _ := newTestService()
	user := newTestUser(t, svc)
	a := auth.FromUser(user)

	confirmed := newTestNode(t, svc, a, "spam", "")
	confirmed.SpamStatus = model.SpamMarked
	err := svc.store.UpdateNode(context.TODO(), confirmed)
	assert.NoError(t, err)

	err = svc.SetPrivacy(context.TODO(), confirmed, model.Public, a)
	assert.ErrorIs(t, err, ErrInvalidState)

	// flagged content is allowed through under the default policy
	flagged := newTestNode(t, svc, a, "maybe spam", "")
	flagged.SpamStatus = model.SpamFlagged
	err = svc.store.UpdateNode(context.TODO(), flagged)
	assert.NoError(t, err)
	err = svc.SetPrivacy(context.TODO(), flagged, model.Public, a)
	assert.NoError(t, err)

	// and blocked when the policy hardens
	svc.spam = spam.Policy{FlaggedBlocksPublic: true}
	flagged2 := newTestNode(t, svc, a, "maybe spam 2", "")
	flagged2.SpamStatus = model.SpamFlagged
	err = svc.store.UpdateNode(context.TODO(), flagged2)
	assert.NoError(t, err)
	err = svc.SetPrivacy(context.TODO(), flagged2, model.Public, a)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestNodeService_SetPrivacy_RegistrationRules(t *testing.T) {
	svc, _ := newTestService()
	user := newTestUser(t, svc)
	a := auth.FromUser(user)
	node := newTestNode(t, svc, a, "to freeze", "")

	registration, _, err := svc.RegisterNode(context.TODO(), node, "prereg", []byte(`{}`), a, nil)
	assert.NoError(t, err)

	// a pending registration cannot be made public
	err = svc.SetPrivacy(context.TODO(), registration, model.Public, a)
	assert.ErrorIs(t, err, ErrInvalidState)

	registration.RegistrationState = model.RegistrationApproved
	err = svc.store.UpdateNode(context.TODO(), registration)
	assert.NoError(t, err)
	err = svc.SetPrivacy(context.TODO(), registration, model.Public, a)
	assert.NoError(t, err)

	// a public registration is withdrawn, never silently privatized
	err = svc.SetPrivacy(context.TODO(), registration, model.Private, a)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestNodeService_SetPrivacy_Embargo(t *testing.T) {
	svc, _ := newTestService()
	user := newTestUser(t, svc)
	a := auth.FromUser(user)
	node := newTestNode(t, svc, a, "embargoed work", "")

	registration, _, err := svc.RegisterNode(context.TODO(), node, "prereg", []byte(`{}`), a, nil)
	assert.NoError(t, err)
	registration.RegistrationState = model.RegistrationApproved
	registration.EmbargoState = model.EmbargoActive
	err = svc.store.UpdateNode(context.TODO(), registration)
	assert.NoError(t, err)

	// the embargoed registration goes through termination, not a flip
	err = svc.SetPrivacy(context.TODO(), registration, model.Public, a)
	assert.ErrorIs(t, err, ErrInvalidState)

	err = svc.RequestEmbargoTermination(context.TODO(), registration, a)
	assert.NoError(t, err)
	assert.Equal(t, model.EmbargoTerminationRequested, lastLog(t, svc, registration.ID).Action)

	// termination requests are only valid against active embargoes
	err = svc.RequestEmbargoTermination(context.TODO(), node, a)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestNodeService_SetPrivacy_SuspendedBlocked(t *testing.T) {
	svc, _ := newTestService()
	user := newTestUser(t, svc)
	a := auth.FromUser(user)

	node := newTestNode(t, svc, a, "under review", "")
	node.Suspended = true
	err := svc.store.UpdateNode(context.TODO(), node)
	assert.NoError(t, err)

	err = svc.SetPrivacy(context.TODO(), node, model.Public, a)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.False(t, node.IsPublic)

	// lifting the suspension unblocks publication
	node.Suspended = false
	err = svc.store.UpdateNode(context.TODO(), node)
	assert.NoError(t, err)
	err = svc.SetPrivacy(context.TODO(), node, model.Public, a)
	assert.NoError(t, err)
	assert.True(t, node.IsPublic)
}
