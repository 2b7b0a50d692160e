package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/pattisdr/osf.io/internal/addons"
	"github.com/pattisdr/osf.io/internal/auth"
	"github.com/pattisdr/osf.io/internal/cache"
	"github.com/pattisdr/osf.io/internal/compress"
	"github.com/pattisdr/osf.io/internal/identifiers"
	"github.com/pattisdr/osf.io/internal/model"
	"github.com/pattisdr/osf.io/internal/queue"
	"github.com/pattisdr/osf.io/internal/search"
	"github.com/pattisdr/osf.io/internal/spam"
	"github.com/pattisdr/osf.io/internal/store"
	"github.com/pattisdr/osf.io/internal/tester"
	"github.com/stretchr/testify/assert"
)

func newTestService() (*NodeService, *queue.Memory) {
	tasks := queue.NewMemory()
	svc := NewNodeService(
		store.NewGormStore(tester.TestDB()),
		tasks,
		cache.NewMemory(),
		search.NewNoop(),
		identifiers.NewNoop(),
		addons.NewRegistry(),
		compress.NewNop(),
		spam.Policy{},
	)
	return svc, tasks
}

func newTestUser(t *testing.T, svc *NodeService) *model.User {
	t.Helper()
	user := &model.User{
		ID:       uuid.New().String(),
		Username: uuid.New().String() + "@test.io",
		Fullname: "Test User",
		IsActive: true,
	}
	err := svc.store.CreateUser(context.TODO(), user)
	assert.NoError(t, err)
	return user
}

func newTestNode(t *testing.T, svc *NodeService, a *auth.Auth, title, parentID string) *model.Node {
	t.Helper()
	node, err := svc.CreateNode(context.TODO(), &CreateNodeInput{
		Title:    title,
		Category: "project",
		ParentID: parentID,
	}, a)
	assert.NoError(t, err)
	assert.NotNil(t, node)
	return node
}

func lastLog(t *testing.T, svc *NodeService, nodeID string) *model.NodeLog {
	t.Helper()
	count, err := svc.store.CountLogs(context.TODO(), nodeID)
	assert.NoError(t, err)
	assert.Greater(t, count, int64(0))
	logs, err := svc.store.ListLogs(context.TODO(), nodeID, int(count)-1, 1)
	assert.NoError(t, err)
	assert.Len(t, logs, 1)
	return logs[0]
}
