// Package addons lets per-node extensions observe lifecycle events.
// Hooks are advisory: a failing addon contributes no message and is
// logged, it never aborts the operation.
package addons

import (
	"context"

	"github.com/pattisdr/osf.io/internal/model"
	"github.com/sirupsen/logrus"
)

// Addon observes node lifecycle events. Each hook may return a message
// for the acting user, e.g. a warning that addon content was not copied.
type Addon interface {
	Name() string
	AfterRegister(ctx context.Context, node, registration *model.Node, userID string) (string, error)
	AfterFork(ctx context.Context, node, fork *model.Node, userID string) (string, error)
	AfterTemplate(ctx context.Context, node, copy *model.Node, userID string) (string, error)
	AfterSetPrivacy(ctx context.Context, node *model.Node, permissions string) error
	AfterDelete(ctx context.Context, node *model.Node, userID string) error
}

// Registry fans lifecycle events out to registered addons.
type Registry struct {
	addons []Addon
}

func NewRegistry(addons ...Addon) *Registry {
	return &Registry{addons: addons}
}

func (r *Registry) Register(addon Addon) {
	r.addons = append(r.addons, addon)
}

func (r *Registry) AfterRegister(ctx context.Context, node, registration *model.Node, userID string) []string {
	var messages []string
	for _, addon := range r.addons {
		message, err := addon.AfterRegister(ctx, node, registration, userID)
		if err != nil {
			logrus.Errorf("addon %s after_register failed on node %s: %v", addon.Name(), node.ID, err)
			continue
		}
		if message != "" {
			messages = append(messages, message)
		}
	}
	return messages
}

func (r *Registry) AfterFork(ctx context.Context, node, fork *model.Node, userID string) []string {
	var messages []string
	for _, addon := range r.addons {
		message, err := addon.AfterFork(ctx, node, fork, userID)
		if err != nil {
			logrus.Errorf("addon %s after_fork failed on node %s: %v", addon.Name(), node.ID, err)
			continue
		}
		if message != "" {
			messages = append(messages, message)
		}
	}
	return messages
}

func (r *Registry) AfterTemplate(ctx context.Context, node, copy *model.Node, userID string) []string {
	var messages []string
	for _, addon := range r.addons {
		message, err := addon.AfterTemplate(ctx, node, copy, userID)
		if err != nil {
			logrus.Errorf("addon %s after_template failed on node %s: %v", addon.Name(), node.ID, err)
			continue
		}
		if message != "" {
			messages = append(messages, message)
		}
	}
	return messages
}

func (r *Registry) AfterSetPrivacy(ctx context.Context, node *model.Node, permissions string) {
	for _, addon := range r.addons {
		if err := addon.AfterSetPrivacy(ctx, node, permissions); err != nil {
			logrus.Errorf("addon %s after_set_privacy failed on node %s: %v", addon.Name(), node.ID, err)
		}
	}
}

func (r *Registry) AfterDelete(ctx context.Context, node *model.Node, userID string) {
	for _, addon := range r.addons {
		if err := addon.AfterDelete(ctx, node, userID); err != nil {
			logrus.Errorf("addon %s after_delete failed on node %s: %v", addon.Name(), node.ID, err)
		}
	}
}
