package model

import "time"

// NodeRelation is an edge between a parent and a child node. A primary edge
// (IsNodeLink false) is containment: at most one may exist per child. A node
// link is a soft reference, like a symlink; any number of parents may link
// the same child.
type NodeRelation struct {
	ID         string `gorm:"primaryKey;uuid;not null"`
	ParentID   string `gorm:"uuid;not null;uniqueIndex:idx_node_relations_parent_child;index"`
	ChildID    string `gorm:"uuid;not null;uniqueIndex:idx_node_relations_parent_child;index"`
	IsNodeLink bool   `gorm:"not null;default:false;uniqueIndex:idx_node_relations_parent_child"`

	// Order is the densely packed presentation ordering key per parent.
	Order int `gorm:"column:_order;not null;default:0"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (NodeRelation) TableName() string {
	return "node_relations"
}
