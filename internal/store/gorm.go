package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/pattisdr/osf.io/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{
		db: db,
	}
}

var _ Store = (*GormStore)(nil)

type GormStore struct {
	db *gorm.DB
}

func wrapErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// forUpdate adds a row lock on dialects that support it. SQLite serializes
// writers at the database level, so the plain query is already safe there.
func (g *GormStore) forUpdate(q *gorm.DB) *gorm.DB {
	if g.db.Dialector.Name() == "postgres" {
		return q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}

func (g *GormStore) CreateNode(ctx context.Context, node *model.Node) error {
	return g.db.WithContext(ctx).Create(node).Error
}

func (g *GormStore) GetNode(ctx context.Context, id string) (*model.Node, error) {
	var node model.Node
	err := g.db.WithContext(ctx).Where("id = ?", id).First(&node).Error
	if err != nil {
		return nil, wrapErr(err)
	}
	return &node, nil
}

func (g *GormStore) UpdateNode(ctx context.Context, node *model.Node) error {
	return g.db.WithContext(ctx).Save(node).Error
}

func (g *GormStore) ListNodesFromIDs(ctx context.Context, ids []string) ([]*model.Node, error) {
	var nodes []*model.Node
	err := g.db.WithContext(ctx).Where("id IN (?)", ids).Find(&nodes).Error
	return nodes, err
}

// DescendantIDs walks the primary edges below the node with a recursive
// query. UNION (not UNION ALL) keeps the traversal safe even if the edge
// table were ever corrupted into a cycle.
func (g *GormStore) DescendantIDs(ctx context.Context, nodeID string, activeOnly bool) ([]string, error) {
	sql := `
		WITH RECURSIVE descendants(child_id) AS (
			SELECT child_id FROM node_relations
			WHERE parent_id = ? AND is_node_link = ?
			UNION
			SELECT r.child_id FROM node_relations AS r
			JOIN descendants AS d ON r.parent_id = d.child_id
			WHERE r.is_node_link = ?
		) SELECT child_id FROM descendants`
	if activeOnly {
		sql = `
		WITH RECURSIVE descendants(child_id) AS (
			SELECT r.child_id FROM node_relations AS r
			JOIN nodes AS n ON n.id = r.child_id
			WHERE r.parent_id = ? AND r.is_node_link = ? AND n.is_deleted = ?
			UNION
			SELECT r.child_id FROM node_relations AS r
			JOIN descendants AS d ON r.parent_id = d.child_id
			JOIN nodes AS n ON n.id = r.child_id
			WHERE r.is_node_link = ? AND n.is_deleted = ?
		) SELECT child_id FROM descendants`
	}

	var rows []struct {
		ChildID string
	}
	var err error
	if activeOnly {
		err = g.db.WithContext(ctx).Raw(sql, nodeID, false, false, false, false).Scan(&rows).Error
	} else {
		err = g.db.WithContext(ctx).Raw(sql, nodeID, false, false).Scan(&rows).Error
	}
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ChildID)
	}
	return ids, nil
}

// maxAncestorDepth bounds the ascent if the edge table were ever
// corrupted into a cycle.
const maxAncestorDepth = 512

// AncestorIDs ascends the primary edges, nearest ancestor first. The level
// column keeps the ordering but defeats UNION dedup under a cycle, so the
// recursion depth is capped outright and repeats are dropped here.
func (g *GormStore) AncestorIDs(ctx context.Context, nodeID string) ([]string, error) {
	sql := `
		WITH RECURSIVE ascendants(parent_id, level) AS (
			SELECT parent_id, 1 FROM node_relations
			WHERE child_id = ? AND is_node_link = ?
			UNION
			SELECT r.parent_id, a.level + 1 FROM node_relations AS r
			JOIN ascendants AS a ON r.child_id = a.parent_id
			WHERE r.is_node_link = ? AND a.level < ?
		) SELECT parent_id FROM ascendants ORDER BY level`

	var rows []struct {
		ParentID string
	}
	err := g.db.WithContext(ctx).Raw(sql, nodeID, false, false, maxAncestorDepth).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(rows))
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if seen[row.ParentID] {
			continue
		}
		seen[row.ParentID] = true
		ids = append(ids, row.ParentID)
	}
	return ids, nil
}

func (g *GormStore) RootID(ctx context.Context, nodeID string) (string, error) {
	ancestors, err := g.AncestorIDs(ctx, nodeID)
	if err != nil {
		return "", err
	}
	if len(ancestors) == 0 {
		return nodeID, nil
	}
	return ancestors[len(ancestors)-1], nil
}

// ResolveLicense returns the node's own license when set, else the nearest
// ancestor's. The recursion stops ascending a branch once a license is
// found, and ties break by level, so the shortest path wins.
func (g *GormStore) ResolveLicense(ctx context.Context, nodeID string) (*model.NodeLicense, error) {
	node, err := g.GetNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	if node.NodeLicenseID != nil {
		return g.GetLicense(ctx, *node.NodeLicenseID)
	}

	sql := `
		WITH RECURSIVE ascendants(node_license_id, parent_id, level) AS (
			SELECT n.node_license_id, r.parent_id, 1
			FROM node_relations AS r
			JOIN nodes AS n ON n.id = r.parent_id
			WHERE r.is_node_link = ? AND r.child_id = ?
			UNION ALL
			SELECT n.node_license_id, r.parent_id, a.level + 1
			FROM ascendants AS a
			JOIN node_relations AS r ON a.parent_id = r.child_id
			JOIN nodes AS n ON n.id = r.parent_id
			WHERE r.is_node_link = ? AND a.node_license_id IS NULL
		) SELECT node_license_id FROM ascendants
		WHERE node_license_id IS NOT NULL
		ORDER BY level LIMIT 1`

	var rows []struct {
		NodeLicenseID string
	}
	err = g.db.WithContext(ctx).Raw(sql, false, nodeID, false).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return g.GetLicense(ctx, rows[0].NodeLicenseID)
}

// HasImplicitRead reports whether the user's admin contributorships, pushed
// down through the primary edges, reach the node.
func (g *GormStore) HasImplicitRead(ctx context.Context, userID, nodeID string) (bool, error) {
	sql := `
		WITH RECURSIVE implicit_read(node_id) AS (
			SELECT node_id FROM contributors
			WHERE user_id = ? AND admin = ?
			UNION
			SELECT r.child_id FROM implicit_read AS i
			JOIN node_relations AS r ON r.parent_id = i.node_id
			WHERE r.is_node_link = ?
		) SELECT COUNT(*) AS n FROM implicit_read WHERE node_id = ?`

	var row struct {
		N int64
	}
	err := g.db.WithContext(ctx).Raw(sql, userID, true, false, nodeID).Scan(&row).Error
	if err != nil {
		return false, err
	}
	return row.N > 0, nil
}

func (g *GormStore) CreateRelation(ctx context.Context, rel *model.NodeRelation) error {
	return g.db.WithContext(ctx).Create(rel).Error
}

func (g *GormStore) GetRelation(ctx context.Context, parentID, childID string, isNodeLink bool) (*model.NodeRelation, error) {
	var rel model.NodeRelation
	err := g.db.WithContext(ctx).
		Where("parent_id = ? AND child_id = ? AND is_node_link = ?", parentID, childID, isNodeLink).
		First(&rel).Error
	if err != nil {
		return nil, wrapErr(err)
	}
	return &rel, nil
}

func (g *GormStore) RelationsByParent(ctx context.Context, parentID string) ([]*model.NodeRelation, error) {
	var rels []*model.NodeRelation
	err := g.db.WithContext(ctx).
		Where("parent_id = ?", parentID).
		Order("_order").
		Find(&rels).Error
	return rels, err
}

func (g *GormStore) PrimaryParentRelation(ctx context.Context, childID string) (*model.NodeRelation, error) {
	var rel model.NodeRelation
	err := g.db.WithContext(ctx).
		Where("child_id = ? AND is_node_link = ?", childID, false).
		First(&rel).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rel, nil
}

func (g *GormStore) DeleteRelation(ctx context.Context, id string) error {
	return g.db.WithContext(ctx).Where("id = ?", id).Delete(&model.NodeRelation{}).Error
}

func (g *GormStore) NextOrder(ctx context.Context, parentID string) (int, error) {
	var next int
	err := g.db.WithContext(ctx).Model(&model.NodeRelation{}).
		Select("COALESCE(MAX(_order) + 1, 0)").
		Where("parent_id = ?", parentID).
		Scan(&next).Error
	return next, err
}

func (g *GormStore) ReorderChildren(ctx context.Context, parentID string, childIDs []string) error {
	for i, childID := range childIDs {
		err := g.db.WithContext(ctx).Model(&model.NodeRelation{}).
			Where("parent_id = ? AND child_id = ?", parentID, childID).
			Update("_order", i).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (g *GormStore) CreateContributor(ctx context.Context, contrib *model.Contributor) error {
	return g.db.WithContext(ctx).Create(contrib).Error
}

func (g *GormStore) GetContributor(ctx context.Context, nodeID, userID string) (*model.Contributor, error) {
	var contrib model.Contributor
	err := g.forUpdate(g.db.WithContext(ctx)).
		Where("node_id = ? AND user_id = ?", nodeID, userID).
		First(&contrib).Error
	if err != nil {
		return nil, wrapErr(err)
	}
	return &contrib, nil
}

func (g *GormStore) UpdateContributor(ctx context.Context, contrib *model.Contributor) error {
	return g.db.WithContext(ctx).Save(contrib).Error
}

func (g *GormStore) DeleteContributor(ctx context.Context, nodeID, userID string) error {
	return g.db.WithContext(ctx).
		Where("node_id = ? AND user_id = ?", nodeID, userID).
		Delete(&model.Contributor{}).Error
}

func (g *GormStore) ListContributors(ctx context.Context, nodeID string) ([]*model.Contributor, error) {
	var contribs []*model.Contributor
	err := g.db.WithContext(ctx).
		Where("node_id = ?", nodeID).
		Order("_order").
		Find(&contribs).Error
	return contribs, err
}

func (g *GormStore) BulkCreateContributors(ctx context.Context, contribs []*model.Contributor) error {
	if len(contribs) == 0 {
		return nil
	}
	return g.db.WithContext(ctx).Create(contribs).Error
}

// CountAdmins counts the node's admin rows while holding their row locks.
// Postgres rejects FOR UPDATE on aggregate queries, so the rows are
// selected and counted here instead.
func (g *GormStore) CountAdmins(ctx context.Context, nodeID string) (int64, error) {
	var contribs []model.Contributor
	err := g.forUpdate(g.db.WithContext(ctx)).
		Where("node_id = ? AND admin = ?", nodeID, true).
		Find(&contribs).Error
	if err != nil {
		return 0, err
	}
	return int64(len(contribs)), nil
}

func (g *GormStore) CountVisible(ctx context.Context, nodeID string) (int64, error) {
	var contribs []model.Contributor
	err := g.forUpdate(g.db.WithContext(ctx)).
		Where("node_id = ? AND visible = ?", nodeID, true).
		Find(&contribs).Error
	if err != nil {
		return 0, err
	}
	return int64(len(contribs)), nil
}

func (g *GormStore) CreateLog(ctx context.Context, log *model.NodeLog) error {
	return g.db.WithContext(ctx).Create(log).Error
}

func (g *GormStore) ListLogs(ctx context.Context, nodeID string, offset, limit int) ([]*model.NodeLog, error) {
	var logs []*model.NodeLog
	err := g.db.WithContext(ctx).
		Where("node_id = ?", nodeID).
		Order("date").
		Offset(offset).
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

func (g *GormStore) CountLogs(ctx context.Context, nodeID string) (int64, error) {
	var count int64
	err := g.db.WithContext(ctx).Model(&model.NodeLog{}).
		Where("node_id = ?", nodeID).
		Count(&count).Error
	return count, err
}

func (g *GormStore) BulkCreateLogs(ctx context.Context, logs []*model.NodeLog) error {
	if len(logs) == 0 {
		return nil
	}
	return g.db.WithContext(ctx).Create(logs).Error
}

func (g *GormStore) CreateGuid(ctx context.Context, guid *model.Guid) error {
	return g.db.WithContext(ctx).Create(guid).Error
}

func (g *GormStore) GetGuid(ctx context.Context, id string) (*model.Guid, error) {
	var guid model.Guid
	err := g.db.WithContext(ctx).Where("id = ?", id).First(&guid).Error
	if err != nil {
		return nil, wrapErr(err)
	}
	return &guid, nil
}

func (g *GormStore) GuidForNode(ctx context.Context, nodeID string) (*model.Guid, error) {
	var guid model.Guid
	err := g.db.WithContext(ctx).Where("node_id = ?", nodeID).First(&guid).Error
	if err != nil {
		return nil, wrapErr(err)
	}
	return &guid, nil
}

func (g *GormStore) CreateUser(ctx context.Context, user *model.User) error {
	return g.db.WithContext(ctx).Create(user).Error
}

func (g *GormStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := g.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, wrapErr(err)
	}
	return &user, nil
}

func (g *GormStore) UserAffiliated(ctx context.Context, userID, institutionID string) (bool, error) {
	var count int64
	err := g.db.WithContext(ctx).Table("user_institutions").
		Where("user_id = ? AND institution_id = ?", userID, institutionID).
		Count(&count).Error
	return count > 0, err
}

func (g *GormStore) GetOrCreateTag(ctx context.Context, name string, system bool) (*model.Tag, error) {
	var tag model.Tag
	err := g.db.WithContext(ctx).
		Where("name = ? AND system = ?", name, system).
		First(&tag).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		tag = model.Tag{ID: uuid.New().String(), Name: name, System: system}
		if err := g.db.WithContext(ctx).Create(&tag).Error; err != nil {
			return nil, err
		}
		return &tag, nil
	}
	if err != nil {
		return nil, err
	}
	return &tag, nil
}

func (g *GormStore) AttachTag(ctx context.Context, nodeID, tagID string) error {
	return g.db.WithContext(ctx).
		Exec("INSERT INTO node_tags (node_id, tag_id) VALUES (?, ?) ON CONFLICT DO NOTHING", nodeID, tagID).Error
}

func (g *GormStore) DetachTag(ctx context.Context, nodeID, tagID string) error {
	return g.db.WithContext(ctx).
		Exec("DELETE FROM node_tags WHERE node_id = ? AND tag_id = ?", nodeID, tagID).Error
}

func (g *GormStore) ListTags(ctx context.Context, nodeID string, system bool) ([]*model.Tag, error) {
	var tags []*model.Tag
	err := g.db.WithContext(ctx).
		Joins("JOIN node_tags ON node_tags.tag_id = tags.id").
		Where("node_tags.node_id = ? AND tags.system = ?", nodeID, system).
		Order("tags.name").
		Find(&tags).Error
	return tags, err
}

func (g *GormStore) NodeHasTag(ctx context.Context, nodeID, name string, system bool) (bool, error) {
	var count int64
	err := g.db.WithContext(ctx).Model(&model.Tag{}).
		Joins("JOIN node_tags ON node_tags.tag_id = tags.id").
		Where("node_tags.node_id = ? AND tags.name = ? AND tags.system = ?", nodeID, name, system).
		Count(&count).Error
	return count > 0, err
}

func (g *GormStore) CreateInstitution(ctx context.Context, inst *model.Institution) error {
	return g.db.WithContext(ctx).Create(inst).Error
}

func (g *GormStore) AttachInstitution(ctx context.Context, nodeID, institutionID string) error {
	return g.db.WithContext(ctx).
		Exec("INSERT INTO node_institutions (node_id, institution_id) VALUES (?, ?) ON CONFLICT DO NOTHING", nodeID, institutionID).Error
}

func (g *GormStore) DetachInstitution(ctx context.Context, nodeID, institutionID string) error {
	return g.db.WithContext(ctx).
		Exec("DELETE FROM node_institutions WHERE node_id = ? AND institution_id = ?", nodeID, institutionID).Error
}

func (g *GormStore) ListNodeInstitutions(ctx context.Context, nodeID string) ([]*model.Institution, error) {
	var insts []*model.Institution
	err := g.db.WithContext(ctx).
		Joins("JOIN node_institutions ON node_institutions.institution_id = institutions.id").
		Where("node_institutions.node_id = ?", nodeID).
		Order("institutions.name").
		Find(&insts).Error
	return insts, err
}

func (g *GormStore) NodeAffiliated(ctx context.Context, nodeID, institutionID string) (bool, error) {
	var count int64
	err := g.db.WithContext(ctx).Table("node_institutions").
		Where("node_id = ? AND institution_id = ?", nodeID, institutionID).
		Count(&count).Error
	return count > 0, err
}

func (g *GormStore) AffiliateUser(ctx context.Context, userID, institutionID string) error {
	return g.db.WithContext(ctx).
		Exec("INSERT INTO user_institutions (user_id, institution_id) VALUES (?, ?) ON CONFLICT DO NOTHING", userID, institutionID).Error
}

func (g *GormStore) CreatePrivateLink(ctx context.Context, link *model.PrivateLink, nodeIDs []string) error {
	if err := g.db.WithContext(ctx).Create(link).Error; err != nil {
		return err
	}
	for _, nodeID := range nodeIDs {
		err := g.db.WithContext(ctx).
			Exec("INSERT INTO private_link_nodes (private_link_id, node_id) VALUES (?, ?) ON CONFLICT DO NOTHING", link.ID, nodeID).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (g *GormStore) GetPrivateLinkByKey(ctx context.Context, key string) (*model.PrivateLink, error) {
	var link model.PrivateLink
	err := g.db.WithContext(ctx).Where("key = ?", key).First(&link).Error
	if err != nil {
		return nil, wrapErr(err)
	}
	return &link, nil
}

func (g *GormStore) ActiveLinkKeys(ctx context.Context, nodeID string) ([]string, error) {
	var rows []struct {
		Key string
	}
	err := g.db.WithContext(ctx).
		Table("private_links").
		Select("private_links.key").
		Joins("JOIN private_link_nodes ON private_link_nodes.private_link_id = private_links.id").
		Where("private_link_nodes.node_id = ? AND private_links.is_deleted = ?", nodeID, false).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, row.Key)
	}
	return keys, nil
}

func (g *GormStore) LinkCoversNode(ctx context.Context, linkID, nodeID string) (bool, error) {
	var count int64
	err := g.db.WithContext(ctx).Table("private_link_nodes").
		Where("private_link_id = ? AND node_id = ?", linkID, nodeID).
		Count(&count).Error
	return count > 0, err
}

func (g *GormStore) DeletePrivateLink(ctx context.Context, linkID string) error {
	return g.db.WithContext(ctx).Model(&model.PrivateLink{}).
		Where("id = ?", linkID).
		Update("is_deleted", true).Error
}

func (g *GormStore) CreateLicense(ctx context.Context, license *model.NodeLicense) error {
	return g.db.WithContext(ctx).Create(license).Error
}

func (g *GormStore) GetLicense(ctx context.Context, id string) (*model.NodeLicense, error) {
	var license model.NodeLicense
	err := g.db.WithContext(ctx).Where("id = ?", id).First(&license).Error
	if err != nil {
		return nil, wrapErr(err)
	}
	return &license, nil
}

func (g *GormStore) Migrate() error {
	return model.Migrate(g.db)
}

func (g *GormStore) Transaction(ctx context.Context, f func(tx Store) error) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return f(&GormStore{db: tx})
	})
}
