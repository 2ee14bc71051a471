package orm

import (
	"context"
	"fmt"
)

func (db *DB) CreateGrant(ctx context.Context, grant *PermissionGrant) error {
	if grant == nil || grant.Permission == "" || grant.TargetID == "" {
		return &BadInputError{Reason: "grant requires a permission and a target"}
	}
	if grant.TargetType != TargetGroup && grant.TargetType != TargetAuth {
		return &BadInputError{
			Reason: fmt.Sprintf("unknown grant target type %q", grant.TargetType),
		}
	}
	if grant.ID == "" {
		grant.ID = NewID()
	}

	return wrapErrorWithDetails(
		db.gorm.WithContext(ctx).Create(grant).Error,
		"create grant",
		fmt.Sprintf(
			"permission=%q, target=%s/%s",
			grant.Permission,
			grant.TargetType,
			grant.TargetID,
		),
	)
}

// GrantsForTarget returns every grant aimed at one target. When project is
// non-nil, server-scoped grants are still included; project-scoped grants
// must match exactly.
func (db *DB) GrantsForTarget(
	ctx context.Context,
	targetType, targetID string,
	project *string,
) ([]PermissionGrant, error) {
	if targetID == "" {
		return nil, &BadInputError{Reason: "grant target id must be provided"}
	}

	query := db.gorm.WithContext(ctx).
		Where("target_type = ? AND target_id = ?", targetType, targetID)
	if project != nil {
		query = query.Where("project IS NULL OR project = ?", *project)
	}

	var grants []PermissionGrant
	if err := query.Find(&grants).Error; err != nil {
		return nil, wrapErrorWithDetails(
			err,
			"get grants for target",
			fmt.Sprintf("target=%s/%s", targetType, targetID),
		)
	}

	return grants, nil
}

// GrantsForTargets aggregates grants across a principal id and its group
// ids in one query. Target type is deliberately not filtered: ids are
// unique across principals and groups.
func (db *DB) GrantsForTargets(
	ctx context.Context,
	targetIDs []string,
	project *string,
) ([]PermissionGrant, error) {
	if len(targetIDs) == 0 {
		return nil, nil
	}

	query := db.gorm.WithContext(ctx).Where("target_id IN ?", targetIDs)
	if project != nil {
		query = query.Where("project IS NULL OR project = ?", *project)
	}

	var grants []PermissionGrant
	if err := query.Find(&grants).Error; err != nil {
		return nil, wrapErrorWithDetails(
			err,
			"get grants for targets",
			fmt.Sprintf("targets=%v", targetIDs),
		)
	}

	return grants, nil
}

// DeleteGrant removes every grant matching the (target, permission, project)
// triple. Duplicates are logically idempotent, so all copies go at once.
func (db *DB) DeleteGrant(
	ctx context.Context,
	targetType, targetID, permission string,
	project *string,
) error {
	if targetID == "" || permission == "" {
		return &BadInputError{Reason: "grant target and permission must be provided"}
	}

	query := db.gorm.WithContext(ctx).
		Where("target_type = ? AND target_id = ? AND permission = ?",
			targetType, targetID, permission)
	if project == nil {
		query = query.Where("project IS NULL")
	} else {
		query = query.Where("project = ?", *project)
	}

	return wrapErrorWithDetails(
		query.Delete(&PermissionGrant{}).Error,
		"delete grant",
		fmt.Sprintf("permission=%q, target=%s/%s", permission, targetType, targetID),
	)
}
