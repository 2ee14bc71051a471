package orm

import (
	"context"
	"fmt"
	"slices"

	"gorm.io/gorm"
)

func (db *DB) CreateGroup(ctx context.Context, group *Group) error {
	if group == nil || group.Name == "" {
		return &BadInputError{Reason: "group requires a name"}
	}
	if group.ID == "" {
		group.ID = NewID()
	}

	return wrapErrorWithDetails(
		db.gorm.WithContext(ctx).Create(group).Error,
		"create group",
		fmt.Sprintf("name=%q", group.Name),
	)
}

func (db *DB) GroupByID(ctx context.Context, id string) (*Group, error) {
	if id == "" {
		return nil, &BadInputError{Reason: "group id must be provided"}
	}

	var group Group
	err := db.gorm.WithContext(ctx).Where(&Group{ID: id}).First(&group).Error
	if err != nil {
		return nil, wrapErrorWithDetails(err, "get group by id", fmt.Sprintf("id=%q", id))
	}

	return &group, nil
}

func (db *DB) GroupByName(ctx context.Context, name string) (*Group, error) {
	if name == "" {
		return nil, &BadInputError{Reason: "group name must be provided"}
	}

	var group Group
	err := db.gorm.WithContext(ctx).Where(&Group{Name: name}).First(&group).Error
	if err != nil {
		return nil, wrapErrorWithDetails(
			err,
			"get group by name",
			fmt.Sprintf("name=%q", name),
		)
	}

	return &group, nil
}

func (db *DB) ListGroups(ctx context.Context) ([]Group, error) {
	var groups []Group
	err := db.gorm.WithContext(ctx).Order("name").Find(&groups).Error
	if err != nil {
		return nil, wrapErrorWithDetails(err, "list groups", "all")
	}

	return groups, nil
}

func (db *DB) GroupsByIDs(ctx context.Context, ids []string) ([]Group, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var groups []Group
	err := db.gorm.WithContext(ctx).Where("id IN ?", ids).Find(&groups).Error
	if err != nil {
		return nil, wrapErrorWithDetails(
			err,
			"get groups by ids",
			fmt.Sprintf("ids=%v", ids),
		)
	}

	return groups, nil
}

// MembersOf scans users and tokens for rows whose group list contains the
// group id. Linear over both tables; fine at registry scale.
func (db *DB) MembersOf(ctx context.Context, groupID string) ([]User, []Token, error) {
	if groupID == "" {
		return nil, nil, &BadInputError{Reason: "group id must be provided"}
	}

	users, err := db.ListUsers(ctx)
	if err != nil {
		return nil, nil, err
	}

	var tokens []Token
	err = db.gorm.WithContext(ctx).Find(&tokens).Error
	if err != nil {
		return nil, nil, wrapErrorWithDetails(
			err,
			"list tokens",
			fmt.Sprintf("group=%q", groupID),
		)
	}

	memberUsers := make([]User, 0, len(users))
	for _, user := range users {
		if slices.Contains(user.Groups, groupID) {
			memberUsers = append(memberUsers, user)
		}
	}

	memberTokens := make([]Token, 0, len(tokens))
	for _, token := range tokens {
		if slices.Contains(token.Groups, groupID) {
			memberTokens = append(memberTokens, token)
		}
	}

	return memberUsers, memberTokens, nil
}

// DeleteGroup removes the group, grants targeting it, and strips the group
// id from every member's group list, in one transaction.
func (db *DB) DeleteGroup(ctx context.Context, id string) error {
	if id == "" {
		return &BadInputError{Reason: "group id must be provided"}
	}

	memberUsers, memberTokens, err := db.MembersOf(ctx, id)
	if err != nil {
		return err
	}

	//nolint:wrapcheck // Errors already wrapped inside the transaction
	return db.gorm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where(&Group{ID: id}).Delete(&Group{}).Error
		if err != nil {
			return wrapErrorWithDetails(err, "delete group", fmt.Sprintf("id=%q", id))
		}

		err = tx.Where("target_id = ?", id).Delete(&PermissionGrant{}).Error
		if err != nil {
			return wrapErrorWithDetails(
				err,
				"delete group grants",
				fmt.Sprintf("id=%q", id),
			)
		}

		for _, user := range memberUsers {
			user.Groups = slices.DeleteFunc(
				user.Groups,
				func(g string) bool { return g == id },
			)
			if err := tx.Save(&user).Error; err != nil {
				return wrapErrorWithDetails(
					err,
					"save user",
					fmt.Sprintf("id=%q", user.ID),
				)
			}
		}
		for _, token := range memberTokens {
			token.Groups = slices.DeleteFunc(
				token.Groups,
				func(g string) bool { return g == id },
			)
			if err := tx.Save(&token).Error; err != nil {
				return wrapErrorWithDetails(
					err,
					"save token",
					fmt.Sprintf("id=%q", token.ID),
				)
			}
		}

		return nil
	})
}
