package orm

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

func (db *DB) CreateUser(ctx context.Context, user *User) error {
	if user == nil || user.Username == "" {
		return &BadInputError{Reason: "user requires a username"}
	}
	if user.ID == "" {
		user.ID = NewID()
	}

	err := db.gorm.WithContext(ctx).Create(user).Error

	return wrapErrorWithDetails(
		err,
		"create user",
		fmt.Sprintf("username=%q", user.Username),
	)
}

func (db *DB) UserByID(ctx context.Context, id string) (*User, error) {
	if id == "" {
		return nil, &BadInputError{Reason: "user id must be provided"}
	}

	var user User
	err := db.gorm.WithContext(ctx).Where(&User{ID: id}).First(&user).Error
	if err != nil {
		return nil, wrapErrorWithDetails(err, "get user by id", fmt.Sprintf("id=%q", id))
	}

	return &user, nil
}

func (db *DB) UserByUsername(ctx context.Context, username string) (*User, error) {
	if username == "" {
		return nil, &BadInputError{Reason: "username must be provided"}
	}

	var user User
	err := db.gorm.WithContext(ctx).Where(&User{Username: username}).First(&user).Error
	if err != nil {
		return nil, wrapErrorWithDetails(
			err,
			"get user by username",
			fmt.Sprintf("username=%q", username),
		)
	}

	return &user, nil
}

func (db *DB) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	err := db.gorm.WithContext(ctx).Order("username").Find(&users).Error
	if err != nil {
		return nil, wrapErrorWithDetails(err, "list users", "all")
	}

	return users, nil
}

// SaveUser upserts the full row; used for group membership and password
// changes.
func (db *DB) SaveUser(ctx context.Context, user *User) error {
	if user == nil || user.ID == "" {
		return &BadInputError{Reason: "user with empty id"}
	}

	return wrapErrorWithDetails(
		db.gorm.WithContext(ctx).Save(user).Error,
		"save user",
		fmt.Sprintf("id=%q", user.ID),
	)
}

// DeleteUser removes the user together with grants targeting it and tokens
// linked to it, in one transaction. Cascading here keeps the grant table
// free of rows whose target no longer exists.
func (db *DB) DeleteUser(ctx context.Context, id string) error {
	if id == "" {
		return &BadInputError{Reason: "user id must be provided"}
	}

	//nolint:wrapcheck // Errors already wrapped inside the transaction
	return db.gorm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where(&User{ID: id}).Delete(&User{}).Error
		if err != nil {
			return wrapErrorWithDetails(err, "delete user", fmt.Sprintf("id=%q", id))
		}

		err = tx.Where("target_id = ?", id).Delete(&PermissionGrant{}).Error
		if err != nil {
			return wrapErrorWithDetails(
				err,
				"delete user grants",
				fmt.Sprintf("id=%q", id),
			)
		}

		err = tx.Where("linked_user = ?", id).Delete(&Token{}).Error

		return wrapErrorWithDetails(err, "delete user tokens", fmt.Sprintf("id=%q", id))
	})
}

func (db *DB) CreateToken(ctx context.Context, token *Token) error {
	if token == nil || token.Secret == "" {
		return &BadInputError{Reason: "token requires a secret"}
	}
	if token.ID == "" {
		token.ID = NewID()
	}

	return wrapErrorWithDetails(
		db.gorm.WithContext(ctx).Create(token).Error,
		"create token",
		fmt.Sprintf("id=%q", token.ID),
	)
}

func (db *DB) TokenByID(ctx context.Context, id string) (*Token, error) {
	if id == "" {
		return nil, &BadInputError{Reason: "token id must be provided"}
	}

	var token Token
	err := db.gorm.WithContext(ctx).Where(&Token{ID: id}).First(&token).Error
	if err != nil {
		return nil, wrapErrorWithDetails(err, "get token by id", fmt.Sprintf("id=%q", id))
	}

	return &token, nil
}

func (db *DB) TokenBySecret(ctx context.Context, secret string) (*Token, error) {
	if secret == "" {
		return nil, &BadInputError{Reason: "token secret must be provided"}
	}

	var token Token
	err := db.gorm.WithContext(ctx).Where(&Token{Secret: secret}).First(&token).Error
	if err != nil {
		return nil, wrapErrorWithDetails(err, "get token by secret", "secret=<redacted>")
	}

	return &token, nil
}

func (db *DB) TokensForUser(ctx context.Context, userID string) ([]Token, error) {
	if userID == "" {
		return nil, &BadInputError{Reason: "user id must be provided"}
	}

	var tokens []Token
	err := db.gorm.WithContext(ctx).Where("linked_user = ?", userID).Find(&tokens).Error
	if err != nil {
		return nil, wrapErrorWithDetails(
			err,
			"list tokens for user",
			fmt.Sprintf("user=%q", userID),
		)
	}

	return tokens, nil
}

func (db *DB) SaveToken(ctx context.Context, token *Token) error {
	if token == nil || token.ID == "" {
		return &BadInputError{Reason: "token with empty id"}
	}

	return wrapErrorWithDetails(
		db.gorm.WithContext(ctx).Save(token).Error,
		"save token",
		fmt.Sprintf("id=%q", token.ID),
	)
}
