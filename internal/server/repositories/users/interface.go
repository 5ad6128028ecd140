// Package users stores the accounts devices authenticate as.
package users

import (
	"context"

	"github.com/pasturelabs/herdsync/internal/server/models"
)

type Repository interface {
	// Create stores a new user. A taken username returns
	// common.ErrDuplicateKey.
	Create(ctx context.Context, user *models.User) error

	// GetByUsername returns a user, or common.ErrNotFound.
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}
