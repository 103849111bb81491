package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"nesavent/internal/apperr"
	"nesavent/internal/models"

	"github.com/uptrace/bun"
)

var ErrUserNotFound = apperr.New(apperr.NotFound, "user_not_found", "Pengguna tidak ditemukan")

// DB reads the identity store. Users are written by the identity service.
type DB struct {
	Bun *bun.DB
}

func (d *DB) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := d.Bun.NewSelect().
		Model(&user).
		Where("u.id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", id, err)
	}
	return &user, nil
}

// GetBuyer returns the identity snapshot the order engine checks quotas against.
func (d *DB) GetBuyer(ctx context.Context, id string) (models.Buyer, error) {
	user, err := d.GetUser(ctx, id)
	if err != nil {
		return models.Buyer{}, err
	}
	return user.AsBuyer(), nil
}
