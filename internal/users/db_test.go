package users_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"nesavent/internal/database/sqlitetest"
	"nesavent/internal/models"
	"nesavent/internal/users"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetBuyer(t *testing.T) {
	bunDB := sqlitetest.Open(t)
	ctx := context.Background()

	_, err := bunDB.NewInsert().Model(&models.User{
		ID:                        "u-1",
		Name:                      "Sari",
		Email:                     "sari@kampus.ac.id",
		Role:                      models.RoleMahasiswa,
		StudentVerificationStatus: models.VerificationApproved,
		CreatedAt:                 time.Now(),
	}).Exec(ctx)
	require.NoError(t, err)

	repo := &users.DB{Bun: bunDB}

	buyer, err := repo.GetBuyer(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleMahasiswa, buyer.Role)
	assert.Equal(t, models.VerificationApproved, buyer.Verification)
	assert.Equal(t, "Sari", buyer.Name)

	_, err = repo.GetBuyer(ctx, "missing")
	assert.True(t, errors.Is(err, users.ErrUserNotFound))
}
