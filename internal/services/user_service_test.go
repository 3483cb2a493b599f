package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/altynaay/fieldops/internal/models"
	apperrors "github.com/altynaay/fieldops/pkg/errors"
)

func TestAuthenticate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.users.Authenticate(ctx, "alice", "Secret@12345")
	require.NoError(t, err)
	require.Equal(t, env.admin.ID, user.ID)

	_, err = env.users.Authenticate(ctx, "alice", "wrong")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	// Unknown user maps to the same error as a wrong password.
	_, err = env.users.Authenticate(ctx, "mallory", "Secret@12345")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestCreateUserNormalizesLegacyRole(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.users.Create(ctx, CreateUserInput{
		Username: "dave",
		Password: "Secret@12345",
		Role:     models.RoleLegacyUser,
	})
	require.NoError(t, err)
	require.Equal(t, models.RoleStaff, created.Role)

	_, err = env.users.Create(ctx, CreateUserInput{
		Username: "dave",
		Password: "Secret@12345",
	})
	require.Error(t, err)
	require.Equal(t, 409, apperrors.FromError(err).StatusCode)
}
