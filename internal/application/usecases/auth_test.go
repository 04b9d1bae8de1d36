package usecases

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/slotmint/internal/domain/user"
	"github.com/example/slotmint/internal/internaltypes"
	"github.com/example/slotmint/internal/store/memstore"
)

func TestAuthService(t *testing.T) {
	ctx := context.Background()
	svc := AuthService{Users: memstore.NewUsers()}

	u, err := svc.Register(ctx, "bob", "correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, []byte("correct horse"), u.PasswordHash)

	_, err = svc.Register(ctx, "bob", "another password")
	assert.ErrorIs(t, err, user.ErrUsernameTaken)

	got, err := svc.VerifyPassword(ctx, "bob", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = svc.VerifyPassword(ctx, "bob", "wrong")
	assert.ErrorIs(t, err, internaltypes.ErrInvalidCredentials)
	_, err = svc.VerifyPassword(ctx, "nobody", "correct horse")
	assert.ErrorIs(t, err, internaltypes.ErrInvalidCredentials)
}

func TestNewUser_Validation(t *testing.T) {
	_, err := NewUser("x", "long enough")
	assert.ErrorIs(t, err, user.ErrInvalidUsername)
	_, err = NewUser("alice", "short")
	assert.ErrorIs(t, err, user.ErrWeakPassword)
}
