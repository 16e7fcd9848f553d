package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

func TestStatic_SignInOut(t *testing.T) {
	ctx := context.Background()
	s := NewStatic(nil)

	_, err := s.Current(ctx)
	assert.ErrorIs(t, err, domain.ErrNoSession)

	u := &domain.User{ID: 7, Name: "Ash"}
	s.SignIn(u)
	u.Name = "changed"

	got, err := s.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.ID)
	assert.Equal(t, "Ash", got.Name)

	s.SignOut()
	_, err = s.Current(ctx)
	assert.ErrorIs(t, err, domain.ErrNoSession)
}

func TestUserContext(t *testing.T) {
	_, ok := UserFrom(context.Background())
	assert.False(t, ok)

	ctx := WithUser(context.Background(), &domain.User{ID: 3})
	u, ok := UserFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, int64(3), u.ID)
}
