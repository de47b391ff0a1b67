package services

import (
	"context"
	"errors"
	"testing"

	"github.com/mfg-ops/ordrefab/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingFetcher struct {
	calls int
	err   error
}

func (f *countingFetcher) CurrentUser(context.Context) (models.User, error) {
	f.calls++
	if f.err != nil {
		return models.User{}, f.err
	}
	return models.User{ID: 4, Username: "planner", Role: models.RoleParametreur}, nil
}

func TestSessionServiceToken(t *testing.T) {
	token, err := NewSessionService("abc").Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	_, err = NewSessionService("").Token(context.Background())
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestSessionServiceCachesProfile(t *testing.T) {
	fetcher := &countingFetcher{}
	session := NewSessionService("abc")
	session.SetProfileFetcher(fetcher)

	for i := 0; i < 3; i++ {
		user, err := session.CurrentUser(context.Background())
		require.NoError(t, err)
		assert.Equal(t, uint(4), user.ID)
	}
	assert.Equal(t, 1, fetcher.calls)

	session.Forget()
	_, err := session.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.calls)
}

func TestSessionServiceDoesNotCacheFailures(t *testing.T) {
	fetcher := &countingFetcher{err: errors.New("offline")}
	session := NewSessionService("abc")
	session.SetProfileFetcher(fetcher)

	_, err := session.CurrentUser(context.Background())
	assert.Error(t, err)

	fetcher.err = nil
	user, err := session.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "planner", user.Username)
	assert.Equal(t, 2, fetcher.calls)
}

func TestSessionServiceWithoutFetcher(t *testing.T) {
	_, err := NewSessionService("abc").CurrentUser(context.Background())
	assert.Error(t, err)
}
