//go:build integration

package quota_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"verifyd/internal/quota"
	id "verifyd/pkg/domain"
	"verifyd/pkg/platform/sentinel"
	"verifyd/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *quota.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = quota.NewRedis(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestGetUnknownIdentity() {
	_, err := s.store.Get(context.Background(), id.Identity("nobody@example.com"))
	s.Require().Error(err)
	s.True(errors.Is(err, sentinel.ErrNotFound))
}

func (s *RedisStoreSuite) TestEnsureDoesNotResetCounter() {
	ctx := context.Background()
	identity := id.Identity("alice@example.com")

	_, err := s.store.Increment(ctx, identity)
	s.Require().NoError(err)

	record, err := s.store.Ensure(ctx, identity)
	s.Require().NoError(err)
	s.Equal(1, record.UploadsUsed)
}

func (s *RedisStoreSuite) TestSetSubscribed() {
	ctx := context.Background()
	identity := id.Identity("vip@example.com")

	s.Require().NoError(s.store.SetSubscribed(ctx, identity))

	record, err := s.store.Get(ctx, identity)
	s.Require().NoError(err)
	s.True(record.Subscribed)
	s.Equal(0, record.UploadsUsed)
	s.False(record.CreatedAt.IsZero(), "subscribing an unknown identity seeds created_at")
}

func (s *RedisStoreSuite) TestSetSubscribedKeepsExistingCreatedAt() {
	ctx := context.Background()
	identity := id.Identity("returning@example.com")

	created, err := s.store.Ensure(ctx, identity)
	s.Require().NoError(err)

	s.Require().NoError(s.store.SetSubscribed(ctx, identity))

	record, err := s.store.Get(ctx, identity)
	s.Require().NoError(err)
	s.Equal(created.CreatedAt, record.CreatedAt)
}

// TestConcurrentIncrements verifies HINCRBY makes the counter linearizable
// per identity.
func (s *RedisStoreSuite) TestConcurrentIncrements() {
	ctx := context.Background()
	identity := id.Identity("busy@example.com")
	const goroutines = 50

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			_, err := s.store.Increment(ctx, identity)
			s.NoError(err)
		}()
	}
	wg.Wait()

	record, err := s.store.Get(ctx, identity)
	s.Require().NoError(err)
	s.Equal(goroutines, record.UploadsUsed)
}
