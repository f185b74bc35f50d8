//go:build integration

package governance

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	id "pagemd/pkg/domain"
	"pagemd/pkg/platform/sentinel"
	"pagemd/pkg/testutil/containers"
)

type RedisLockerSuite struct {
	suite.Suite
	redis  *containers.RedisContainer
	locker *RedisLocker
	ctx    context.Context
}

func TestRedisLockerSuite(t *testing.T) {
	suite.Run(t, new(RedisLockerSuite))
}

func (s *RedisLockerSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.ctx = context.Background()
}

func (s *RedisLockerSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
	s.locker = NewRedisLocker(s.redis.Client, nil)
}

func (s *RedisLockerSuite) TestLockIsExclusivePerClinic() {
	clinicID := id.ClinicID(uuid.New())

	release, err := s.locker.TryLock(s.ctx, clinicID)
	s.Require().NoError(err)

	_, err = s.locker.TryLock(s.ctx, clinicID)
	s.ErrorIs(err, sentinel.ErrLockHeld)

	release()

	release2, err := s.locker.TryLock(s.ctx, clinicID)
	s.Require().NoError(err)
	release2()
}

func (s *RedisLockerSuite) TestDifferentClinicsDoNotContend() {
	releaseA, err := s.locker.TryLock(s.ctx, id.ClinicID(uuid.New()))
	s.Require().NoError(err)
	defer releaseA()

	releaseB, err := s.locker.TryLock(s.ctx, id.ClinicID(uuid.New()))
	s.Require().NoError(err)
	releaseB()
}

func (s *RedisLockerSuite) TestLockKeyHasTTL() {
	clinicID := id.ClinicID(uuid.New())

	release, err := s.locker.TryLock(s.ctx, clinicID)
	s.Require().NoError(err)
	defer release()

	ttl, err := s.redis.Client.TTL(s.ctx, syncLockKey(clinicID)).Result()
	s.Require().NoError(err)
	s.Greater(ttl.Seconds(), 0.0)
	s.LessOrEqual(ttl, redisLockTTL)
}
