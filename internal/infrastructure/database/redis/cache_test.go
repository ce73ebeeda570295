package redis

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/ClinTerm-Intelligence/pkg/errors"
)

type CacheTestSuite struct {
	suite.Suite
	mock  redismock.ClientMock
	cache Cache
}

func (s *CacheTestSuite) SetupTest() {
	db, mock := redismock.NewClientMock()
	s.mock = mock
	client := NewClientFrom(db, "mock", logging.NewNopLogger())
	s.cache = NewRedisCache(client, nil,
		WithPrefix("test:"),
		WithDefaultTTL(time.Hour),
		WithNullCacheTTL(time.Minute),
		WithJitter(0))
}

func (s *CacheTestSuite) TearDownTest() {
	assert.NoError(s.T(), s.mock.ExpectationsWereMet())
}

type entry struct {
	Code    string `json:"code"`
	Display string `json:"display"`
}

func (s *CacheTestSuite) TestGet_Hit() {
	val := entry{Code: "386661006", Display: "Fever"}
	data, _ := json.Marshal(val)
	s.mock.ExpectGet("test:k1").SetVal(string(data))

	var dest entry
	s.NoError(s.cache.Get(context.Background(), "k1", &dest))
	s.Equal(val, dest)
}

func (s *CacheTestSuite) TestGet_Miss() {
	s.mock.ExpectGet("test:k1").RedisNil()

	var dest entry
	err := s.cache.Get(context.Background(), "k1", &dest)
	s.Equal(ErrCacheMiss, err)
	s.True(pkgerrors.IsNotFound(err))
	s.False(IsNegative(err))
}

func (s *CacheTestSuite) TestGet_NegativeEntry() {
	s.mock.ExpectGet("test:k1").SetVal(nullMarker)

	var dest entry
	err := s.cache.Get(context.Background(), "k1", &dest)
	s.True(IsNegative(err))
	s.True(IsMiss(err))
}

func (s *CacheTestSuite) TestGet_BackendError() {
	s.mock.ExpectGet("test:k1").SetErr(stderrors.New("connection reset"))

	var dest entry
	err := s.cache.Get(context.Background(), "k1", &dest)
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeCacheError))
	s.False(IsMiss(err))
}

func (s *CacheTestSuite) TestSet_DefaultTTL() {
	val := entry{Code: "1", Display: "x"}
	data, _ := json.Marshal(val)
	s.mock.ExpectSet("test:k1", data, time.Hour).SetVal("OK")

	s.NoError(s.cache.Set(context.Background(), "k1", val, 0))
}

func (s *CacheTestSuite) TestSetNegative() {
	s.mock.ExpectSet("test:k1", nullMarker, time.Minute).SetVal("OK")

	s.NoError(s.cache.SetNegative(context.Background(), "k1", 0))
}

func (s *CacheTestSuite) TestDelete() {
	s.mock.ExpectDel("test:k1", "test:k2").SetVal(2)

	s.NoError(s.cache.Delete(context.Background(), "k1", "k2"))
	s.NoError(s.cache.Delete(context.Background()))
}

func (s *CacheTestSuite) TestGetOrSet_Hit() {
	val := entry{Code: "1", Display: "x"}
	data, _ := json.Marshal(val)
	s.mock.ExpectGet("test:k1").SetVal(string(data))

	var calls int32
	var dest entry
	hit, err := s.cache.GetOrSet(context.Background(), "k1", &dest, time.Hour, func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return val, nil
	})
	s.NoError(err)
	s.True(hit)
	s.Equal(val, dest)
	s.Zero(atomic.LoadInt32(&calls))
}

func (s *CacheTestSuite) TestGetOrSet_MissLoadsAndStores() {
	val := []entry{{Code: "1", Display: "x"}}
	data, _ := json.Marshal(val)
	s.mock.ExpectGet("test:k1").RedisNil()
	s.mock.ExpectSet("test:k1", []byte(data), 2*time.Hour).SetVal("OK")

	var dest []entry
	hit, err := s.cache.GetOrSet(context.Background(), "k1", &dest, 2*time.Hour, func(ctx context.Context) (interface{}, error) {
		return val, nil
	})
	s.NoError(err)
	s.False(hit)
	s.Equal(val, dest)
}

func (s *CacheTestSuite) TestGetOrSet_NilStoresNegative() {
	s.mock.ExpectGet("test:k1").RedisNil()
	s.mock.ExpectSet("test:k1", nullMarker, time.Minute).SetVal("OK")

	var dest []entry
	_, err := s.cache.GetOrSet(context.Background(), "k1", &dest, time.Hour, func(ctx context.Context) (interface{}, error) {
		return nil, nil
	})
	s.True(IsNegative(err))
}

func (s *CacheTestSuite) TestGetOrSet_LoaderErrorNotCached() {
	s.mock.ExpectGet("test:k1").RedisNil()

	boom := stderrors.New("upstream down")
	var dest []entry
	_, err := s.cache.GetOrSet(context.Background(), "k1", &dest, time.Hour, func(ctx context.Context) (interface{}, error) {
		return nil, boom
	})
	s.Equal(boom, err)
}

func (s *CacheTestSuite) TestGetOrSet_WaiterOutlivesLeaderDeadline() {
	val := []entry{{Code: "1", Display: "x"}}
	data, _ := json.Marshal(val)
	s.mock.ExpectGet("test:k1").RedisNil()
	s.mock.ExpectGet("test:k1").RedisNil()
	s.mock.ExpectSet("test:k1", []byte(data), time.Hour).SetVal("OK")

	leaderCtx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	started := make(chan struct{})
	leaderDone := make(chan error, 1)
	go func() {
		var dest []entry
		_, err := s.cache.GetOrSet(leaderCtx, "k1", &dest, time.Hour, func(ctx context.Context) (interface{}, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		})
		leaderDone <- err
	}()
	<-started

	var dest []entry
	hit, err := s.cache.GetOrSet(context.Background(), "k1", &dest, time.Hour, func(ctx context.Context) (interface{}, error) {
		return val, nil
	})
	s.NoError(err)
	s.False(hit, "a caller that waited on a load is not a cache hit")
	s.Equal(val, dest)
	s.ErrorIs(<-leaderDone, context.DeadlineExceeded)
}

func (s *CacheTestSuite) TestGetOrSet_CallerContextCancelled() {
	s.mock.ExpectGet("test:k1").RedisNil()

	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	defer close(release)
	var dest []entry
	_, err := s.cache.GetOrSet(ctx, "k1", &dest, time.Hour, func(context.Context) (interface{}, error) {
		cancel()
		<-release
		return nil, nil
	})
	s.ErrorIs(err, context.Canceled)
}

func TestCacheSuite(t *testing.T) {
	suite.Run(t, new(CacheTestSuite))
}
