package minio

import (
	"context"
	"errors"
	"io"
	"net/url"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ClinTerm-Intelligence/internal/config"
	"github.com/turtacn/ClinTerm-Intelligence/internal/testutil"
	pkgerrors "github.com/turtacn/ClinTerm-Intelligence/pkg/errors"
)

type MockObjectAPI struct {
	mock.Mock
}

func (m *MockObjectAPI) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	args := m.Called(ctx, bucketName)
	return args.Bool(0), args.Error(1)
}

func (m *MockObjectAPI) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	return m.Called(ctx, bucketName, opts).Error(0)
}

func (m *MockObjectAPI) SetBucketLifecycle(ctx context.Context, bucketName string, cfg *lifecycle.Configuration) error {
	return m.Called(ctx, bucketName, cfg).Error(0)
}

func (m *MockObjectAPI) ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	return m.Called(ctx, bucketName, opts).Get(0).(<-chan minio.ObjectInfo)
}

func (m *MockObjectAPI) PresignedGetObject(ctx context.Context, bucketName, objectName string, expiry time.Duration, reqParams url.Values) (*url.URL, error) {
	args := m.Called(ctx, bucketName, objectName, expiry, reqParams)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*url.URL), args.Error(1)
}

func (m *MockObjectAPI) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	args := m.Called(ctx, bucketName, objectName, reader, objectSize, opts)
	return args.Get(0).(minio.UploadInfo), args.Error(1)
}

// GetObject can only fail here: *minio.Object cannot be built without a server.
func (m *MockObjectAPI) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error) {
	args := m.Called(ctx, bucketName, objectName, opts)
	return nil, args.Error(1)
}

func (m *MockObjectAPI) RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error {
	return m.Called(ctx, bucketName, objectName, opts).Error(0)
}

func (m *MockObjectAPI) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	args := m.Called(ctx, bucketName, objectName, opts)
	return args.Get(0).(minio.ObjectInfo), args.Error(1)
}

func TestNewClient_RequiresEndpointAndBucket(t *testing.T) {
	_, err := NewClient(context.Background(), config.MinIOConfig{Endpoint: "localhost:9000"}, nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeInvalidConfig))
}

func TestEnsureBucket_CreatesMissingBucket(t *testing.T) {
	api := new(MockObjectAPI)
	api.On("BucketExists", mock.Anything, "reports").Return(false, nil)
	api.On("MakeBucket", mock.Anything, "reports", minio.MakeBucketOptions{Region: "us-east-1"}).Return(nil)
	api.On("SetBucketLifecycle", mock.Anything, "reports", mock.MatchedBy(func(cfg *lifecycle.Configuration) bool {
		return len(cfg.Rules) == 1 &&
			cfg.Rules[0].RuleFilter.Prefix == "predictions/" &&
			int(cfg.Rules[0].Expiration.Days) == PredictionRetentionDays
	})).Return(nil)

	c := NewClientWithAPI(api, "reports", "us-east-1", nil)
	require.NoError(t, c.EnsureBucket(context.Background()))
	api.AssertExpectations(t)
}

func TestEnsureBucket_LifecycleFailureIsLogged(t *testing.T) {
	api := new(MockObjectAPI)
	api.On("BucketExists", mock.Anything, "reports").Return(true, nil)
	api.On("SetBucketLifecycle", mock.Anything, "reports", mock.Anything).Return(errors.New("not implemented"))
	logger := testutil.NewMockLogger()

	c := NewClientWithAPI(api, "reports", "", logger)
	require.NoError(t, c.EnsureBucket(context.Background()))
	assert.True(t, logger.HasMessage("warn", "failed to set bucket lifecycle"))
	api.AssertNotCalled(t, "MakeBucket", mock.Anything, mock.Anything, mock.Anything)
}

func TestEnsureBucket_Unreachable(t *testing.T) {
	api := new(MockObjectAPI)
	api.On("BucketExists", mock.Anything, "reports").Return(false, errors.New("dial tcp: refused"))

	err := NewClientWithAPI(api, "reports", "", nil).EnsureBucket(context.Background())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeServiceUnavailable))
}

func TestHealthCheck(t *testing.T) {
	api := new(MockObjectAPI)
	api.On("BucketExists", mock.Anything, "reports").Return(true, nil).Once()
	api.On("BucketExists", mock.Anything, "reports").Return(false, nil).Once()

	c := NewClientWithAPI(api, "reports", "", nil)
	assert.NoError(t, c.HealthCheck(context.Background()))
	assert.True(t, pkgerrors.IsCode(c.HealthCheck(context.Background()), pkgerrors.ErrCodeNotFound))

	require.NoError(t, c.Close())
	assert.Equal(t, ErrClientClosed, c.HealthCheck(context.Background()))
}

func TestPresignedURL_DefaultExpiry(t *testing.T) {
	u, _ := url.Parse("http://minio/reports/k?sig=1")
	api := new(MockObjectAPI)
	api.On("PresignedGetObject", mock.Anything, "reports", "k", time.Hour, url.Values(nil)).Return(u, nil)

	got, err := NewClientWithAPI(api, "reports", "", nil).PresignedURL(context.Background(), "k", 0)
	require.NoError(t, err)
	assert.Equal(t, u.String(), got)
}
