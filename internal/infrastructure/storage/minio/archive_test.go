package minio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	pkgerrors "github.com/turtacn/ClinTerm-Intelligence/pkg/errors"
)

type ArchiveTestSuite struct {
	suite.Suite
	api     *MockObjectAPI
	archive *Archive
	now     time.Time
}

func (s *ArchiveTestSuite) SetupTest() {
	s.api = new(MockObjectAPI)
	s.now = time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
	s.archive = NewArchive(NewClientWithAPI(s.api, "reports", "", nil), nil, nil)
	s.archive.now = func() time.Time { return s.now }
}

func (s *ArchiveTestSuite) TearDownTest() {
	s.api.AssertExpectations(s.T())
}

func (s *ArchiveTestSuite) TestObjectKey() {
	s.Equal("evaluations/2024/03/09/run-1/report.json", ObjectKey(KindEvaluations, "run-1", "report.json", s.now))
}

func (s *ArchiveTestSuite) TestPutJSON() {
	key := "evaluations/2024/03/09/run-1/report.json"
	s.api.On("PutObject", mock.Anything, "reports", key, mock.Anything, int64(len("{\n  \"macro_iou\": 0.5\n}")),
		mock.MatchedBy(func(o minio.PutObjectOptions) bool {
			return o.ContentType == "application/json" && o.UserTags["run_id"] == "run-1"
		})).
		Return(minio.UploadInfo{Bucket: "reports", Key: key, ETag: "abc", Size: 22}, nil)

	obj, err := s.archive.PutJSON(context.Background(), KindEvaluations, "run-1", "report.json", map[string]float64{"macro_iou": 0.5})
	s.Require().NoError(err)
	s.Equal(key, obj.Key)
	s.Equal("abc", obj.ETag)
	s.Equal(int64(22), obj.Size)
}

func (s *ArchiveTestSuite) TestPut_Invalid() {
	_, err := s.archive.Put(context.Background(), PutRequest{Kind: KindPredictions, RunID: "r", Name: "p.csv"})
	s.Equal(ErrInvalidRequest, err)
}

func (s *ArchiveTestSuite) TestPut_UploadFails() {
	s.api.On("PutObject", mock.Anything, "reports", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(minio.UploadInfo{}, errors.New("503"))

	_, err := s.archive.Put(context.Background(), PutRequest{Kind: KindPredictions, RunID: "r", Name: "p.csv", Data: []byte("x")})
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeStorageError))
}

func (s *ArchiveTestSuite) TestGet_NotFound() {
	s.api.On("GetObject", mock.Anything, "reports", "missing", mock.Anything).
		Return(nil, minio.ErrorResponse{Code: "NoSuchKey"})

	_, err := s.archive.Get(context.Background(), "missing")
	s.True(pkgerrors.IsNotFound(err))
}

func (s *ArchiveTestSuite) TestStat() {
	s.api.On("StatObject", mock.Anything, "reports", "k", mock.Anything).
		Return(minio.ObjectInfo{Key: "k", Size: 9, ContentType: "text/csv", LastModified: s.now}, nil)

	obj, err := s.archive.Stat(context.Background(), "k")
	s.Require().NoError(err)
	s.Equal(int64(9), obj.Size)
	s.Equal("text/csv", obj.ContentType)
}

func (s *ArchiveTestSuite) TestList() {
	ch := make(chan minio.ObjectInfo, 4)
	ch <- minio.ObjectInfo{Key: "evaluations/2024/"}
	ch <- minio.ObjectInfo{Key: "evaluations/2024/03/09/a/report.json", Size: 1}
	ch <- minio.ObjectInfo{Key: "evaluations/2024/03/09/b/report.json", Size: 2}
	ch <- minio.ObjectInfo{Key: "evaluations/2024/03/09/c/report.json", Size: 3}
	close(ch)
	s.api.On("ListObjects", mock.Anything, "reports", minio.ListObjectsOptions{Prefix: "evaluations/", Recursive: true}).
		Return((<-chan minio.ObjectInfo)(ch))

	objs, err := s.archive.List(context.Background(), KindEvaluations, 2)
	s.Require().NoError(err)
	s.Require().Len(objs, 2)
	s.Equal("evaluations/2024/03/09/a/report.json", objs[0].Key)
}

func (s *ArchiveTestSuite) TestList_Error() {
	ch := make(chan minio.ObjectInfo, 1)
	ch <- minio.ObjectInfo{Err: errors.New("denied")}
	close(ch)
	s.api.On("ListObjects", mock.Anything, "reports", mock.Anything).Return((<-chan minio.ObjectInfo)(ch))

	_, err := s.archive.List(context.Background(), KindPredictions, 0)
	s.Error(err)
}

func (s *ArchiveTestSuite) TestDelete() {
	s.api.On("RemoveObject", mock.Anything, "reports", "k", mock.Anything).Return(nil)
	s.NoError(s.archive.Delete(context.Background(), "k"))
}

func TestArchiveSuite(t *testing.T) {
	suite.Run(t, new(ArchiveTestSuite))
}
