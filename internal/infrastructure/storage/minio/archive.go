package minio

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ClinTerm-Intelligence/pkg/errors"
)

var (
	ErrObjectNotFound = errors.New(errors.ErrCodeNotFound, "object not found")
	ErrInvalidRequest = errors.New(errors.ErrCodeValidation, "invalid archive request")
)

// Kind groups archived objects under a key prefix.
type Kind string

const (
	KindEvaluations Kind = "evaluations"
	KindPredictions Kind = "predictions"
)

func (k Kind) prefix() string { return string(k) + "/" }

// ObjectKey builds <kind>/<yyyy>/<mm>/<dd>/<runID>/<name>.
func ObjectKey(kind Kind, runID, name string, at time.Time) string {
	return path.Join(string(kind), at.UTC().Format("2006/01/02"), runID, name)
}

// ArchivedObject describes a stored report.
type ArchivedObject struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size"`
	ETag         string            `json:"etag,omitempty"`
	ContentType  string            `json:"content_type,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// PutRequest is one object to archive.
type PutRequest struct {
	Kind        Kind
	RunID       string
	Name        string
	Data        []byte
	ContentType string
	Metadata    map[string]string
}

// Archive stores evaluation reports and prediction exports.
type Archive struct {
	client  *Client
	logger  logging.Logger
	metrics *prometheus.AppMetrics
	now     func() time.Time
}

// NewArchive returns an Archive on client. metrics may be nil.
func NewArchive(client *Client, log logging.Logger, metrics *prometheus.AppMetrics) *Archive {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Archive{client: client, logger: log.Named("archive"), metrics: metrics, now: time.Now}
}

// Put uploads req and returns the stored object's description.
func (a *Archive) Put(ctx context.Context, req PutRequest) (obj *ArchivedObject, err error) {
	if req.Kind == "" || req.RunID == "" || req.Name == "" || len(req.Data) == 0 {
		return nil, ErrInvalidRequest
	}
	if a.client.isClosed() {
		return nil, ErrClientClosed
	}
	defer func() { prometheus.RecordSinkWrite(a.metrics, "minio", err) }()

	key := ObjectKey(req.Kind, req.RunID, req.Name, a.now())
	opts := minio.PutObjectOptions{
		ContentType:  req.ContentType,
		UserMetadata: req.Metadata,
		UserTags:     map[string]string{"kind": string(req.Kind), "run_id": req.RunID},
	}

	info, err := a.client.api.PutObject(ctx, a.client.bucket, key, bytes.NewReader(req.Data), int64(len(req.Data)), opts)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrCodeStorageError, "failed to archive %s", key)
	}

	a.logger.Info("report archived",
		logging.String("key", key),
		logging.Int64("size", info.Size))
	return &ArchivedObject{
		Key:          key,
		Size:         info.Size,
		ETag:         info.ETag,
		ContentType:  req.ContentType,
		Metadata:     req.Metadata,
		LastModified: a.now().UTC(),
	}, nil
}

// PutJSON marshals v with indentation and archives it as name.
func (a *Archive) PutJSON(ctx context.Context, kind Kind, runID, name string, v interface{}) (*ArchivedObject, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal report")
	}
	return a.Put(ctx, PutRequest{Kind: kind, RunID: runID, Name: name, Data: data, ContentType: "application/json"})
}

// Get downloads key.
func (a *Archive) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := a.client.api.GetObject(ctx, a.client.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapNotFound(err, key)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, mapNotFound(err, key)
	}
	return data, nil
}

// Stat returns the description of key.
func (a *Archive) Stat(ctx context.Context, key string) (*ArchivedObject, error) {
	info, err := a.client.api.StatObject(ctx, a.client.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, mapNotFound(err, key)
	}
	return &ArchivedObject{
		Key:          key,
		Size:         info.Size,
		ETag:         info.ETag,
		ContentType:  info.ContentType,
		Metadata:     info.UserMetadata,
		LastModified: info.LastModified,
	}, nil
}

// List returns up to limit archived objects of kind in key order. A limit of
// zero means no limit.
func (a *Archive) List(ctx context.Context, kind Kind, limit int) ([]*ArchivedObject, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make([]*ArchivedObject, 0)
	for info := range a.client.api.ListObjects(ctx, a.client.bucket, minio.ListObjectsOptions{
		Prefix:    kind.prefix(),
		Recursive: true,
	}) {
		if info.Err != nil {
			return nil, errors.Wrap(info.Err, errors.ErrCodeStorageError, "failed to list archive")
		}
		if strings.HasSuffix(info.Key, "/") {
			continue
		}
		out = append(out, &ArchivedObject{Key: info.Key, Size: info.Size, ETag: info.ETag, LastModified: info.LastModified})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Delete removes key.
func (a *Archive) Delete(ctx context.Context, key string) error {
	if err := a.client.api.RemoveObject(ctx, a.client.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return errors.Wrapf(err, errors.ErrCodeStorageError, "failed to delete %s", key)
	}
	return nil
}

func mapNotFound(err error, key string) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return errors.Wrapf(ErrObjectNotFound, errors.ErrCodeNotFound, "object %s not found", key)
	}
	return errors.Wrapf(err, errors.ErrCodeStorageError, "failed to read %s", key)
}
