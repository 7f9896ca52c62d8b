package reports

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ObjectKey lays out archived documents as <prefix>/<kind>/YYYY/MM/DD/<id>.json.
func ObjectKey(prefix, kind, id string, at time.Time) string {
	year, month, day := at.UTC().Date()
	return path.Join(prefix, kind,
		fmt.Sprintf("%04d", year),
		fmt.Sprintf("%02d", int(month)),
		fmt.Sprintf("%02d", day),
		id+".json",
	)
}

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Archiver stores canonical report JSON in a bucket with SSE-S3 encryption.
type S3Archiver struct {
	bucket   string
	prefix   string
	uploader uploader
}

// NewS3Archiver loads credentials and region from the standard AWS environment.
func NewS3Archiver(ctx context.Context, bucket, prefix string) (*S3Archiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket required")
	}
	cfg, err := awsConfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newS3Archiver(manager.NewUploader(s3.NewFromConfig(cfg)), bucket, prefix), nil
}

func newS3Archiver(u uploader, bucket, prefix string) *S3Archiver {
	return &S3Archiver{bucket: bucket, prefix: prefix, uploader: u}
}

func (a *S3Archiver) Archive(ctx context.Context, kind, id string, at time.Time, v interface{}) (string, error) {
	if id == "" {
		return "", fmt.Errorf("archive %s: id required", kind)
	}
	body, err := Canonical(v)
	if err != nil {
		return "", err
	}
	key := ObjectKey(a.prefix, kind, id, at)
	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(a.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(body),
		ContentType:          aws.String("application/json"),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload %s: %w", key, err)
	}
	return key, nil
}

// MemoryArchiver keeps archived documents in process; used when no bucket is configured.
type MemoryArchiver struct {
	mu      sync.RWMutex
	prefix  string
	objects map[string][]byte
}

func NewMemoryArchiver(prefix string) *MemoryArchiver {
	return &MemoryArchiver{prefix: prefix, objects: map[string][]byte{}}
}

func (m *MemoryArchiver) Archive(_ context.Context, kind, id string, at time.Time, v interface{}) (string, error) {
	if id == "" {
		return "", fmt.Errorf("archive %s: id required", kind)
	}
	body, err := Canonical(v)
	if err != nil {
		return "", err
	}
	key := ObjectKey(m.prefix, kind, id, at)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = body
	return key, nil
}

func (m *MemoryArchiver) Object(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.objects[key]
	return append([]byte(nil), b...), ok
}

// Keys returns every stored key in lexical order.
func (m *MemoryArchiver) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
