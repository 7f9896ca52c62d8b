package reports

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	err   error
	input *s3.PutObjectInput
	body  []byte
}

func (f *fakeUploader) Upload(_ context.Context, input *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = input
	f.body, _ = io.ReadAll(input.Body)
	return &manager.UploadOutput{}, nil
}

var at = time.Date(2026, 7, 1, 23, 30, 0, 0, time.UTC)

type sample struct {
	Zeta  string             `json:"zeta"`
	Alpha map[string]float64 `json:"alpha"`
	Items []int              `json:"items"`
}

func TestCanonicalSortsKeysAtEveryDepth(t *testing.T) {
	b, err := Canonical(sample{Zeta: "z", Alpha: map[string]float64{"b": 0.25, "a": 1}, Items: []int{3, 1}})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":{"a":1,"b":0.25},"items":[3,1],"zeta":"z"}`, string(b))
}

func TestObjectKeyLayout(t *testing.T) {
	assert.Equal(t, "leadops/reports/2026/07/01/r-1.json", ObjectKey("leadops", "reports", "r-1", at))
	assert.Equal(t, "reports/2026/07/01/r-1.json", ObjectKey("", "reports", "r-1", at))
	// Keys are bucketed by the UTC calendar day.
	east := time.FixedZone("UTC+3", 3*60*60)
	assert.Equal(t, "reports/2026/07/02/r-1.json", ObjectKey("", "reports", "r-1", at.Add(time.Hour).In(east)))
}

func TestS3ArchiverUploadsEncryptedCanonicalJSON(t *testing.T) {
	up := &fakeUploader{}
	a := newS3Archiver(up, "leadops-archive", "prod")

	key, err := a.Archive(context.Background(), "reports", "r-1", at, map[string]int{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, "prod/reports/2026/07/01/r-1.json", key)
	require.NotNil(t, up.input)
	assert.Equal(t, "leadops-archive", aws.ToString(up.input.Bucket))
	assert.Equal(t, key, aws.ToString(up.input.Key))
	assert.Equal(t, "application/json", aws.ToString(up.input.ContentType))
	assert.Equal(t, s3types.ServerSideEncryptionAes256, up.input.ServerSideEncryption)
	assert.Equal(t, `{"a":1,"b":2}`, string(up.body))
}

func TestS3ArchiverWrapsUploadErrors(t *testing.T) {
	a := newS3Archiver(&fakeUploader{err: errors.New("access denied")}, "bucket", "")
	_, err := a.Archive(context.Background(), "reports", "r-1", at, map[string]int{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reports/2026/07/01/r-1.json")
	assert.Contains(t, err.Error(), "access denied")

	_, err = a.Archive(context.Background(), "reports", "", at, nil)
	assert.Error(t, err)
}

func TestNewS3ArchiverRequiresBucket(t *testing.T) {
	_, err := NewS3Archiver(context.Background(), "", "")
	assert.Error(t, err)
}

func TestMemoryArchiver(t *testing.T) {
	m := NewMemoryArchiver("")
	key, err := m.Archive(context.Background(), "reports", "r-2", at, map[string]string{"status": "OPERATIONAL"})
	require.NoError(t, err)
	body, ok := m.Object(key)
	require.True(t, ok)
	assert.Equal(t, `{"status":"OPERATIONAL"}`, string(body))
	assert.Equal(t, []string{"reports/2026/07/01/r-2.json"}, m.Keys())
}
