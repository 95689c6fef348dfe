package artifact

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "run/case/step-2.png", Key("run", "case", "step-2.png"))
	assert.Equal(t, "a/b", Key("", "a", "", "b"))
	assert.Equal(t, "etc/passwd", Key("../../etc/passwd"))
	assert.Equal(t, "x/y", Key(`x\y`))
	assert.Equal(t, "", Key("", "."))
}

func TestFileStore_PutAndVerify(t *testing.T) {
	s := NewFileStore(t.TempDir())
	data := []byte("\x89PNG fake")

	a, err := s.Put(context.Background(), "run-1/login/step-2-click.png", data, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "run-1/login/step-2-click.png", a.Ref)
	assert.Equal(t, int64(len(data)), a.Size)
	assert.Equal(t, HashBytes(data), a.SHA256)

	onDisk, err := os.ReadFile(s.Resolve(a.Ref))
	require.NoError(t, err)
	assert.Equal(t, data, onDisk)
	require.NoError(t, s.Verify(a))

	require.NoError(t, os.WriteFile(s.Resolve(a.Ref), []byte("tampered"), 0o644))
	assert.Error(t, s.Verify(a))
}

func TestFileStore_EmptyKey(t *testing.T) {
	_, err := NewFileStore(t.TempDir()).Put(context.Background(), "", []byte("x"), "")
	assert.Error(t, err)
}

func TestS3Store(t *testing.T) {
	bucket := os.Getenv("QAFLOW_TEST_S3_BUCKET")
	if bucket == "" {
		t.Skip("QAFLOW_TEST_S3_BUCKET not set")
	}
	ctx := context.Background()
	s, err := NewS3Store(ctx, S3Config{
		Bucket:    bucket,
		Prefix:    "qaflow-test",
		Region:    os.Getenv("AWS_REGION"),
		Endpoint:  os.Getenv("QAFLOW_TEST_S3_ENDPOINT"),
		PathStyle: os.Getenv("QAFLOW_TEST_S3_ENDPOINT") != "",
	})
	require.NoError(t, err)
	key := fmt.Sprintf("%d/shot.png", time.Now().UnixNano())
	a, err := s.Put(ctx, key, []byte("png"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "s3://"+bucket+"/qaflow-test/"+key, a.Ref)
}

func TestNewS3Store_RequiresBucket(t *testing.T) {
	_, err := NewS3Store(context.Background(), S3Config{})
	assert.Error(t, err)
}
