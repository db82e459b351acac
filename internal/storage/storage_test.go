package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantlz/mantlz/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExportKey(t *testing.T) {
	key := ExportKey("user_1", domain.Period{Year: 2024, Month: time.March})
	assert.True(t, strings.HasPrefix(key, "exports/user_1/2024-03/"))
	assert.True(t, strings.HasSuffix(key, ".json"))
	assert.NoError(t, validateKey(key))
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		key     string
		wantErr bool
	}{
		{"exports/a/b.json", false},
		{"file..json", false},
		{"", true},
		{"/etc/passwd", true},
		{"exports/../../etc/passwd", true},
		{"..", true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			err := validateKey(tt.key)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidKey)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "text/csv", contentTypeFor("text/csv", "a.json"))
	assert.Equal(t, "application/json", contentTypeFor("", "exports/a.json"))
	assert.Equal(t, "application/octet-stream", contentTypeFor("", "exports/a"))
}

func TestLocalStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(LocalConfig{BasePath: t.TempDir(), BaseURL: "http://localhost:8080/files/"}, testLogger())
	require.NoError(t, err)

	key := "exports/user_1/2024-03/a.json"
	require.NoError(t, s.Put(ctx, key, strings.NewReader(`{"ok":true}`), PutOptions{}))

	err = s.Put(ctx, key, strings.NewReader(`{}`), PutOptions{})
	assert.ErrorIs(t, err, ErrKeyExists)
	require.NoError(t, s.Put(ctx, key, strings.NewReader(`{"ok":false}`), PutOptions{Overwrite: true}))

	rc, info, err := s.Get(ctx, key)
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":false}`, string(body))
	assert.Equal(t, int64(len(body)), info.Size)
	assert.Equal(t, "application/json", info.ContentType)

	url, err := s.URL(ctx, key, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/files/"+key, url)
}

func TestLocalStorage_Errors(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(LocalConfig{BasePath: t.TempDir()}, testLogger())
	require.NoError(t, err)

	_, _, err = s.Get(ctx, "missing.json")
	assert.True(t, IsNotFound(err))

	_, _, err = s.Get(ctx, "../secret")
	assert.ErrorIs(t, err, ErrInvalidKey)

	require.NoError(t, s.Put(ctx, "dir/a.json", strings.NewReader("{}"), PutOptions{}))
	_, _, err = s.Get(ctx, "dir")
	assert.True(t, IsNotFound(err))

	var se *StorageError
	require.True(t, errors.As(s.Put(ctx, "", strings.NewReader(""), PutOptions{}), &se))
	assert.Equal(t, opPut, se.Op)
}

func TestWrapS3Error(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no such key", &smithy.GenericAPIError{Code: "NoSuchKey"}, ErrNotFound},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, ErrAccessDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, wrapS3Error(tt.err), tt.want)
		})
	}

	other := wrapS3Error(errors.New("boom"))
	assert.ErrorContains(t, other, "R2 operation failed: boom")
}

func TestNewR2Storage_Validation(t *testing.T) {
	_, err := NewR2Storage(R2Config{}, testLogger())
	assert.Error(t, err)

	_, err = NewR2Storage(R2Config{BucketName: "b"}, testLogger())
	assert.Error(t, err)

	s, err := NewR2Storage(R2Config{BucketName: "b", Endpoint: "http://localhost:9000", AccessKeyID: "k", SecretAccessKey: "s"}, testLogger())
	require.NoError(t, err)

	url, err := s.URL(context.Background(), "exports/a.json", time.Hour)
	require.NoError(t, err)
	assert.Contains(t, url, "http://localhost:9000/b/exports/a.json")
	assert.Contains(t, url, "X-Amz-Signature=")
}
