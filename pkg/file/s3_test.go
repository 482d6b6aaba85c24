package file_test

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/jobqueue/pkg/file"
)

// MockS3Client is a mock implementation of the S3Client interface
type MockS3Client struct {
	mock.Mock
}

func (m *MockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.PutObjectOutput), args.Error(1)
}

func (m *MockS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.GetObjectOutput), args.Error(1)
}

func (m *MockS3Client) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.HeadObjectOutput), args.Error(1)
}

func (m *MockS3Client) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.DeleteObjectOutput), args.Error(1)
}

func newS3(t *testing.T, client *MockS3Client) *file.S3Storage {
	t.Helper()
	storage, err := file.NewS3Storage(context.Background(), file.S3Config{
		Bucket: "jobs",
		Region: "us-east-1",
		Prefix: "/snapshots/",
	}, file.WithS3Client(client))
	require.NoError(t, err)
	return storage
}

func keyIs(key string) any {
	return mock.MatchedBy(func(in any) bool {
		switch v := in.(type) {
		case *s3.PutObjectInput:
			return aws.ToString(v.Bucket) == "jobs" && aws.ToString(v.Key) == key
		case *s3.GetObjectInput:
			return aws.ToString(v.Bucket) == "jobs" && aws.ToString(v.Key) == key
		case *s3.HeadObjectInput:
			return aws.ToString(v.Bucket) == "jobs" && aws.ToString(v.Key) == key
		case *s3.DeleteObjectInput:
			return aws.ToString(v.Bucket) == "jobs" && aws.ToString(v.Key) == key
		}
		return false
	})
}

func TestNewS3Storage(t *testing.T) {
	t.Parallel()

	_, err := file.NewS3Storage(context.Background(), file.S3Config{Region: "us-east-1"})
	assert.ErrorIs(t, err, file.ErrInvalidConfig)

	_, err = file.NewS3Storage(context.Background(), file.S3Config{Bucket: "b"})
	assert.ErrorIs(t, err, file.ErrInvalidConfig)
}

func TestS3Storage_ReadWrite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	client := new(MockS3Client)
	storage := newS3(t, client)

	client.On("PutObject", mock.Anything, keyIs("snapshots/emails.json")).
		Run(func(args mock.Arguments) {
			in := args.Get(1).(*s3.PutObjectInput)
			body, _ := io.ReadAll(in.Body)
			assert.Equal(t, "payload", string(body))
			assert.Equal(t, int64(7), aws.ToInt64(in.ContentLength))
		}).
		Return(&s3.PutObjectOutput{}, nil)
	client.On("GetObject", mock.Anything, keyIs("snapshots/emails.json")).
		Return(&s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader([]byte("payload")))}, nil)

	require.NoError(t, storage.Write(ctx, "emails.json", []byte("payload")))
	data, err := storage.Read(ctx, "emails.json")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	client.AssertExpectations(t)
}

func TestS3Storage_Exists(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	client := new(MockS3Client)
	storage := newS3(t, client)

	client.On("HeadObject", mock.Anything, keyIs("snapshots/present.json")).Return(&s3.HeadObjectOutput{}, nil)
	client.On("HeadObject", mock.Anything, keyIs("snapshots/missing.json")).Return(nil, &types.NotFound{})
	client.On("HeadObject", mock.Anything, keyIs("snapshots/locked.json")).
		Return(nil, &smithy.GenericAPIError{Code: "AccessDenied", Message: "Access Denied"})

	ok, err := storage.Exists(ctx, "present.json")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = storage.Exists(ctx, "missing.json")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = storage.Exists(ctx, "locked.json")
	assert.ErrorIs(t, err, file.ErrAccessDenied)
	assert.False(t, ok)

	client.AssertExpectations(t)
}

func TestS3Storage_Delete(t *testing.T) {
	t.Parallel()

	client := new(MockS3Client)
	storage := newS3(t, client)
	client.On("DeleteObject", mock.Anything, keyIs("snapshots/a/b.json")).Return(&s3.DeleteObjectOutput{}, nil)

	require.NoError(t, storage.Delete(context.Background(), "/a/b.json"))
	client.AssertExpectations(t)
}

func TestS3Storage_InvalidKey(t *testing.T) {
	t.Parallel()

	client := new(MockS3Client)
	storage := newS3(t, client)
	for _, key := range []string{"", "/", "../x.json", "a/../../x.json"} {
		_, err := storage.Read(context.Background(), key)
		assert.ErrorIs(t, err, file.ErrInvalidPath, key)
	}
	client.AssertNotCalled(t, "GetObject", mock.Anything, mock.Anything)
}

func TestS3Storage_ErrorClassification(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no such key", &types.NoSuchKey{Message: aws.String("missing")}, file.ErrFileNotFound},
		{"no such bucket", &types.NoSuchBucket{}, file.ErrBucketNotFound},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, file.ErrAccessDenied},
		{"slow down", &smithy.GenericAPIError{Code: "SlowDown"}, file.ErrServiceUnavailable},
		{"request timeout", &smithy.GenericAPIError{Code: "RequestTimeout"}, file.ErrRequestTimeout},
		{"deadline", context.DeadlineExceeded, file.ErrOperationTimeout},
		{"canceled", context.Canceled, file.ErrOperationCanceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			client := new(MockS3Client)
			storage := newS3(t, client)
			client.On("GetObject", mock.Anything, mock.Anything).Return(nil, tt.err)

			_, err := storage.Read(ctx, "x.json")
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("unknown api error keeps the code", func(t *testing.T) {
		t.Parallel()
		client := new(MockS3Client)
		storage := newS3(t, client)
		client.On("PutObject", mock.Anything, mock.Anything).
			Return(nil, &smithy.GenericAPIError{Code: "Teapot"})

		err := storage.Write(ctx, "x.json", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "code: Teapot")
	})
}
