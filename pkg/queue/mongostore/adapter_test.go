package mongostore_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/jobqueue/pkg/queue"
	"github.com/dmitrymomot/jobqueue/pkg/queue/mongostore"
	"github.com/dmitrymomot/jobqueue/pkg/queue/queuetest"
)

func TestAdapter(t *testing.T) {
	url := os.Getenv("TEST_MONGODB_URL")
	if url == "" {
		t.Skip("TEST_MONGODB_URL is not set")
	}
	ctx := context.Background()

	client, err := mongostore.Connect(ctx, mongostore.Config{
		ConnectionURL:  url,
		ConnectTimeout: 5 * time.Second,
		RetryAttempts:  1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	db := client.Database("jobqueue_test_" + uuid.NewString()[:8])
	t.Cleanup(func() { _ = db.Drop(context.Background()) })
	require.NoError(t, mongostore.EnsureIndexes(ctx, db))
	require.NoError(t, mongostore.EnsureIndexes(ctx, db), "index creation is idempotent")

	queuetest.RunTaskAdapterSuite(t, func(t *testing.T) queue.TaskAdapter {
		return mongostore.New(db, uuid.NewString())
	})

	t.Run("healthcheck", func(t *testing.T) {
		assert.NoError(t, mongostore.New(db, "x").Healthcheck(ctx))
	})
}

func TestConnect_Errors(t *testing.T) {
	t.Parallel()

	_, err := mongostore.Connect(context.Background(), mongostore.Config{})
	assert.ErrorIs(t, err, mongostore.ErrEmptyConnectionURL)

	_, err = mongostore.Connect(context.Background(), mongostore.Config{
		ConnectionURL: "not-a-mongo-url",
		RetryAttempts: 1,
	})
	assert.ErrorIs(t, err, mongostore.ErrFailedToConnectToMongo)
}

func TestNew_Options(t *testing.T) {
	t.Parallel()

	a := mongostore.New(nil, "q", mongostore.WithPriority(queue.LIFO), mongostore.WithCodec(nil))
	assert.True(t, a.IsFILO())
}
