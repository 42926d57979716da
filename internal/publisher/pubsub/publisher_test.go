package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func fakeServer(t *testing.T) (*pstest.Server, option.ClientOption) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })
	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return srv, option.WithGRPCConn(conn)
}

func TestPublisherPublishesJSON(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srv, opt := fakeServer(t)

	client, err := pubsub.NewClient(ctx, "proj", opt)
	require.NoError(t, err)
	_, err = client.CreateTopic(ctx, "crawl-finished")
	require.NoError(t, err)

	pub := New(client, nil)
	id, err := pub.Publish(ctx, "crawl-finished", map[string]any{"job_id": "job-1", "completed": true})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.NoError(t, pub.Close())

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].Data, &payload))
	require.Equal(t, "job-1", payload["job_id"])
	require.Equal(t, "application/json", msgs[0].Attributes["content_type"])
}

func TestOpenChecksTopic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, opt := fakeServer(t)

	_, err := Open(ctx, "proj", "missing", nil, opt)
	require.Error(t, err)

	_, err = Open(ctx, "", "topic", nil, opt)
	require.Error(t, err)
}

func TestOpenWithExistingTopic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srv, opt := fakeServer(t)
	admin, err := pubsub.NewClient(ctx, "proj", opt)
	require.NoError(t, err)
	_, err = admin.CreateTopic(ctx, "events")
	require.NoError(t, err)

	pub, err := Open(ctx, "proj", "events", nil, opt)
	require.NoError(t, err)
	_, err = pub.Publish(ctx, "events", "hello")
	require.NoError(t, err)
	require.NoError(t, pub.Close())
	require.Len(t, srv.Messages(), 1)
}

func TestPublishValidation(t *testing.T) {
	t.Parallel()

	var nilPub *Publisher
	_, err := nilPub.Publish(context.Background(), "t", "x")
	require.Error(t, err)
	require.NoError(t, nilPub.Close())

	_, opt := fakeServer(t)
	client, err := pubsub.NewClient(context.Background(), "proj", opt)
	require.NoError(t, err)
	pub := New(client, nil)
	t.Cleanup(func() { _ = pub.Close() })
	_, err = pub.Publish(context.Background(), "", "x")
	require.Error(t, err)
	_, err = pub.Publish(context.Background(), "t", func() {})
	require.ErrorContains(t, err, "marshal payload")
}
