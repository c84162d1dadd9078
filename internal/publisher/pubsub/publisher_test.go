package pubsub

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func TestPublisherSendsJSONWithEventAttribute(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	srv := pstest.NewServer()
	defer func() { _ = srv.Close() }()

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	client, err := pubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	topic, err := client.CreateTopic(ctx, "site-crawls")
	require.NoError(t, err)

	pub := New(topic)
	id, err := pub.Publish(ctx, "site.crawled", map[string]any{"site": "Tate Modern", "status": "success"})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.NoError(t, pub.Close())

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.JSONEq(t, `{"site":"Tate Modern","status":"success"}`, string(msgs[0].Data))
	require.Equal(t, "site.crawled", msgs[0].Attributes[EventAttribute])
}

func TestPublisherRequiresTopic(t *testing.T) {
	t.Parallel()

	_, err := (&Publisher{}).Publish(context.Background(), "e", "x")
	require.Error(t, err)
	_, err = Dial(context.Background(), "", "topic")
	require.Error(t, err)
	require.NoError(t, (&Publisher{}).Close())
}
