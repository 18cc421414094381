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

	"github.com/JakeFAU/vehicle-listing-crawler/internal/listing"
	"github.com/JakeFAU/vehicle-listing-crawler/internal/publisher"
)

func newTestClient(t *testing.T) (*pstest.Server, *pubsub.Client) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(context.Background(), "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	return srv, client
}

func TestPublisherMirrorsRecord(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	srv, client := newTestClient(t)
	_, err := client.CreateTopic(ctx, "records")
	require.NoError(t, err)

	pub, err := NewWithClient(ctx, client, "records")
	require.NoError(t, err)
	defer func() { require.NoError(t, pub.Close()) }()

	rec := listing.Record{URL: "https://example.com/d.html?id=42", Title: "Audi A4 para 18.500 €", PriceEUR: listing.IntPtr(18500)}
	require.NoError(t, pub.Mirror(ctx, "run-1", rec))

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "42", msgs[0].Attributes["listing_id"])
	require.Equal(t, "false", msgs[0].Attributes["blocked"])

	var evt publisher.RecordEvent
	require.NoError(t, json.Unmarshal(msgs[0].Data, &evt))
	require.Equal(t, "run-1", evt.RunID)
	require.Equal(t, 18500, *evt.Record.PriceEUR)
}

func TestNewWithClientRequiresTopic(t *testing.T) {
	t.Parallel()

	_, client := newTestClient(t)
	defer client.Close()

	_, err := NewWithClient(context.Background(), client, "missing")
	require.ErrorContains(t, err, "does not exist")

	_, err = NewWithClient(context.Background(), client, "")
	require.Error(t, err)
}
