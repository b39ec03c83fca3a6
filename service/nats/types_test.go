package nats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/brojonat/craftmint/service/artifact"
	"github.com/brojonat/craftmint/service/purchase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNotification() purchase.Notification {
	uri := "https://ipfs.example/ipfs/meta"
	return purchase.Notification{
		TransactionReference: "sig123",
		Email:                "alice@example.com",
		Artifact: artifact.Artifact{
			ID:       "abc123",
			URI:      &uri,
			ImageURI: "https://ipfs.example/ipfs/img",
			Owner:    "Alice",
			IssuedAt: time.Unix(1700000000, 0).UTC(),
		},
		PurchasedAt: time.Unix(1700000005, 0).UTC(),
	}
}

func TestFromNotification(t *testing.T) {
	event := FromNotification(testNotification())

	assert.Equal(t, "sig123", event.TransactionReference)
	assert.Equal(t, "Alice", event.OwnerAccount)
	assert.Equal(t, "abc123", event.ArtifactID)
	require.NotNil(t, event.ArtifactURI)
	assert.Equal(t, "https://ipfs.example/ipfs/meta", *event.ArtifactURI)
	assert.Equal(t, "purchases.Alice", event.Subject())
	assert.WithinDuration(t, time.Now(), event.PublishedAt, 5*time.Second)
}

func TestPurchaseEvent_JSONOmitsMissingURI(t *testing.T) {
	n := testNotification()
	n.Artifact.URI = nil

	data, err := json.Marshal(FromNotification(n))
	require.NoError(t, err)

	assert.NotContains(t, string(data), "artifact_uri")
	assert.Contains(t, string(data), `"transaction_reference":"sig123"`)
	assert.NotContains(t, string(data), "alice@example.com", "email addresses are not broadcast")
}

func TestMockPublisher(t *testing.T) {
	m := NewMockPublisher()
	ctx := context.Background()

	require.NoError(t, m.PublishPurchase(ctx, FromNotification(testNotification())))
	assert.Len(t, m.GetPublishedEvents(), 1)
	assert.Len(t, m.GetPublishedEventsForOwner("Alice"), 1)
	assert.Empty(t, m.GetPublishedEventsForOwner("Bob"))

	m.SetPublishError(errors.New("nats down"))
	assert.Error(t, m.PublishPurchase(ctx, FromNotification(testNotification())))
	assert.Len(t, m.GetPublishedEvents(), 1)

	require.NoError(t, m.Close())
	assert.True(t, m.IsClosed())
}
