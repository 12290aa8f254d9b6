package realtime

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(collectionID uuid.UUID, buffer int) *Client {
	return &Client{
		ID:           uuid.New().String(),
		CollectionID: collectionID,
		UserID:       uuid.New(),
		send:         make(chan WSMessage, buffer),
	}
}

func TestHubRoomLifecycle(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	colID := uuid.New()

	a := newTestClient(colID, 8)
	b := newTestClient(colID, 8)
	hub.Register(a)
	hub.Register(b)
	require.Equal(t, 2, hub.ViewerCount(colID))

	// registering b announced the new viewer count to a
	msg := <-a.send
	require.Equal(t, "viewer_count", msg.Event)
	msg = <-a.send
	require.Equal(t, "viewer_count", msg.Event)
	var count struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(msg.Data, &count))
	require.Equal(t, 2, count.Count)

	hub.Unregister(b)
	require.Equal(t, 1, hub.ViewerCount(colID))

	hub.Unregister(a)
	require.Zero(t, hub.ViewerCount(colID))
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	colID := uuid.New()
	otherID := uuid.New()

	member := newTestClient(colID, 8)
	outsider := newTestClient(otherID, 8)
	hub.Register(member)
	hub.Register(outsider)
	drain(member)
	drain(outsider)

	// without Redis the publish-only path degrades to a local broadcast
	hub.PublishToCollectionOnly(colID, "listing.created", map[string]string{"id": "x"})

	msg := <-member.send
	require.Equal(t, "listing.created", msg.Event)
	require.Empty(t, outsider.send)
}

func TestHubDropsOnFullBuffer(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	colID := uuid.New()

	slow := newTestClient(colID, 1)
	hub.Register(slow)
	// the registration viewer_count already fills the buffer of one

	hub.BroadcastToCollection(colID, "listing.updated", nil)
	hub.BroadcastToCollection(colID, "listing.deleted", nil)

	require.Len(t, slow.send, 1)
	msg := <-slow.send
	require.Equal(t, "viewer_count", msg.Event)
}

func drain(c *Client) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}
