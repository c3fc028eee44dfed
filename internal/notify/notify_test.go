package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/izzacatering/backend/internal/models"
)

func note(id, recipient string) models.Notification {
	return models.Notification{ID: id, RecipientID: recipient, Title: "t", Type: models.NotifyEventAssigned}
}

func receive(t *testing.T, ch <-chan models.Notification) (models.Notification, bool) {
	t.Helper()
	select {
	case n, ok := <-ch:
		return n, ok
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
		return models.Notification{}, false
	}
}

func TestHubRoutesByRecipient(t *testing.T) {
	h := NewHub(4)
	w1, cancel1 := h.Subscribe("w1")
	defer cancel1()
	w2, cancel2 := h.Subscribe("w2")
	defer cancel2()

	require.NoError(t, h.Publish(context.Background(), note("n1", "w1")))
	h.Deliver(note("n2", models.BroadcastRecipient))

	got, _ := receive(t, w1)
	assert.Equal(t, "n1", got.ID)
	got, _ = receive(t, w1)
	assert.Equal(t, "n2", got.ID)

	got, _ = receive(t, w2)
	assert.Equal(t, "n2", got.ID, "w2 only sees the broadcast")
	select {
	case extra := <-w2:
		t.Fatalf("unexpected delivery %v", extra)
	default:
	}
}

func TestHubCancelClosesChannel(t *testing.T) {
	h := NewHub(1)
	ch, cancel := h.Subscribe("u1")
	assert.Equal(t, 1, h.Subscribers())

	cancel()
	cancel() // idempotent
	assert.Equal(t, 0, h.Subscribers())
	_, ok := <-ch
	assert.False(t, ok)

	// Delivering after cancel must not panic.
	h.Deliver(note("n", "u1"))
}

func TestHubSlowSubscriberDrops(t *testing.T) {
	h := NewHub(1)
	ch, cancel := h.Subscribe("u1")
	defer cancel()

	h.Deliver(note("a", "u1"))
	h.Deliver(note("b", "u1")) // queue full

	got, _ := receive(t, ch)
	assert.Equal(t, "a", got.ID)
	assert.Equal(t, int64(1), h.Dropped())
}

func TestDecode(t *testing.T) {
	raw, err := json.Marshal(note("n1", "u1"))
	require.NoError(t, err)
	n, err := decode(string(raw))
	require.NoError(t, err)
	assert.Equal(t, "n1", n.ID)

	_, err = decode("{not json")
	assert.Error(t, err)
	_, err = decode(`{"title":"no id"}`)
	assert.Error(t, err)
}

func TestNewRedisRelayRejectsBadURL(t *testing.T) {
	_, err := NewRedisRelay(context.Background(), "not a url", "", NewHub(1), nil)
	assert.Error(t, err)
}

func TestRelayPublishFallsBackToLocalDelivery(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	hub := NewHub(2)
	ch, cancel := hub.Subscribe("u1")
	defer cancel()

	relay := newRelay(client, "", hub, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Equal(t, DefaultChannel, relay.channel)

	err := relay.Publish(context.Background(), note("n1", "u1"))
	require.Error(t, err)

	got, _ := receive(t, ch)
	assert.Equal(t, "n1", got.ID)
}
