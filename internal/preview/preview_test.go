package preview

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/starford/patto/internal/notify"
)

func TestStreamsEvents(t *testing.T) {
	broker := notify.NewBroker(16, time.Hour)
	defer broker.Close()

	srv := httptest.NewServer(NewHandler(broker, nil))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer c.CloseNow()

	deadline := time.Now().Add(2 * time.Second)
	for broker.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, 1, broker.ClientCount())

	broker.Publish(notify.Event{Type: notify.DocumentUpdated, URI: "file:///ws/a.pn", Version: 3})

	typ, data, err := c.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageText, typ)

	var ev notify.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, notify.DocumentUpdated, ev.Type)
	assert.Equal(t, "file:///ws/a.pn", ev.URI)
	assert.Equal(t, int64(3), ev.Version)
	assert.NotEmpty(t, ev.ID)
}

func TestUnsubscribesOnDisconnect(t *testing.T) {
	broker := notify.NewBroker(16, time.Hour)
	defer broker.Close()

	srv := httptest.NewServer(NewHandler(broker, nil))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for broker.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, c.Close(websocket.StatusNormalClosure, ""))

	deadline = time.Now().Add(2 * time.Second)
	for broker.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, 0, broker.ClientCount())
}
