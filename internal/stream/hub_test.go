package stream

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	messages [][]byte
	fail     bool
	closed   bool
}

func (f *fakeSink) Send(data []byte) error {
	if f.fail {
		return errors.New("broken pipe")
	}
	f.messages = append(f.messages, data)
	return nil
}

func (f *fakeSink) Close() { f.closed = true }

func TestPublishFansOut(t *testing.T) {
	hub := NewHub(nil)
	a, b := &fakeSink{}, &fakeSink{}
	hub.Subscribe("sess_1", a)
	hub.Subscribe("sess_1", b)
	other := &fakeSink{}
	hub.Subscribe("sess_2", other)

	hub.Publish("sess_1", "engine_move", map[string]any{"uci": "e2e4"})

	require.Len(t, a.messages, 1)
	require.Len(t, b.messages, 1)
	assert.Empty(t, other.messages, "events stay within their session")

	var msg Message
	require.NoError(t, json.Unmarshal(a.messages[0], &msg))
	assert.Equal(t, "engine_move", msg.Type)
	payload := msg.Payload.(map[string]any)
	assert.Equal(t, "e2e4", payload["uci"])
}

func TestFailingSinkIsPruned(t *testing.T) {
	hub := NewHub(nil)
	healthy, broken := &fakeSink{}, &fakeSink{fail: true}
	hub.Subscribe("sess_1", healthy)
	hub.Subscribe("sess_1", broken)

	hub.Publish("sess_1", "player_move", map[string]any{"uci": "d2d4"})

	assert.True(t, broken.closed)
	assert.Equal(t, 1, hub.SubscriberCount("sess_1"))

	hub.Publish("sess_1", "game_over", map[string]any{"winner": "player"})
	assert.Len(t, healthy.messages, 2, "survivor keeps receiving")
}

func TestUnsubscribeClosesSink(t *testing.T) {
	hub := NewHub(nil)
	sink := &fakeSink{}
	hub.Subscribe("sess_1", sink)
	hub.Unsubscribe("sess_1", sink)

	assert.True(t, sink.closed)
	assert.Equal(t, 0, hub.SubscriberCount("sess_1"))

	hub.Publish("sess_1", "engine_move", nil)
	assert.Empty(t, sink.messages)
}

func TestPublishWithNoSubscribersIsNoop(t *testing.T) {
	hub := NewHub(nil)
	hub.Publish("sess_ghost", "engine_move", map[string]any{"uci": "e2e4"})
	assert.Equal(t, 0, hub.SubscriberCount("sess_ghost"))
}
