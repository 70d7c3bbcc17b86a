package mqtt

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type message struct {
	paho.Message
	topic   string
	payload []byte
	acked   bool
}

func (m *message) Topic() string   { return m.topic }
func (m *message) Payload() []byte { return m.payload }
func (m *message) Ack()            { m.acked = true }

func TestNewPubSubValidation(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	_, err := NewPubSub("tcp://127.0.0.1:1", 1, "", "", "", "", time.Second, logger)
	assert.ErrorIs(t, err, errEmptyID)

	_, err = NewPubSub("tcp://127.0.0.1:1", 1, "coordinator", "", "", "fl/status", time.Second, logger)
	assert.Error(t, err)
}

func TestEmptyTopic(t *testing.T) {
	ps := &pubsub{logger: slog.New(slog.DiscardHandler)}

	assert.ErrorIs(t, ps.Publish(t.Context(), "", nil), errEmptyTopic)
	assert.ErrorIs(t, ps.Subscribe(t.Context(), "", nil), errEmptyTopic)
	assert.ErrorIs(t, ps.Unsubscribe(t.Context(), ""), errEmptyTopic)
}

func TestMessageHandler(t *testing.T) {
	ps := &pubsub{logger: slog.New(slog.DiscardHandler)}

	cases := []struct {
		desc    string
		payload string
		called  bool
		acked   bool
		err     error
	}{
		{
			desc:    "valid json is dispatched",
			payload: `{"command":"stop"}`,
			called:  true,
			acked:   true,
		},
		{
			desc:    "handler failure still acks",
			payload: `{"command":"stop"}`,
			called:  true,
			acked:   true,
			err:     errors.New("boom"),
		},
		{
			desc:    "invalid json is dropped",
			payload: `not json`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			var got map[string]any
			called := false
			h := ps.mqttHandler(func(topic string, msg map[string]any) error {
				called = true
				got = msg
				assert.Equal(t, "fl/control", topic)

				return tc.err
			})

			msg := &message{topic: "fl/control", payload: []byte(tc.payload)}
			h(nil, msg)

			assert.Equal(t, tc.called, called)
			assert.Equal(t, tc.acked, msg.acked)
			if tc.called {
				require.NotNil(t, got)
				assert.Equal(t, "stop", got["command"])
			}
		})
	}
}
