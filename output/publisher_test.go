package output

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPublisherDefaults(t *testing.T) {
	p := NewPublisher(nil, "", 0, 0)
	assert.Equal(t, "geoconflate", p.prefix)
	assert.Equal(t, byte(1), p.qos)
	assert.True(t, p.retain)

	p.SetQoS(2)
	assert.Equal(t, byte(2), p.qos)
	p.SetQoS(7)
	assert.Equal(t, byte(2), p.qos, "invalid QoS is ignored")
	p.SetRetain(false)
	assert.False(t, p.retain)
}

func TestPublishRun(t *testing.T) {
	fx := newFixture(t)
	client := newMockClient(true)
	p := NewPublisher(client, "conflate", 100, 10)

	err := p.PublishRun(context.Background(), "run-1", Summarize(fx.report, fx.result), fx.report)
	require.NoError(t, err)

	msgs := client.messages()
	require.Len(t, msgs, 4)
	topics := []string{}
	for _, m := range msgs {
		topics = append(topics, m.Topic)
		assert.Equal(t, byte(1), m.QoS)
		assert.True(t, m.Retain)
	}
	assert.Equal(t, []string{
		"conflate/runs/run-1/summary",
		"conflate/runs/run-1/valid",
		"conflate/runs/run-1/invalid",
		"conflate/runs/run-1/new",
	}, topics)

	var summary RunMessage
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &summary))
	assert.Equal(t, "run-1", summary.RunID)
	assert.Equal(t, 2, summary.Summary.Valid)

	var valid []MatchMessage
	require.NoError(t, json.Unmarshal(msgs[1].Payload, &valid))
	assert.Equal(t, []MatchMessage{
		{Source: 1, Target: 11, Score: 0.75, Confidence: 0.8},
		{Source: 2, Target: 12, Score: 1, Confidence: 1},
	}, valid)

	var none []MatchMessage
	require.NoError(t, json.Unmarshal(msgs[3].Payload, &none))
	assert.NotNil(t, none, "empty lists are published as []")
	assert.Empty(t, none)
}

func TestPublishRunErrors(t *testing.T) {
	fx := newFixture(t)
	summary := Summarize(fx.report, fx.result)

	t.Run("nil client", func(t *testing.T) {
		err := NewPublisher(nil, "", 0, 0).PublishRun(context.Background(), "r", summary, fx.report)
		assert.True(t, eris.Is(err, ErrNotConnected))
	})

	t.Run("disconnected", func(t *testing.T) {
		err := NewPublisher(newMockClient(false), "", 0, 0).PublishRun(context.Background(), "r", summary, fx.report)
		assert.True(t, eris.Is(err, ErrNotConnected))
	})

	t.Run("publish failure", func(t *testing.T) {
		client := newMockClient(true)
		boom := errors.New("broker rejected")
		client.setPublishError(boom)
		err := NewPublisher(client, "", 0, 0).PublishRun(context.Background(), "r", summary, fx.report)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "broker rejected")
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		client := newMockClient(true)
		err := NewPublisher(client, "", 1, 1).PublishRun(ctx, "r", summary, fx.report)
		require.Error(t, err)
		assert.Empty(t, client.messages())
	})
}

func TestConnectMQTTDisabled(t *testing.T) {
	client, err := ConnectMQTT(MQTTOptions{})
	require.NoError(t, err)
	assert.Nil(t, client)
}
