//go:build integration

package stream

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"parity/pkg/testutil/containers"
)

func TestPublish_Redpanda(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := containers.NewRedpandaBroker(t)

	const topic = "parity.audit.entries"
	client, err := NewClient([]string{broker}, topic)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, EnsureTopic(ctx, client, topic))
	require.NoError(t, EnsureTopic(ctx, client, topic), "an existing topic is not an error")

	publisher, err := NewPublisher(client, topic)
	require.NoError(t, err)
	entry := sampleEntry()
	require.NoError(t, publisher.Publish(ctx, entry))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	require.Empty(t, fetches.Errors())
	records := fetches.Records()
	require.NotEmpty(t, records)

	var msg Message
	require.NoError(t, json.Unmarshal(records[0].Value, &msg))
	assert.Equal(t, entry.ID, msg.Entry.ID)
	assert.Equal(t, entry.CompanyID.String(), string(records[0].Key))
}
