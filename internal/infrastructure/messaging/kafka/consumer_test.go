package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patentsearch/evidence-engine/internal/infrastructure/monitoring/logging"
)

type fakeReader struct {
	messages  []kafka.Message
	fetchIdx  int
	fetchErr  error
	committed []kafka.Message
	closed    bool
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if f.fetchIdx >= len(f.messages) {
		if f.fetchErr != nil {
			return kafka.Message{}, f.fetchErr
		}
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := f.messages[f.fetchIdx]
	f.fetchIdx++
	return msg, nil
}

func (f *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.committed = append(f.committed, msgs...)
	return nil
}

func (f *fakeReader) Close() error {
	f.closed = true
	return nil
}

func taskMessage(t *testing.T, task EmbedBackfillTask) kafka.Message {
	t.Helper()
	value, err := json.Marshal(task)
	require.NoError(t, err)
	return kafka.Message{Topic: TopicEmbedBackfill, Key: []byte(task.ChunkID), Value: value}
}

func TestConsumer_Run_InvokesHandlerAndCommits(t *testing.T) {
	fr := &fakeReader{messages: []kafka.Message{
		taskMessage(t, EmbedBackfillTask{ChunkID: "c1", Text: "one"}),
	}}
	c := &Consumer{reader: fr, logger: logging.NewNopLogger()}

	var handled []string
	ctx, cancel := context.WithCancel(context.Background())
	err := c.Run(ctx, func(ctx context.Context, task EmbedBackfillTask) error {
		handled = append(handled, task.ChunkID)
		if len(handled) == 1 {
			cancel()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, handled)
	assert.Len(t, fr.committed, 1)
}

func TestConsumer_Run_StopsOnHandlerError(t *testing.T) {
	fr := &fakeReader{messages: []kafka.Message{
		taskMessage(t, EmbedBackfillTask{ChunkID: "c1", Text: "one"}),
	}}
	c := &Consumer{reader: fr, logger: logging.NewNopLogger()}

	err := c.Run(context.Background(), func(ctx context.Context, task EmbedBackfillTask) error {
		return errors.New("embedding provider unavailable")
	})
	assert.Error(t, err)
	assert.Empty(t, fr.committed)
}

func TestConsumer_Run_DropsMalformedMessage(t *testing.T) {
	fr := &fakeReader{messages: []kafka.Message{
		{Topic: TopicEmbedBackfill, Value: []byte("not json")},
	}}
	c := &Consumer{reader: fr, logger: logging.NewNopLogger()}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var handled int
	err := c.Run(ctx, func(ctx context.Context, task EmbedBackfillTask) error {
		handled++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, handled)
	assert.Len(t, fr.committed, 1)
}

func TestConsumer_Run_RejectsConcurrentRun(t *testing.T) {
	fr := &fakeReader{}
	c := &Consumer{reader: fr, logger: logging.NewNopLogger()}
	c.running.Store(true)

	err := c.Run(context.Background(), func(ctx context.Context, task EmbedBackfillTask) error { return nil })
	assert.Error(t, err)
}
