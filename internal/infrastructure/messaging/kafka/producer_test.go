package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ClinTerm-Intelligence/internal/config"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/ClinTerm-Intelligence/pkg/errors"
)

type mockKafkaWriter struct {
	writeFunc func(ctx context.Context, msgs ...kafka.Message) error
	closeFunc func() error
}

func (m *mockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if m.writeFunc != nil {
		return m.writeFunc(ctx, msgs...)
	}
	return nil
}

func (m *mockKafkaWriter) Close() error {
	if m.closeFunc != nil {
		return m.closeFunc()
	}
	return nil
}

func (m *mockKafkaWriter) Stats() kafka.WriterStats { return kafka.WriterStats{} }

func newTestProducerConfig() ProducerConfig {
	return ProducerConfig{
		Brokers:         []string{"localhost:9092"},
		MaxMessageBytes: 64,
	}
}

func newTestProducerMessage(topic, key, value string) *ProducerMessage {
	return &ProducerMessage{Topic: topic, Key: []byte(key), Value: []byte(value)}
}

func newTestProducer(w WriterInterface) *Producer {
	return newProducerWithWriter(w, newTestProducerConfig(), logging.NewNopLogger(), nil)
}

func TestValidateProducerConfig(t *testing.T) {
	assert.NoError(t, ValidateProducerConfig(newTestProducerConfig()))

	cfg := newTestProducerConfig()
	cfg.Brokers = nil
	assert.True(t, pkgerrors.IsCode(ValidateProducerConfig(cfg), pkgerrors.ErrCodeValidation))

	cfg = newTestProducerConfig()
	cfg.MaxRetries = -1
	assert.Error(t, ValidateProducerConfig(cfg))
}

func TestProducerConfigFrom(t *testing.T) {
	cfg := ProducerConfigFrom(config.KafkaConfig{
		Brokers:      []string{"a:9092", "b:9092"},
		BatchSize:    10,
		BatchTimeout: time.Second,
	})
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Brokers)
	assert.Equal(t, "all", cfg.Acks)
	assert.Equal(t, 10, cfg.BatchSize)
}

func TestPublish_Success(t *testing.T) {
	var captured []kafka.Message
	p := newTestProducer(&mockKafkaWriter{
		writeFunc: func(ctx context.Context, msgs ...kafka.Message) error {
			captured = msgs
			return nil
		},
	})

	msg := newTestProducerMessage("clinterm.resolutions", "note-1", `{"ok":true}`)
	msg.Headers = map[string]string{"event_type": EventResolutionsRecorded}
	require.NoError(t, p.Publish(context.Background(), msg))

	require.Len(t, captured, 1)
	assert.Equal(t, "clinterm.resolutions", captured[0].Topic)
	assert.Equal(t, "note-1", string(captured[0].Key))
	assert.False(t, captured[0].Time.IsZero())
	require.Len(t, captured[0].Headers, 1)
	assert.Equal(t, "event_type", captured[0].Headers[0].Key)
	assert.Equal(t, int64(1), p.GetMetrics().MessagesSent.Load())
}

func TestPublish_Validation(t *testing.T) {
	p := newTestProducer(&mockKafkaWriter{})
	ctx := context.Background()

	assert.Error(t, p.Publish(ctx, newTestProducerMessage("", "k", "v")))
	assert.Error(t, p.Publish(ctx, newTestProducerMessage("t", "k", "")))

	big := make([]byte, 65)
	err := p.Publish(ctx, &ProducerMessage{Topic: "t", Value: big})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeValidation))
}

func TestPublish_Failure(t *testing.T) {
	p := newTestProducer(&mockKafkaWriter{
		writeFunc: func(ctx context.Context, msgs ...kafka.Message) error {
			return errors.New("broker down")
		},
	})

	err := p.Publish(context.Background(), newTestProducerMessage("t", "k", "v"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeMessageQueueError))
	assert.Equal(t, int64(1), p.GetMetrics().MessagesFailed.Load())
}

func TestProducerClose(t *testing.T) {
	closed := 0
	p := newTestProducer(&mockKafkaWriter{
		closeFunc: func() error {
			closed++
			return nil
		},
	})

	assert.NoError(t, p.Close())
	assert.NoError(t, p.Close())
	assert.Equal(t, 1, closed)
	assert.Equal(t, ErrProducerClosed, p.Publish(context.Background(), newTestProducerMessage("t", "k", "v")))
}
