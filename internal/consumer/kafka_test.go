package consumer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/aspecsweb/nano-tags/internal/agent"
	"github.com/aspecsweb/nano-tags/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	fetchErrs []error
	committed []kafka.Message
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		r.fetchErrs = r.fetchErrs[1:]
		r.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()

	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

type fakeApplier struct {
	mu      sync.Mutex
	signals []agent.Signal
	sources []string
	err     error
}

func (f *fakeApplier) Apply(_ context.Context, sig agent.Signal, source string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, sig)
	f.sources = append(f.sources, source)
	return sig.PageID, f.err
}

func (f *fakeApplier) applied() []agent.Signal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]agent.Signal(nil), f.signals...)
}

func run(t *testing.T, c *KafkaConsumer) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(done)
	}()
	return func() {
		stop()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("consumer did not stop")
		}
	}
}

func TestConsumer_AppliesSignals(t *testing.T) {
	reader := &fakeReader{
		fetchErrs: []error{errors.New("broker not available")},
		queue: []kafka.Message{
			{Key: []byte("page-1"), Value: []byte(`{"type":"activate","page_id":"page-1","activation":{"project_key":"proj-1","url":"https://example.com/"}}`)},
			{Key: []byte("page-1"), Value: []byte(`{"type":"entries","page_id":"page-1","entries":[{"entryType":"paint","name":"first-contentful-paint","startTime":12}]}`)},
			{Key: []byte("page-1"), Value: []byte(`{"type":"lifecycle","page_id":"page-1","lifecycle":{"type":"load"}}`)},
		},
	}
	applier := &fakeApplier{}
	c := NewKafkaConsumerWithReader(reader, applier, "nanotags.signals", "test")

	stop := run(t, c)
	require.Eventually(t, func() bool { return reader.commits() == 3 }, 2*time.Second, 5*time.Millisecond)
	stop()
	require.NoError(t, c.Close())

	signals := applier.applied()
	require.Len(t, signals, 3)
	assert.Equal(t, agent.SignalActivate, signals[0].Type)
	assert.Equal(t, "proj-1", signals[0].Activation.ProjectKey)
	assert.Equal(t, agent.SignalEntries, signals[1].Type)
	assert.Equal(t, 12.0, signals[1].Entries[0].StartTime)
	assert.Equal(t, agent.SignalLifecycle, signals[2].Type)
	assert.Equal(t, []string{"kafka", "kafka", "kafka"}, applier.sources)
	assert.True(t, reader.closed)
}

func TestConsumer_CommitsUnparseableAndFailedSignals(t *testing.T) {
	reader := &fakeReader{
		queue: []kafka.Message{
			{Value: []byte(`not json`)},
			{Value: []byte(`{"type":"entries","page_id":"gone"}`)},
		},
	}
	applier := &fakeApplier{err: agent.ErrPageNotFound}
	c := NewKafkaConsumerWithReader(reader, applier, "nanotags.signals", "test")

	stop := run(t, c)
	require.Eventually(t, func() bool { return reader.commits() == 2 }, 2*time.Second, 5*time.Millisecond)
	stop()

	assert.Len(t, applier.applied(), 1)
}

func TestNewKafkaConsumer_RequiresBrokers(t *testing.T) {
	_, err := NewKafkaConsumer(config.KafkaConfig{}, &fakeApplier{})
	assert.Error(t, err)
}
