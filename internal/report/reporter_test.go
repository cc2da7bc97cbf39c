package report

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/aspecsweb/nano-tags/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingSink struct {
	mu         sync.Mutex
	deliveries []Delivery
	err        error
}

func (s *recordingSink) Deliver(_ context.Context, d Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = append(s.deliveries, d)
	return s.err
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) all() []Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Delivery(nil), s.deliveries...)
}

var testContext = Context{
	ProjectKey: "pk_live_123",
	SessionID:  "sess-1",
	UserAgent:  "Mozilla/5.0",
	Referrer:   "https://ref.example/",
	URL:        "https://shop.example/cart?x=1",
	Title:      "Cart",
	Path:       "/cart",
}

func closeReporter(t *testing.T, r *Reporter) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Close(ctx))
}

func TestReporter_MergesContextAndData(t *testing.T) {
	sink := &recordingSink{}
	r := NewReporter(config.TagInsights, sink, time.Second)
	r.now = func() time.Time { return time.Date(2026, 10, 17, 8, 30, 0, 123e6, time.UTC) }

	r.Send(testContext, map[string]interface{}{
		"metric_type":  "web_vital",
		"metric_name":  "LCP",
		"metric_value": 1234.5,
		"metric_unit":  "ms",
	})
	closeReporter(t, r)

	got := sink.all()
	require.Len(t, got, 1)
	assert.Equal(t, config.TagInsights, got[0].Tag)
	assert.Equal(t, "sess-1", got[0].SessionID)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(got[0].Body, &payload))
	assert.Equal(t, map[string]interface{}{
		"projectKey":   "pk_live_123",
		"sessionId":    "sess-1",
		"userAgent":    "Mozilla/5.0",
		"referrer":     "https://ref.example/",
		"url":          "https://shop.example/cart?x=1",
		"page_title":   "Cart",
		"page_path":    "/cart",
		"timestamp":    "2026-10-17T08:30:00.123Z",
		"metric_type":  "web_vital",
		"metric_name":  "LCP",
		"metric_value": 1234.5,
		"metric_unit":  "ms",
	}, payload)
}

func TestReporter_DataOverridesContext(t *testing.T) {
	sink := &recordingSink{}
	r := NewReporter(config.TagAnalytics, sink, time.Second)

	r.Send(testContext, map[string]interface{}{"page_title": "Checkout"})
	closeReporter(t, r)

	got := sink.all()
	require.Len(t, got, 1)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(got[0].Body, &payload))
	assert.Equal(t, "Checkout", payload["page_title"])
}

func TestReporter_MissingProjectKey(t *testing.T) {
	sink := &recordingSink{}
	r := NewReporter(config.TagCustom, sink, time.Second)

	sc := testContext
	sc.ProjectKey = ""
	r.Send(sc, map[string]interface{}{"event_name": "signup"})
	closeReporter(t, r)

	assert.Empty(t, sink.all())
}

func TestReporter_FailuresAreSwallowed(t *testing.T) {
	sink := &recordingSink{err: errors.New("connection refused")}
	r := NewReporter(config.TagInsights, sink, time.Second)

	assert.NotPanics(t, func() {
		r.Send(testContext, map[string]interface{}{"metric_name": "CLS"})
	})
	closeReporter(t, r)
	assert.Len(t, sink.all(), 1)
}

func TestReporter_UnencodableDataDropped(t *testing.T) {
	sink := &recordingSink{}
	r := NewReporter(config.TagCustom, sink, time.Second)

	r.Send(testContext, map[string]interface{}{"event_data": make(chan int)})
	closeReporter(t, r)
	assert.Empty(t, sink.all())
}

func TestReporter_SendAfterClose(t *testing.T) {
	sink := &recordingSink{}
	r := NewReporter(config.TagInsights, sink, time.Second)
	closeReporter(t, r)

	r.Send(testContext, map[string]interface{}{"metric_name": "FID"})
	assert.Empty(t, sink.all())
}

type blockingSink struct {
	release chan struct{}
}

func (s *blockingSink) Deliver(ctx context.Context, _ Delivery) error {
	select {
	case <-s.release:
	case <-ctx.Done():
	}
	return nil
}

func (s *blockingSink) Close() error { return nil }

func TestReporter_CloseHonoursContext(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	r := NewReporter(config.TagInsights, sink, time.Minute)
	r.Send(testContext, map[string]interface{}{"metric_name": "TTFB"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Close(ctx), context.DeadlineExceeded)

	close(sink.release)
	closeReporter(t, r)
}

func TestHTTPSink_PostsJSON(t *testing.T) {
	type request struct {
		method      string
		contentType string
		body        []byte
	}
	received := make(chan request, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- request{method: r.Method, contentType: r.Header.Get("Content-Type"), body: body}
		// status is not inspected
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL, srv.Client())
	err := sink.Deliver(context.Background(), Delivery{Tag: config.TagInsights, Body: []byte(`{"metric_name":"FCP"}`)})
	require.NoError(t, err)

	req := <-received
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "application/json", req.contentType)
	assert.JSONEq(t, `{"metric_name":"FCP"}`, string(req.body))
	assert.NoError(t, sink.Close())
}

func TestHTTPSink_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	client := srv.Client()
	url := srv.URL
	srv.Close()

	sink := NewHTTPSink(url, client)
	err := sink.Deliver(context.Background(), Delivery{Body: []byte(`{}`)})
	assert.Error(t, err)
}

func TestReporter_EndToEndHTTP(t *testing.T) {
	received := make(chan map[string]interface{}, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		received <- payload
	}))
	defer srv.Close()

	r := NewReporter(config.TagInsights, NewHTTPSink(srv.URL, srv.Client()), time.Second)
	r.Send(testContext, map[string]interface{}{"metric_name": "FID", "metric_value": 30.0})

	noKey := testContext
	noKey.ProjectKey = ""
	r.Send(noKey, map[string]interface{}{"metric_name": "FID", "metric_value": 31.0})
	closeReporter(t, r)

	require.Len(t, received, 1)
	payload := <-received
	assert.Equal(t, 30.0, payload["metric_value"])
	assert.Equal(t, "pk_live_123", payload["projectKey"])
}

func TestKafkaSink(t *testing.T) {
	_, err := NewKafkaSink(config.KafkaConfig{}, config.TagInsights)
	assert.Error(t, err)

	_, err = NewKafkaSink(config.KafkaConfig{Brokers: []string{"localhost:9092"}}, config.TagInsights)
	assert.ErrorIs(t, err, ErrNoTopic)

	sink, err := NewKafkaSink(config.KafkaConfig{
		Brokers: []string{"localhost:9092"},
		Topics:  map[string]string{config.TagInsights: "nanotags.insights"},
	}, config.TagInsights)
	require.NoError(t, err)

	err = sink.Deliver(context.Background(), Delivery{Tag: config.TagCustom, Body: []byte(`{}`)})
	assert.ErrorIs(t, err, ErrNoTopic)
	assert.NoError(t, sink.Close())
}
