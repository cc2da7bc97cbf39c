package report

import (
	"bytes"
	"context"
	"io"
	"net/http"
)

// HTTPSink POSTs each report to a fixed endpoint. The response is drained and
// otherwise ignored.
type HTTPSink struct {
	client   *http.Client
	endpoint string
}

func NewHTTPSink(endpoint string, client *http.Client) *HTTPSink {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSink{
		client:   client,
		endpoint: endpoint,
	}
}

func (s *HTTPSink) Deliver(ctx context.Context, d Delivery) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(d.Body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (s *HTTPSink) Close() error {
	return nil
}
