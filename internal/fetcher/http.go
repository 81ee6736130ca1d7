package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// HTTPTransport performs plain HTTP requests through a resty client.
type HTTPTransport struct {
	client *resty.Client
}

func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0)

	return &HTTPTransport{client: client}
}

func (t *HTTPTransport) Get(ctx context.Context, url string, header http.Header) (*Response, error) {
	res, err := t.client.R().
		SetContext(ctx).
		SetHeaderMultiValues(header).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	return &Response{
		StatusCode: res.StatusCode(),
		Body:       res.Body(),
	}, nil
}
