package transport

import (
	"context"
	"net/http"
	"net/url"
)

// Call executes a request and decodes the success envelope into T.
func Call[T any](ctx context.Context, c *Client, method, endpoint string, body any, opts ...CallOption) (Envelope[T], error) {
	resp, err := c.Execute(ctx, method, endpoint, body, opts...)
	if err != nil {
		return Envelope[T]{}, err
	}
	return DecodeEnvelope[T](resp)
}

// Get is Call for GET requests with query parameters.
func Get[T any](ctx context.Context, c *Client, endpoint string, query url.Values, opts ...CallOption) (Envelope[T], error) {
	if len(query) > 0 {
		opts = append([]CallOption{WithQuery(query)}, opts...)
	}
	return Call[T](ctx, c, http.MethodGet, endpoint, nil, opts...)
}
