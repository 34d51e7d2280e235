package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/vrsandeep/vidl/internal/models"
)

// maxErrorBody bounds how much of an error response is kept in messages.
const maxErrorBody = 512

// GetJSON performs a GET request and decodes a JSON response into out.
// Failures are returned as *FetchError wrapping the matching sentinel.
func GetJSON(ctx context.Context, client *http.Client, service models.Service, channel, url string, header http.Header, out any) error {
	resp, err := Get(ctx, client, service, channel, url, header)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &FetchError{Service: service, Channel: channel, Err: fmt.Errorf("%w: malformed response: %v", ErrTransport, err)}
	}
	return nil
}

// Get performs a GET request and classifies the outcome. On success the
// caller must close the response body.
func Get(ctx context.Context, client *http.Client, service models.Service, channel, url string, header http.Header) (*http.Response, error) {
	wrap := func(err error) error {
		return &FetchError{Service: service, Channel: channel, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, wrap(fmt.Errorf("%w: %v", ErrTransport, err))
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, wrap(fmt.Errorf("%w: %v", ErrTransport, err))
	}
	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}

	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return nil, wrap(StatusError(resp.StatusCode, string(body)))
}

// StatusError maps an unexpected HTTP status to the error taxonomy.
func StatusError(code int, body string) error {
	var kind error
	switch {
	case code == http.StatusNotFound || code == http.StatusGone:
		kind = ErrNotFound
	case code == http.StatusTooManyRequests:
		kind = ErrRateLimited
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		kind = ErrUnauthorized
	default:
		kind = ErrTransport
	}
	if body == "" {
		return fmt.Errorf("%w: HTTP %d", kind, code)
	}
	return fmt.Errorf("%w: HTTP %d: %s", kind, code, body)
}
