package feed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// listingMarker identifies a request body that already carries a feed
// document, which is then used verbatim instead of fetching the vendor URL.
const listingMarker = "<list"

// Acquirer obtains the raw feed bytes for one vendor. Fetch failures are
// surfaced directly; there is no retry at this layer.
type Acquirer struct {
	client *http.Client
	url    string
}

func NewAcquirer(client *http.Client, url string) *Acquirer {
	return &Acquirer{client: client, url: url}
}

// Acquire returns body verbatim when it contains a listing document,
// otherwise fetches the vendor URL.
func (a *Acquirer) Acquire(ctx context.Context, body []byte) ([]byte, error) {
	if bytes.Contains(body, []byte(listingMarker)) {
		return body, nil
	}
	return a.Fetch(ctx)
}

// Fetch performs a single GET of the vendor URL. The client's timeout
// bounds the whole call.
func (a *Acquirer) Fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	req.Header.Set("Accept", "application/xml, text/xml")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("feed fetch error %d: %s", resp.StatusCode, string(msg))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read feed body: %w", err)
	}
	return data, nil
}
