package httputil

import (
	"net/http"
	"time"
)

type Clients struct {
	Feed  *http.Client // vendor feed fetches, short timeout
	Media *http.Client // image downloads, generous timeout
}

// NewClients builds the outbound HTTP clients. Feed fetches run on the
// configured timeout so a stalled vendor endpoint cannot wedge an import;
// media downloads get a longer one since images can be large.
func NewClients(feedTimeout time.Duration) *Clients {
	if feedTimeout <= 0 {
		feedTimeout = 10 * time.Second
	}

	return &Clients{
		Feed:  &http.Client{Timeout: feedTimeout},
		Media: &http.Client{Timeout: 60 * time.Second},
	}
}
