package sync

import (
	"context"
	"net/http"
	"time"
)

// Connectivity gates sync passes on network availability. Evaluated before
// every (re)attempt; an offline answer parks the unit, it never fails it.
type Connectivity interface {
	Online(ctx context.Context) bool
}

// HTTPConnectivity probes a URL with a HEAD request. Any response at all
// counts as online; only transport errors count as offline.
type HTTPConnectivity struct {
	URL    string
	Client *http.Client
}

func NewHTTPConnectivity(url string) *HTTPConnectivity {
	return &HTTPConnectivity{
		URL: url,
		Client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (c *HTTPConnectivity) Online(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.URL, nil)
	if err != nil {
		return false
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// AlwaysOnline is a Connectivity for setups without a probe target.
type AlwaysOnline struct{}

func (AlwaysOnline) Online(context.Context) bool { return true }
