package pushclient

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// netState tracks whether the network is usable. changed is closed and
// replaced on every transition.
type netState struct {
	mu      sync.Mutex
	online  bool
	changed chan struct{}
}

func newNetState(online bool) *netState {
	return &netState{online: online, changed: make(chan struct{})}
}

func (n *netState) state() (bool, <-chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.online, n.changed
}

func (n *netState) set(online bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.online == online {
		return
	}
	n.online = online
	close(n.changed)
	n.changed = make(chan struct{})
}

func (n *netState) watch(ctx context.Context, updates <-chan bool) {
	for {
		select {
		case online, ok := <-updates:
			if !ok {
				return
			}
			n.set(online)
		case <-ctx.Done():
			return
		}
	}
}

func (n *netState) waitOnline(ctx context.Context) error {
	for {
		online, changed := n.state()
		if online {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// WatchServer polls the server's health endpoint every interval and
// reports reachability changes on the returned channel, starting with the
// first result. The channel is closed when ctx is done.
func WatchServer(ctx context.Context, httpClient *http.Client, serverURL string, interval time.Duration) <-chan bool {
	out := make(chan bool)
	go func() {
		defer close(out)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		first := true
		var last bool
		for {
			online := reachable(ctx, httpClient, apiURL(serverURL, "/health"))
			if first || online != last {
				select {
				case out <- online:
				case <-ctx.Done():
					return
				}
				first, last = false, online
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func reachable(ctx context.Context, httpClient *http.Client, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
