package agent

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/ufcrashout/iTrax/internal/store"
)

// Transport intercepts requests issued by the UI. Once the agent is
// activated, in-scope GETs are answered from the install-time cache when
// present; everything else goes to the network. It never writes the cache.
type Transport struct {
	agent *Agent
}

// Transport returns the intercepting round tripper.
func (a *Agent) Transport() *Transport {
	return &Transport{agent: a}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	a := t.agent

	if req.Method == http.MethodGet && a.State() == StateActivated && a.inScope(req.URL) {
		asset, err := a.store.GetAsset(req.Context(), http.MethodGet, req.URL.String())
		switch {
		case err == nil:
			a.logger.Debug("cache hit", zap.String("url", req.URL.String()))
			return &http.Response{
				Status:        fmt.Sprintf("%d %s", asset.Status, http.StatusText(asset.Status)),
				StatusCode:    asset.Status,
				Proto:         "HTTP/1.1",
				ProtoMajor:    1,
				ProtoMinor:    1,
				Header:        asset.Header.Clone(),
				Body:          io.NopCloser(bytes.NewReader(asset.Body)),
				ContentLength: int64(len(asset.Body)),
				Request:       req,
			}, nil
		case !errors.Is(err, store.ErrNotFound):
			a.logger.Warn("cache lookup failed, using network", zap.String("url", req.URL.String()), zap.Error(err))
		}
	}

	return a.network.RoundTrip(req)
}
