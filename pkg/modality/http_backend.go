package modality

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/pkg/errors"

	"github.com/go-go-golems/mento/pkg/session"
)

// HTTPBackend reaches the backend's request/response endpoints over plain
// JSON calls. Authentication is carried by the injected http.Client's
// transport, out of band of this package.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
}

func NewHTTPBackend(baseURL string, client *http.Client) *HTTPBackend {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPBackend{baseURL: baseURL, client: client}
}

var _ Backend = (*HTTPBackend)(nil)

func (b *HTTPBackend) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (b *HTTPBackend) FetchState(ctx context.Context, sessionID string) (*session.UnifiedState, error) {
	var state session.UnifiedState
	path := fmt.Sprintf("/sessions/%s/state", url.PathEscape(sessionID))
	if err := b.do(ctx, http.MethodGet, path, nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (b *HTTPBackend) SetModality(ctx context.Context, sessionID string, m session.Modality) error {
	path := fmt.Sprintf("/sessions/%s/modality", url.PathEscape(sessionID))
	return b.do(ctx, http.MethodPost, path, map[string]any{"modality": m}, nil)
}

func (b *HTTPBackend) MergeData(ctx context.Context, sessionID string, fields map[string]any) (*session.UnifiedState, error) {
	var state session.UnifiedState
	path := fmt.Sprintf("/sessions/%s/merge", url.PathEscape(sessionID))
	if err := b.do(ctx, http.MethodPost, path, map[string]any{"fields": fields}, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (b *HTTPBackend) PrefillData(ctx context.Context, sessionID string, intent string) (map[string]any, error) {
	var data map[string]any
	path := fmt.Sprintf("/sessions/%s/prefill?intent=%s", url.PathEscape(sessionID), url.QueryEscape(intent))
	if err := b.do(ctx, http.MethodGet, path, nil, &data); err != nil {
		return nil, err
	}
	return data, nil
}

func (b *HTTPBackend) ClearState(ctx context.Context, sessionID string) error {
	path := fmt.Sprintf("/sessions/%s/state", url.PathEscape(sessionID))
	return b.do(ctx, http.MethodDelete, path, nil, nil)
}
