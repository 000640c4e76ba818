package contacts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/RevCBH/siren/internal/escalation"
)

// HTTPSource fetches contacts from the Auth/Contacts backend.
// The response body is either a JSON array of contacts or an object with a
// "contacts" array.
type HTTPSource struct {
	URL    string
	Token  string
	client *http.Client
}

// NewHTTPSource creates a source for url authenticating with a bearer token
func NewHTTPSource(url, token string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPSource{
		URL:   url,
		Token: token,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name returns "http"
func (h *HTTPSource) Name() string { return "http" }

// Contacts performs the request and decodes the list
func (h *HTTPSource) Contacts(ctx context.Context) ([]escalation.Contact, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if h.Token != "" {
		req.Header.Set("Authorization", "Bearer "+h.Token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("contacts backend rejected credentials: status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("contacts backend returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read contacts: %w", err)
	}
	return decode(body)
}

func decode(body []byte) ([]escalation.Contact, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var list []escalation.Contact
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, fmt.Errorf("decode contacts: %w", err)
		}
		return list, nil
	}

	var wrapped struct {
		Contacts []escalation.Contact `json:"contacts"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("decode contacts: %w", err)
	}
	return wrapped.Contacts, nil
}
