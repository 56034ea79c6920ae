package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// User is the display projection of an identity-service user.
type User struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
}

// Client resolves user ids to display details. Implementations are injected
// so callers can stub them in tests or wrap them with a circuit breaker.
type Client interface {
	LookupUsers(ctx context.Context, ids []string) (map[string]User, error)
}

// HTTPClient calls the identity service's batch lookup endpoint.
type HTTPClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

const defaultTimeout = 5 * time.Second

func NewHTTP(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

// LookupUsers posts a batch of ids and returns a map keyed by id. Missing ids
// are simply absent from the result.
func (c *HTTPClient) LookupUsers(ctx context.Context, ids []string) (map[string]User, error) {
	if len(ids) == 0 {
		return map[string]User{}, nil
	}
	body, err := json.Marshal(map[string][]string{"ids": ids})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/users/batch", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return nil, fmt.Errorf("directory lookup: status=%d body=%s", res.StatusCode, string(data))
	}
	var users []User
	if err := json.NewDecoder(res.Body).Decode(&users); err != nil {
		return nil, err
	}
	out := make(map[string]User, len(users))
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

// Static is a fixed in-memory directory, used by tests and the CLI.
type Static map[string]User

func (s Static) LookupUsers(_ context.Context, ids []string) (map[string]User, error) {
	out := map[string]User{}
	for _, id := range ids {
		if u, ok := s[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}
