package yandex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

const (
	defaultIAMURL = "https://iam.api.cloud.yandex.net/iam/v1/tokens"
	iamTokenTTL   = 11 * time.Hour
)

// IamClient exchanges an OAuth token for a short-lived IAM token and caches it.
type IamClient struct {
	httpc *http.Client
	url   string
	oauth string

	mu     sync.Mutex
	token  string
	expiry time.Time
}

func NewIamClient(oauth string, httpc *http.Client) *IamClient {
	if httpc == nil {
		httpc = &http.Client{Timeout: 20 * time.Second}
	}
	return &IamClient{httpc: httpc, url: defaultIAMURL, oauth: oauth}
}

func (c *IamClient) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.expiry.Add(-time.Minute)) {
		return c.token, nil
	}

	b, _ := json.Marshal(map[string]string{"yandexPassportOauthToken": c.oauth})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("iam: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("iam: status %d", resp.StatusCode)
	}

	var out struct {
		IamToken string `json:"iamToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("iam: decode: %w", err)
	}
	c.token = out.IamToken
	c.expiry = time.Now().Add(iamTokenTTL)
	return c.token, nil
}

// Invalidate forgets the cached token so the next call fetches a fresh one.
func (c *IamClient) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}
