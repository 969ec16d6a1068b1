// Package remoteclient implements the REST client lnfeed uses to talk to
// the node's remote management API: listing channels and forwards,
// updating fee policy, opening/closing channels, and issuing self-pay
// invoices.
package remoteclient

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/lnfeed/lnfeed/internal/lnferr"
)

// Client is an HMAC-authenticated REST client for the remote node API
// (spec §6). It holds no Lightning secrets itself; api_key is used only
// to derive the key that signs every request.
type Client struct {
	baseURL    string
	signingKey []byte
	httpClient *http.Client
}

// Config configures a Client.
type Config struct {
	BaseURL     string
	APIKey      string
	TLSCertPath string
	Timeout     time.Duration
}

// New derives a signing key from cfg.APIKey via HKDF-SHA256 and returns a
// ready-to-use Client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, lnferr.Config("remote client base_url is required", nil)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	signingKey := make([]byte, 32)
	kdf := hkdf.New(sha256.New, []byte(cfg.APIKey), nil, []byte("lnfeed-remote-api"))
	if _, err := io.ReadFull(kdf, signingKey); err != nil {
		return nil, lnferr.Config("deriving remote API signing key", err)
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		signingKey: signingKey,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// sign computes the HMAC-SHA256 over method, path, decimal timestamp and
// body concatenated with no separator between them, hex encoded, so the server can authenticate the request without a shared
// TLS client cert.
func (c *Client) sign(method, path string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, c.signingKey)
	mac.Write([]byte(method))
	mac.Write([]byte(path))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var buf []byte
	var err error
	if body != nil {
		buf, err = json.Marshal(body)
		if err != nil {
			return lnferr.Transport("marshaling request body", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return lnferr.Transport("building request", err)
	}

	timestamp := time.Now().Unix()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Lnfeed-Timestamp", strconv.FormatInt(timestamp, 10))
	req.Header.Set("X-Lnfeed-Signature", c.sign(method, path, timestamp, buf))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return lnferr.Transport(fmt.Sprintf("%s %s", method, path), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return lnferr.Transport("reading response body", err)
	}

	if resp.StatusCode >= 400 {
		return lnferr.Remote(fmt.Sprintf("%s %s returned %d", method, path, resp.StatusCode), fmt.Errorf("%s", string(respBody)))
	}

	if result == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return lnferr.Remote("decoding response body", err)
	}
	return nil
}
