// Package settlement reports finished rounds to the external ledger.
package settlement

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/wfunc/gamehall/models"
)

const (
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Timestamp"
)

var ErrNotConfigured = errors.New("settlement: endpoint not configured")

// Request is the signed body posted to the ledger.
type Request struct {
	BatchID   string             `json:"batchId"`
	Timestamp int64              `json:"timestamp"`
	Nonce     string             `json:"nonce"`
	Result    models.RoundResult `json:"result"`
}

// StatusError is returned for non-2xx ledger responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("settlement failed with status %d: %s", e.StatusCode, e.Body)
}

type Client struct {
	endpoint string
	secret   []byte
	inner    *http.Client
	now      func() time.Time
}

func NewClient(endpoint, secret string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		secret:   []byte(secret),
		inner:    &http.Client{Timeout: timeout},
		now:      time.Now,
	}
}

// Sign returns hex(HMAC-SHA256(secret, body)).
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature in constant time.
func Verify(secret, body []byte, signature string) bool {
	want, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}

// Settle posts one round result. Each call is a new batch.
func (c *Client) Settle(ctx context.Context, result models.RoundResult) error {
	if c.endpoint == "" {
		return ErrNotConfigured
	}

	now := c.now()
	raw, err := json.Marshal(Request{
		BatchID:   ulid.Make().String(),
		Timestamp: now.UnixMilli(),
		Nonce:     uuid.NewString(),
		Result:    result,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, Sign(c.secret, raw))
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(now.UnixMilli(), 10))

	resp, err := c.inner.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return nil
}
