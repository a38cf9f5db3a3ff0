package attachments

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// MemorySigner returns stable fake URLs. Nothing is stored.
type MemorySigner struct {
	bucket  string
	baseURL string
	now     func() time.Time
}

func NewMemorySigner(bucket, baseURL string) *MemorySigner {
	if baseURL == "" {
		baseURL = "http://localhost:8787/blobs"
	}
	return &MemorySigner{bucket: bucket, baseURL: baseURL, now: time.Now}
}

func (m *MemorySigner) Driver() Driver { return DriverMemory }

func (m *MemorySigner) PresignPut(_ context.Context, key, contentType string, expiry time.Duration) (string, error) {
	return m.sign(key, "PUT", expiry, url.Values{"content-type": {contentType}}), nil
}

func (m *MemorySigner) PresignGet(_ context.Context, key string, expiry time.Duration) (string, error) {
	return m.sign(key, "GET", expiry, url.Values{}), nil
}

func (m *MemorySigner) sign(key, method string, expiry time.Duration, q url.Values) string {
	q.Set("method", method)
	q.Set("expires", strconv.FormatInt(m.now().Add(expiry).Unix(), 10))
	return fmt.Sprintf("%s/%s/%s?%s", m.baseURL, m.bucket, key, q.Encode())
}
