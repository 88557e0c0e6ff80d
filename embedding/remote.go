package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"
)

// DefaultBatchSize is the number of texts sent per remote API call.
const DefaultBatchSize = 100

// remoteClient is the shared HTTP machinery of the remote providers.
type remoteClient struct {
	client  *http.Client
	apiKey  string
	retry   RetryPolicy
	batchSz int
}

func newRemoteClient(apiKey string, batchSize int) remoteClient {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return remoteClient{
		client:  &http.Client{Timeout: 60 * time.Second},
		apiKey:  apiKey,
		retry:   DefaultRetryPolicy(),
		batchSz: batchSize,
	}
}

// postJSON sends a bearer-authenticated JSON request and decodes the
// response into out. Non-2xx responses become an httpError carrying any
// Retry-After header, so the retry layer can classify them.
func (c *remoteClient) postJSON(ctx context.Context, url string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}

	return c.retry.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &httpError{
				status:     resp.StatusCode,
				retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
				body:       truncateBody(body),
			}
		}

		return json.Unmarshal(body, out)
	})
}

// parseRetryAfter parses a Retry-After header in seconds form.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func truncateBody(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return string(body[:limit]) + "…"
	}
	return string(body)
}

// batches splits texts into batchSz-sized slices, preserving order.
func (c *remoteClient) batches(texts []string) [][]string {
	var out [][]string
	for len(texts) > c.batchSz {
		out = append(out, texts[:c.batchSz])
		texts = texts[c.batchSz:]
	}
	if len(texts) > 0 {
		out = append(out, texts)
	}
	return out
}
