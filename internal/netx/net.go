// Package netx fetches objects from presigned storage URLs.
package netx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

// MaxDownloadSize caps how much of a presigned object is read.
const MaxDownloadSize = 1 << 20

var (
	httpClient      = &http.Client{Timeout: 30 * time.Second}
	downloadRetry   = uint64(2)
	downloadBackoff = 200 * time.Millisecond
)

// DownloadPresignedURL GETs url and returns the body. Network failures and
// 5xx answers are retried; any other non-200 status is returned as is.
func DownloadPresignedURL(ctx context.Context, url string) ([]byte, error) {
	var body []byte

	backoff := retry.WithMaxRetries(downloadRetry, retry.NewExponential(downloadBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}

		resp, err := httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			err := fmt.Errorf("download failed: %s; body: %s", resp.Status, string(b))
			if resp.StatusCode >= http.StatusInternalServerError {
				return retry.RetryableError(err)
			}
			return err
		}

		body, err = io.ReadAll(io.LimitReader(resp.Body, MaxDownloadSize+1))
		if err != nil {
			return retry.RetryableError(err)
		}
		if len(body) > MaxDownloadSize {
			return fmt.Errorf("download exceeds %d bytes", MaxDownloadSize)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}
