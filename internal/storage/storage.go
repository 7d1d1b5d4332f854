package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net/http"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/bobarin/codereel/internal/apperr"
)

const (
	// Per-attempt timeout. Audio clips and storyboards are small.
	requestTimeout = 60 * time.Second

	maxRetries     = 4
	baseRetryDelay = 1 * time.Second
	maxRetryDelay  = 30 * time.Second

	listPageSize = 1000
)

// Object is a stored blob and the content type recorded at upload.
type Object struct {
	Data        []byte
	ContentType string
}

// Storage is a Supabase Storage bucket addressed by object key.
type Storage struct {
	url        string
	serviceKey string
	Bucket     string
	client     *http.Client
	retryBase  time.Duration
}

func New(url, serviceKey, bucket string) *Storage {
	return &Storage{
		url:        strings.TrimRight(url, "/"),
		serviceKey: serviceKey,
		Bucket:     bucket,
		retryBase:  baseRetryDelay,
		client: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (s *Storage) objectURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/object/%s/%s", s.url, s.Bucket, key)
}

// attempt performs one request. It reports whether a failure may be retried.
type attempt func(ctx context.Context) (retryable bool, err error)

// withRetry runs fn with exponential backoff until it succeeds, fails with a
// non-retryable error, or runs out of attempts.
func (s *Storage) withRetry(ctx context.Context, op, key string, fn attempt) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			delay := retryDelay(s.retryBase, i)
			log.Printf("[Storage] %s retry %d/%d for %s (waiting %v)...", op, i, maxRetries, key, delay)

			select {
			case <-ctx.Done():
				return fmt.Errorf("%s cancelled: %w", op, ctx.Err())
			case <-time.After(delay):
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		retryable, err := fn(attemptCtx)
		cancel()
		if err == nil {
			if i > 0 {
				log.Printf("[Storage] %s succeeded on attempt %d for %s", op, i+1, key)
			}
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
		log.Printf("[Storage] %s attempt %d failed (retryable): %v", op, i+1, err)
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, maxRetries+1, lastErr)
}

// Put writes data under key, overwriting any existing object. Writing the same
// key twice leaves one object, so redelivered jobs do not duplicate assets.
func (s *Storage) Put(ctx context.Context, key string, data []byte, contentType string) error {
	return s.withRetry(ctx, "Upload", key, func(ctx context.Context) (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.objectURL(key), bytes.NewReader(data))
		if err != nil {
			return false, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+s.serviceKey)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("x-upsert", "true")

		resp, err := s.client.Do(req)
		if err != nil {
			return isRetryableError(err), fmt.Errorf("failed to upload: %w", err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
			return false, nil
		}
		return isRetryableStatus(resp.StatusCode),
			fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, apperr.Truncate(string(body), 200))
	})
}

// PutJSON marshals v and stores it as application/json.
func (s *Storage) PutJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.Put(ctx, key, data, "application/json")
}

// Get reads the object under key. A missing object returns a not_found error.
func (s *Storage) Get(ctx context.Context, key string) (*Object, error) {
	var obj *Object
	err := s.withRetry(ctx, "Download", key, func(ctx context.Context) (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.objectURL(key), nil)
		if err != nil {
			return false, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+s.serviceKey)

		resp, err := s.client.Do(req)
		if err != nil {
			return isRetryableError(err), fmt.Errorf("failed to download: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusOK {
			data, err := io.ReadAll(resp.Body)
			if err != nil {
				return true, fmt.Errorf("failed to read download body: %w", err)
			}
			contentType := resp.Header.Get("Content-Type")
			if contentType == "" {
				contentType = "application/octet-stream"
			}
			obj = &Object{Data: data, ContentType: contentType}
			return false, nil
		}

		body, _ := io.ReadAll(resp.Body)
		if isMissing(resp.StatusCode, body) {
			return false, apperr.Newf(apperr.KindNotFound, "object %s not found", key)
		}
		return isRetryableStatus(resp.StatusCode),
			fmt.Errorf("download failed with status %d: %s", resp.StatusCode, apperr.Truncate(string(body), 200))
	})
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// Delete removes the objects under keys. Keys that do not exist are ignored.
func (s *Storage) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	payload, err := json.Marshal(map[string][]string{"prefixes": keys})
	if err != nil {
		return fmt.Errorf("failed to encode delete request: %w", err)
	}

	return s.withRetry(ctx, "Delete", strings.Join(keys, ","), func(ctx context.Context) (bool, error) {
		url := fmt.Sprintf("%s/storage/v1/object/%s", s.url, s.Bucket)
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, bytes.NewReader(payload))
		if err != nil {
			return false, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+s.serviceKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return isRetryableError(err), fmt.Errorf("failed to delete: %w", err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusOK || isMissing(resp.StatusCode, body) {
			return false, nil
		}
		return isRetryableStatus(resp.StatusCode),
			fmt.Errorf("delete failed with status %d: %s", resp.StatusCode, apperr.Truncate(string(body), 200))
	})
}

// List returns the full keys of every object directly under prefix, sorted.
// prefix is treated as a folder: "jobs/1/audio/" and "jobs/1/audio" match the
// same objects.
func (s *Storage) List(ctx context.Context, prefix string) ([]string, error) {
	folder := strings.Trim(prefix, "/")
	var keys []string

	for offset := 0; ; offset += listPageSize {
		var page []struct {
			Name string  `json:"name"`
			ID   *string `json:"id"`
		}
		payload, err := json.Marshal(map[string]any{
			"prefix": folder,
			"limit":  listPageSize,
			"offset": offset,
			"sortBy": map[string]string{"column": "name", "order": "asc"},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to encode list request: %w", err)
		}

		err = s.withRetry(ctx, "List", folder, func(ctx context.Context) (bool, error) {
			url := fmt.Sprintf("%s/storage/v1/object/list/%s", s.url, s.Bucket)
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
			if err != nil {
				return false, fmt.Errorf("failed to create request: %w", err)
			}
			req.Header.Set("Authorization", "Bearer "+s.serviceKey)
			req.Header.Set("Content-Type", "application/json")

			resp, err := s.client.Do(req)
			if err != nil {
				return isRetryableError(err), fmt.Errorf("failed to list: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				body, _ := io.ReadAll(resp.Body)
				return isRetryableStatus(resp.StatusCode),
					fmt.Errorf("list failed with status %d: %s", resp.StatusCode, apperr.Truncate(string(body), 200))
			}
			if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
				return false, fmt.Errorf("failed to parse list response: %w", err)
			}
			return false, nil
		})
		if err != nil {
			return nil, err
		}

		for _, entry := range page {
			// Folders come back with a null id.
			if entry.ID == nil {
				continue
			}
			keys = append(keys, path.Join(folder, entry.Name))
		}
		if len(page) < listPageSize {
			break
		}
	}

	sort.Strings(keys)
	return keys, nil
}

// isMissing recognizes Supabase's not-found replies, which arrive either as a
// plain 404 or as a 400 carrying a "not_found" error body.
func isMissing(status int, body []byte) bool {
	if status == http.StatusNotFound {
		return true
	}
	if status != http.StatusBadRequest {
		return false
	}
	var reply struct {
		StatusCode string `json:"statusCode"`
		Error      string `json:"error"`
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		return false
	}
	return reply.StatusCode == "404" || reply.Error == "not_found"
}

// retryDelay calculates exponential backoff with jitter: base * 2^(attempt-1) + random jitter
func retryDelay(base time.Duration, attempt int) time.Duration {
	delay := float64(base) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxRetryDelay) {
		delay = float64(maxRetryDelay)
	}
	jitter := delay * 0.25 * rand.Float64()
	return time.Duration(delay + jitter)
}

// isRetryableError checks if a network-level error is worth retrying
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "broken pipe")
}

func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests ||
		status == http.StatusRequestTimeout ||
		status == http.StatusBadGateway ||
		status == http.StatusServiceUnavailable ||
		status == http.StatusGatewayTimeout
}
