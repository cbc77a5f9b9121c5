// Package state implements the §4.11 State Store Client: a semantic KV
// over named stores (state, artifacts, dead-letter, history) backed by
// Redis, with transparent snapshot compression (gzip, lz4 or snappy) and
// bounded history lists.
package state

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/snappy"
	"github.com/pierrec/lz4/v4"

	redisclient "github.com/sentinel-webhook/monitor/internal/common/redis"
)

// Compression algorithm names, matching the snapshot envelope's
// "compression" field.
const (
	CompressionGzip   = "gzip"
	CompressionLZ4    = "lz4"
	CompressionSnappy = "snappy"
)

// Store name prefixes, used to namespace Redis keys per §4.11's "named
// stores" concept without standing up separate Redis databases.
const (
	StoreState      = "state"
	StoreArtifacts  = "artifacts"
	StoreDeadLetter = "dead-letter"
	StoreHistory    = "history"
)

type Client struct {
	redis       *redisclient.Client
	compression string
}

// New builds a Client backed by redis, compressing snapshots with gzip.
func New(redis *redisclient.Client) *Client {
	return &Client{redis: redis, compression: CompressionGzip}
}

// NewWithCompression builds a Client using algorithm ("gzip", "lz4" or
// "snappy") instead of the default gzip codec.
func NewWithCompression(redis *redisclient.Client, algorithm string) *Client {
	if algorithm == "" {
		algorithm = CompressionGzip
	}
	return &Client{redis: redis, compression: algorithm}
}

func namespacedKey(store, key string) string {
	return fmt.Sprintf("sentinel:%s:%s", store, key)
}

// Get reads a value from store, transparently decompressing snapshots
// written with the gzip sentinel fields.
func (c *Client) Get(ctx context.Context, store, key string) (string, bool, error) {
	raw, err := c.redis.Get(ctx, namespacedKey(store, key))
	if err != nil {
		return "", false, err
	}
	if raw == "" {
		return "", false, nil
	}
	decoded, err := maybeDecompress(raw)
	if err != nil {
		return "", false, err
	}
	return decoded, true, nil
}

// Put writes a value to store. Snapshot payloads are compressed when
// compression measurably shrinks them; the sentinel fields let Get
// transparently reverse it.
func (c *Client) Put(ctx context.Context, store, key, value string, compress bool) error {
	encoded := value
	if compress {
		if c, ok := compressIfSmaller(value, c.compression); ok {
			encoded = c
		}
	}
	return c.redis.Set(ctx, namespacedKey(store, key), encoded, 0)
}

// ListOptions bounds a List call.
type ListOptions struct {
	Limit  int
	Offset int
	Desc   bool
}

// List returns up to Limit raw list entries starting at Offset, counted
// from the newest entry (entries are pushed with LPush, so index 0 is
// newest). With Desc set the page comes back newest first; otherwise it
// is reversed to oldest first. Used by dead-letter/history stores, which are append-only
// Redis lists rather than single keys.
func (c *Client) List(ctx context.Context, store, listKey string, opts ListOptions) ([]string, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	start := int64(opts.Offset)
	stop := start + int64(limit) - 1

	entries, err := c.redis.LRange(ctx, namespacedKey(store, listKey), start, stop)
	if err != nil {
		return nil, err
	}
	if !opts.Desc {
		reverse(entries)
	}
	return entries, nil
}

// AppendBounded pushes value onto listKey and trims it to maxLen entries,
// implementing §4.11's "optional bounded history."
func (c *Client) AppendBounded(ctx context.Context, store, listKey, value string, maxLen int) error {
	k := namespacedKey(store, listKey)
	if err := c.redis.LPush(ctx, k, value); err != nil {
		return err
	}
	if maxLen > 0 {
		return c.redis.LTrim(ctx, k, 0, int64(maxLen-1))
	}
	return nil
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// compressedSnapshot is the sentinel envelope §4.11 describes. Compression
// names one of CompressionGzip/CompressionLZ4/CompressionSnappy; Payload
// holds that codec's output, base64-encoded for safe storage as a Redis
// string alongside the uncompressed JSON values Put also writes.
type compressedSnapshot struct {
	Compression string `json:"compression"`
	Payload     string `json:"payload_base64"`
	TextLen     int    `json:"text_len"`
}

func compressIfSmaller(value, algorithm string) (string, bool) {
	compressed, err := compressBytes([]byte(value), algorithm)
	if err != nil {
		return "", false
	}

	envelope := compressedSnapshot{
		Compression: algorithm,
		Payload:     base64.StdEncoding.EncodeToString(compressed),
		TextLen:     len(value),
	}
	encoded, err := json.Marshal(envelope)
	if err != nil {
		return "", false
	}
	if len(encoded) >= len(value) {
		return "", false
	}
	return string(encoded), true
}

func compressBytes(value []byte, algorithm string) ([]byte, error) {
	var buf bytes.Buffer

	switch algorithm {
	case CompressionLZ4:
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(value); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case CompressionSnappy:
		return snappy.Encode(nil, value), nil
	default:
		gw := gzip.NewWriter(&buf)
		if _, err := gw.Write(value); err != nil {
			return nil, err
		}
		if err := gw.Close(); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func maybeDecompress(raw string) (string, error) {
	var envelope compressedSnapshot
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		return raw, nil
	}
	if envelope.Compression == "" {
		return raw, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(envelope.Payload)
	if err != nil {
		return "", fmt.Errorf("state: decode base64 snapshot: %w", err)
	}

	switch envelope.Compression {
	case CompressionLZ4:
		text, err := io.ReadAll(lz4.NewReader(bytes.NewReader(decoded)))
		if err != nil {
			return "", fmt.Errorf("state: read lz4 snapshot: %w", err)
		}
		return string(text), nil
	case CompressionSnappy:
		text, err := snappy.Decode(nil, decoded)
		if err != nil {
			return "", fmt.Errorf("state: read snappy snapshot: %w", err)
		}
		return string(text), nil
	case CompressionGzip:
		gr, err := gzip.NewReader(bytes.NewReader(decoded))
		if err != nil {
			return "", fmt.Errorf("state: open gzip snapshot: %w", err)
		}
		defer gr.Close()
		text, err := io.ReadAll(gr)
		if err != nil {
			return "", fmt.Errorf("state: read gzip snapshot: %w", err)
		}
		return string(text), nil
	default:
		return raw, nil
	}
}

