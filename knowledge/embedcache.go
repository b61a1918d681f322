package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultEmbedCacheTTL = 24 * time.Hour

// cachedEmbedder wraps another Embedder with a redis cache keyed by a hash of
// task type and text. Cache failures are logged and fall through to the inner
// embedder; the cache never turns a hit path into an error path.
type cachedEmbedder struct {
	inner  Embedder
	client *redis.Client
	ttl    time.Duration
}

// WithEmbedCacheFromEnv wraps the given embedder with a redis cache when
// REDIS_ADDR is configured and reachable. Returns the inner embedder
// unchanged otherwise.
func WithEmbedCacheFromEnv(inner Embedder) Embedder {
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" || inner == nil {
		return inner
	}

	db := 0
	if rawDB := strings.TrimSpace(os.Getenv("REDIS_DB")); rawDB != "" {
		if parsed, err := strconv.Atoi(rawDB); err == nil {
			db = parsed
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("knowledge: embed cache disabled, ping redis %s failed: %v", addr, err)
		_ = client.Close()
		return inner
	}

	ttl := defaultEmbedCacheTTL
	if raw := strings.TrimSpace(os.Getenv("EMBED_CACHE_TTL_SECONDS")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			ttl = time.Duration(parsed) * time.Second
		}
	}

	return &cachedEmbedder{inner: inner, client: client, ttl: ttl}
}

func (c *cachedEmbedder) EmbedText(ctx context.Context, text string, taskType string) ([]float32, error) {
	key := embedCacheKey(text, taskType)

	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var vector []float32
		if err := json.Unmarshal(raw, &vector); err == nil && len(vector) > 0 {
			return vector, nil
		}
	}

	vector, err := c.inner.EmbedText(ctx, text, taskType)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(vector); err == nil {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			log.Printf("knowledge: embed cache write failed: %v", err)
		}
	}
	return vector, nil
}

func embedCacheKey(text string, taskType string) string {
	sum := sha256.Sum256([]byte(taskType + "\x00" + text))
	return fmt.Sprintf("embed:%s", hex.EncodeToString(sum[:]))
}
