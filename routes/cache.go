package routes

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"thermal-render/metrics"
	"thermal-render/storage"
	"thermal-render/validation"
)

const (
	cachePlaceResponseHandler = "response-handler"
	cachePlaceS3CacheLocation = "s3cache-location"
	cachePlaceS3Cache         = "s3cache"
)

// s3LookupTimeout bounds the second level cache lookup so a slow bucket
// degrades to a fresh render.
const s3LookupTimeout = 5 * time.Second

// cacheKey identifies a render: source|mode|fmt|q|s
func cacheKey(source string, params *validation.RenderContext) string {
	var builder strings.Builder
	builder.WriteString(source)
	builder.WriteString("|")
	builder.WriteString(params.Mode)
	builder.WriteString("|")
	builder.WriteString(string(params.Format))
	builder.WriteString("|")
	builder.WriteString(strconv.Itoa(params.Quality))
	builder.WriteString("|")
	builder.WriteString(strconv.Itoa(params.Scale))
	return builder.String()
}

// s3CacheKey maps a cache key to an object key.
func s3CacheKey(key string, params *validation.RenderContext) string {
	return "cache/" + metrics.HashURL(key) + params.Format.Ext()
}

type frameCache struct {
	logger   *zap.Logger
	memory   *storage.Cache
	s3       *storage.S3Sink
	counters *metrics.Metrics
}

// serve writes a cached render to c. It reports whether one was found.
func (fc *frameCache) serve(c *fiber.Ctx, key string, params *validation.RenderContext) (bool, error) {
	if obj, ok := fc.memory.Get(key); ok {
		return true, fc.send(c, obj, cachePlaceResponseHandler)
	}
	if fc.s3 == nil {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), s3LookupTimeout)
	defer cancel()

	if params.CustomObjectKey != "" {
		obj, err := fc.s3.Get(ctx, params.CustomObjectKey)
		if err != nil {
			fc.logger.Warn("s3 cache location lookup failed", zap.String("s3_location", params.CustomObjectKey), zap.Error(err))
		} else if obj != nil {
			fc.memory.Set(key, *obj)
			return true, fc.send(c, *obj, cachePlaceS3CacheLocation)
		}
	}

	obj, err := fc.s3.Get(ctx, s3CacheKey(key, params))
	if err != nil {
		fc.logger.Warn("s3 cache lookup failed", zap.String("cache_key", key), zap.Error(err))
		return false, nil
	}
	if obj == nil {
		return false, nil
	}
	// backfill in-memory cache
	fc.memory.Set(key, *obj)
	return true, fc.send(c, *obj, cachePlaceS3Cache)
}

func (fc *frameCache) send(c *fiber.Ctx, obj storage.Object, place string) error {
	fc.counters.ServedCached.WithLabelValues("frame", place).Inc()
	c.Set(fiber.HeaderContentType, obj.ContentType)
	c.Set("X-Cache-Place", place)
	return c.Send(obj.Body)
}

// store keeps a fresh render in memory and, asynchronously, in S3.
func (fc *frameCache) store(key string, params *validation.RenderContext, obj storage.Object) {
	fc.memory.Set(key, obj)
	if fc.s3 == nil {
		return
	}

	objectKey := s3CacheKey(key, params)
	if params.CustomObjectKey != "" {
		objectKey = params.CustomObjectKey
	}
	go func() {
		if err := fc.s3.Put(context.Background(), objectKey, obj.Body, obj.ContentType); err != nil {
			fc.logger.Error("failed to store render in S3 cache", zap.Error(err), zap.String("s3_location", objectKey), zap.String("cache_key", key))
		}
	}()
}
