package routes

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	stdmime "mime"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"thermal-render/anchor"
	"thermal-render/client"
	"thermal-render/config"
	"thermal-render/convert"
	"thermal-render/frame"
	"thermal-render/metrics"
	"thermal-render/mime"
	"thermal-render/pool"
	"thermal-render/storage"
	"thermal-render/validation"
)

type frameHandler struct {
	logger   *zap.Logger
	config   *config.Config
	cache    *frameCache
	counters *metrics.Metrics
	perf     *metrics.PerformanceMetrics
	palettes frame.Renderer
}

// RegisterFrameRoutes sets up the render routes. s3 may be nil.
func RegisterFrameRoutes(logger *zap.Logger, cache *storage.Cache, config *config.Config, app *fiber.App, counters *metrics.Metrics, perf *metrics.PerformanceMetrics, s3 *storage.S3Sink) error {
	palettes, err := config.Palettes()
	if err != nil {
		return err
	}
	h := &frameHandler{
		logger:   logger,
		config:   config,
		cache:    &frameCache{logger: logger, memory: cache, s3: s3, counters: counters},
		counters: counters,
		perf:     perf,
		palettes: palettes,
	}

	// Path-based route: /frames/mode:gray/fmt:webp/q:80/s:4/{base64-encoded-url}
	app.Get("/frames/*", h.observed("fetch", h.handleFrameRequest))

	// Upload route: /frames/mode:gray/t:{token}, multipart field "matrix"
	app.Post("/frames/*", h.observed("upload", h.handleFrameUpload))
	return nil
}

func (h *frameHandler) observed(kind string, next fiber.Handler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := next(c)
		h.perf.ObserveRequest(kind, strconv.Itoa(c.Response().StatusCode()), time.Since(start))
		return err
	}
}

//#region handleFrameRequest

// handleFrameRequest renders a remote matrix file
func (h *frameHandler) handleFrameRequest(c *fiber.Ctx) error {
	logger := h.logger
	pathParams := c.Params("*")
	logger.Info("frame request received", zap.String("pathParams", pathParams), zap.String("remote_ip", c.IP()))

	ok, status, params, err := validation.ProcessRenderContextFromPath(logger, pathParams, h.config)
	if !ok {
		logger.Error("failed to process render context from path", zap.String("pathParams", pathParams), zap.Int("status", status), zap.Error(err))
		return c.Status(status).SendString(err.Error())
	}

	key := cacheKey(params.Url, params)
	if hit, err := h.cache.serve(c, key, params); hit {
		h.counters.SuccessfullyServed.WithLabelValues("frame", metrics.CleanHostname(params.Hostname), metrics.HashURL(params.Url)).Inc()
		return err
	}

	done := metrics.TimeHTTPRequest(metrics.CleanHostname(params.Hostname), h.perf)
	body, err := client.FetchMatrix(c.UserContext(), params.Url, h.config.MaxMatrixSize)
	done()
	if err != nil {
		logger.Error("failed to fetch matrix", zap.Error(err), zap.String("url", params.Url), zap.String("hostname", params.Hostname))
		switch {
		case errors.Is(err, client.ErrTooLarge):
			return c.Status(fiber.StatusRequestEntityTooLarge).SendString(err.Error())
		case errors.Is(err, client.ErrContentType):
			return c.Status(fiber.StatusForbidden).SendString(err.Error())
		}
		return c.Status(fiber.StatusBadGateway).SendString("failed to fetch matrix")
	}

	return h.render(c, params, key, params.Url, body)
}

//#endregion

//#region handleFrameUpload

// handleFrameUpload renders an uploaded matrix file
// Requires: token (in path parameters), or a signed location for S3 upload
func (h *frameHandler) handleFrameUpload(c *fiber.Ctx) error {
	logger := h.logger
	logger.Info("frame upload request received")

	if err := validation.ValidateContentLength(c.Get(fiber.HeaderContentLength), h.config.MaxMatrixSize); err != nil {
		return c.Status(fiber.StatusRequestEntityTooLarge).SendString(err.Error())
	}

	ok, status, params, err := validation.ProcessRenderUploadFromPath(logger, c.Params("*"), h.config)
	if !ok {
		return c.Status(status).SendString(err.Error())
	}

	file, err := c.FormFile("matrix")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("failed to get matrix file")
	}
	if err := validation.ValidateFileSize(file.Size, h.config.MaxMatrixSize); err != nil {
		return c.Status(fiber.StatusRequestEntityTooLarge).SendString(err.Error())
	}

	if params.CustomObjectKey != "" && h.cache.s3 == nil {
		logger.Error("S3 storage is not enabled or configured")
		return c.Status(fiber.StatusServiceUnavailable).SendString("upload to location unavailable")
	}

	if contentType := file.Header.Get(fiber.HeaderContentType); contentType != "" {
		parsed, _, err := stdmime.ParseMediaType(contentType)
		if err != nil || !mime.IsMatrixMime(parsed) {
			return c.Status(fiber.StatusUnsupportedMediaType).SendString(fmt.Sprintf("content type '%s' is not allowed", contentType))
		}
	}

	f, err := file.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("failed to open matrix file")
	}
	defer f.Close()

	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)
	if _, err := io.Copy(buf, f); err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("failed to read matrix file")
	}
	body := pool.Bytes(buf)

	source := file.Filename
	if source == "" {
		source = "upload"
	}
	key := cacheKey("upload:"+metrics.HashURL(string(body)), params)
	if hit, err := h.cache.serve(c, key, params); hit {
		return err
	}

	return h.render(c, params, key, source, body)
}

//#endregion

//#region render

// renderer picks the frame renderer for a mode accepted by validation.
func (h *frameHandler) renderer(mode string) (convert.Renderer, error) {
	if mode == "anchor" {
		return anchor.Renderer{Draw: true, Palettes: h.palettes, Logger: h.logger}, nil
	}
	m, err := frame.ParseMode(mode)
	if err != nil {
		return nil, err
	}
	return h.palettes.With(m), nil
}

// render loads, renders and encodes a matrix file, then caches and sends the image.
func (h *frameHandler) render(c *fiber.Ctx, params *validation.RenderContext, key, source string, body []byte) error {
	logger := h.logger.With(zap.String("source", source), zap.String("mode", params.Mode))

	f, err := metrics.TimeFunction(func() (*frame.Frame, error) {
		return frame.Load(bytes.NewReader(body), source)
	}, metrics.StageLoad, h.perf)
	if err != nil {
		logger.Error("failed to load matrix", zap.Error(err))
		h.counters.Converted(params.Mode, metrics.StatusFailed)
		return c.Status(fiber.StatusBadRequest).SendString(err.Error())
	}

	renderer, err := h.renderer(params.Mode)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).SendString(err.Error())
	}
	img, err := metrics.TimeFunction(func() (image.Image, error) {
		return renderer.Render(f)
	}, metrics.StageRender, h.perf)
	switch {
	case errors.Is(err, convert.ErrSkipped):
		logger.Info("frame skipped", zap.Error(err))
		h.counters.Converted(params.Mode, metrics.StatusSkipped)
		return c.Status(fiber.StatusUnprocessableEntity).SendString(err.Error())
	case errors.Is(err, anchor.ErrUnavailable):
		return c.Status(fiber.StatusNotImplemented).SendString(err.Error())
	case err != nil:
		logger.Error("failed to render frame", zap.Error(err))
		h.counters.Converted(params.Mode, metrics.StatusFailed)
		return c.Status(fiber.StatusInternalServerError).SendString("failed to render frame")
	}

	encoder := params.Encoder()
	data, err := metrics.TimeFunction(func() ([]byte, error) {
		return encoder.Encode(img)
	}, metrics.StageEncode, h.perf)
	if err != nil {
		logger.Error("failed to encode image", zap.Error(err), zap.String("format", string(params.Format)), zap.Int("quality", params.Quality))
		h.counters.Converted(params.Mode, metrics.StatusFailed)
		return c.Status(fiber.StatusInternalServerError).SendString("failed to encode image")
	}
	h.perf.ObserveSize(string(params.Format), len(data))

	obj := storage.Object{Body: data, ContentType: encoder.ContentType()}
	h.cache.store(key, params, obj)

	h.counters.Converted(params.Mode, metrics.StatusWritten)
	h.counters.SuccessfullyServed.WithLabelValues("frame", metrics.CleanHostname(params.Hostname), metrics.HashURL(source)).Inc()
	logger.Info("frame served successfully", zap.String("content_type", obj.ContentType), zap.String("cache_key", key), zap.Int("bytes", len(data)))

	c.Set(fiber.HeaderContentType, obj.ContentType)
	c.Set(fiber.HeaderCacheControl, fmt.Sprintf("public, max-age=%d", h.config.CacheTTL))
	return c.Send(data)
}

//#endregion
