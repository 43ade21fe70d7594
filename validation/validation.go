package validation

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"thermal-render/config"
	"thermal-render/imaging"
)

// Render modes accepted by the service.
var renderModes = []string{"color", "gray", "anchor"}

// RenderContext is a validated render request.
type RenderContext struct {
	// Url is the remote matrix file, empty for uploads.
	Url      string
	Hostname string

	Mode    string
	Format  imaging.Format
	Quality int
	Scale   int

	// Optional explicit S3 object key for the rendered image (requires signature)
	CustomObjectKey string
}

func (c *RenderContext) String() string {
	return fmt.Sprintf("mode=%s;format=%s;quality=%d;scale=%d", c.Mode, c.Format, c.Quality, c.Scale)
}

func (c *RenderContext) Encoder() imaging.Encoder {
	return imaging.Encoder{Format: c.Format, Quality: c.Quality, Scale: c.Scale}
}

// PathParams holds the parsed parameters from the URL path
type PathParams struct {
	Mode       string
	Format     string
	Quality    int
	Scale      int
	Signature  string
	Token      string
	EncodedURL string
	Location   string
}

// ParsePathParams extracts parameters from the URL path.
// Expected format: /frames/mode:gray/fmt:webp/q:80/s:4/sig:abc123/{base64-url}
// Or for uploads: /frames/mode:color/t:token
func ParsePathParams(pathParams string) (*PathParams, error) {
	params := &PathParams{}

	parts := strings.Split(strings.Trim(pathParams, "/"), "/")
	if len(parts) == 1 && parts[0] == "" {
		return params, nil
	}

	// A parameter contains ":"; anything else in last position is the encoded URL
	processParts := parts
	if last := parts[len(parts)-1]; !strings.Contains(last, ":") {
		params.EncodedURL = last
		processParts = parts[:len(parts)-1]
	}

	for _, part := range processParts {
		key, value, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("malformed parameter %q", part)
		}

		switch key {
		case "mode", "m":
			params.Mode = value
		case "fmt", "format":
			params.Format = value
		case "q", "quality":
			q, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("invalid quality %q", value)
			}
			params.Quality = q
		case "s", "scale":
			s, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("invalid scale %q", value)
			}
			params.Scale = s
		case "sig", "signature":
			params.Signature = value
		case "t", "token":
			params.Token = value
		case "loc", "location":
			params.Location = value
		default:
			return nil, fmt.Errorf("unknown parameter %q", key)
		}
	}

	return params, nil
}

// DecodeURL decodes a base64 URL-safe encoded string. Padding is optional.
func DecodeURL(encoded string) (string, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(encoded, "="))
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}
	return string(decoded), nil
}

// compareHmac validates a hex HMAC-SHA256 of message
func compareHmac(message, providedSignature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	expectedMAC := mac.Sum(nil)

	providedMAC, err := hex.DecodeString(providedSignature)
	if err != nil {
		return false
	}

	return hmac.Equal(expectedMAC, providedMAC)
}

// sanitizeLocation ensures S3 object key is in an acceptable format
func sanitizeLocation(loc string) (string, error) {
	if len(loc) == 0 || len(loc) > 512 {
		return "", fmt.Errorf("invalid location length")
	}
	if strings.Contains(loc, "..") || strings.Contains(loc, "\\") {
		return "", fmt.Errorf("invalid location characters")
	}
	for _, r := range loc {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '/' || r == '-' || r == '_' || r == '.' {
			continue
		}
		return "", fmt.Errorf("invalid character in location")
	}
	return strings.TrimLeft(loc, "/"), nil
}

// renderSettings applies the configured defaults and checks ranges.
func renderSettings(params *PathParams, cfg *config.Config) (*RenderContext, int, error) {
	rc := &RenderContext{
		Mode:    params.Mode,
		Quality: params.Quality,
		Scale:   params.Scale,
	}
	if rc.Mode == "" {
		rc.Mode = "color"
	}
	valid := false
	for _, m := range renderModes {
		valid = valid || rc.Mode == m
	}
	if !valid {
		return nil, fiber.StatusBadRequest, fmt.Errorf("mode must be one of %s", strings.Join(renderModes, ", "))
	}

	format := params.Format
	if format == "" {
		format = cfg.Format
	}
	f, err := imaging.ParseFormat(format)
	if err != nil {
		return nil, fiber.StatusBadRequest, err
	}
	rc.Format = f

	if rc.Quality == 0 {
		rc.Quality = cfg.Quality
	}
	if rc.Quality < 1 || rc.Quality > 100 {
		return nil, fiber.StatusBadRequest, fmt.Errorf("quality must be between 1 and 100")
	}

	if rc.Scale == 0 {
		rc.Scale = cfg.Scale
	}
	if rc.Scale < 1 || rc.Scale > 64 {
		return nil, fiber.StatusBadRequest, fmt.Errorf("scale must be between 1 and 64")
	}
	return rc, fiber.StatusOK, nil
}

// location decodes, sanitizes and authenticates a loc: parameter. message is
// prepended to the location with "|" before signing when non-empty.
func location(params *PathParams, message string, cfg *config.Config) (string, int, error) {
	if cfg.HmacKey == "" || params.Signature == "" {
		return "", fiber.StatusForbidden, fmt.Errorf("signature required for custom location")
	}
	decoded, err := DecodeURL(params.Location)
	if err != nil {
		return "", fiber.StatusBadRequest, fmt.Errorf("invalid location encoding: %w", err)
	}
	sanitized, err := sanitizeLocation(decoded)
	if err != nil {
		return "", fiber.StatusBadRequest, fmt.Errorf("invalid location: %w", err)
	}
	signed := sanitized
	if message != "" {
		signed = message + "|" + sanitized
	}
	if !compareHmac(signed, params.Signature, cfg.HmacKey) {
		return "", fiber.StatusForbidden, fmt.Errorf("invalid signature for location")
	}
	return sanitized, fiber.StatusOK, nil
}

// ProcessRenderUploadFromPath validates an upload request.
// Either the token must match, or a signed location must be given.
func ProcessRenderUploadFromPath(logger *zap.Logger, pathParams string, cfg *config.Config) (bool, int, *RenderContext, error) {
	params, err := ParsePathParams(pathParams)
	if err != nil {
		return false, fiber.StatusBadRequest, nil, fmt.Errorf("invalid path parameters: %w", err)
	}
	if params.EncodedURL != "" {
		return false, fiber.StatusBadRequest, nil, fmt.Errorf("uploads do not take a url")
	}

	customObjectKey := ""
	if params.Location != "" && params.Signature != "" {
		loc, status, err := location(params, "", cfg)
		if err != nil {
			return false, status, nil, err
		}
		customObjectKey = loc
	} else if cfg.Token == "" || params.Token != cfg.Token {
		logger.Debug("upload token mismatch")
		return false, fiber.StatusForbidden, nil, fmt.Errorf("invalid token")
	}

	rc, status, err := renderSettings(params, cfg)
	if err != nil {
		return false, status, nil, err
	}
	rc.CustomObjectKey = customObjectKey
	return true, fiber.StatusOK, rc, nil
}

// ProcessRenderContextFromPath validates a remote render request.
func ProcessRenderContextFromPath(logger *zap.Logger, pathParams string, cfg *config.Config) (bool, int, *RenderContext, error) {
	params, err := ParsePathParams(pathParams)
	if err != nil {
		return false, fiber.StatusBadRequest, nil, fmt.Errorf("invalid path parameters: %w", err)
	}
	if params.EncodedURL == "" {
		return false, fiber.StatusBadRequest, nil, fmt.Errorf("url is required")
	}
	urlParam, err := DecodeURL(params.EncodedURL)
	if err != nil {
		return false, fiber.StatusBadRequest, nil, fmt.Errorf("failed to decode URL: %w", err)
	}

	customObjectKey := ""
	switch {
	case params.Location != "":
		loc, status, err := location(params, urlParam, cfg)
		if err != nil {
			return false, status, nil, err
		}
		customObjectKey = loc
	case params.Signature != "":
		if cfg.HmacKey == "" {
			return false, fiber.StatusForbidden, nil, fmt.Errorf("hmac key is not set")
		}
		if !compareHmac(urlParam, params.Signature, cfg.HmacKey) {
			return false, fiber.StatusForbidden, nil, fmt.Errorf("invalid signature")
		}
	case cfg.HmacKey != "":
		return false, fiber.StatusForbidden, nil, fmt.Errorf("signature required")
	}

	validOrigin, hostname := ValidateUrl(logger, urlParam, cfg.AllowedOrigins)
	if !validOrigin {
		return false, fiber.StatusForbidden, nil, fmt.Errorf("url is not allowed")
	}

	rc, status, err := renderSettings(params, cfg)
	if err != nil {
		return false, status, nil, err
	}
	rc.Url = urlParam
	rc.Hostname = hostname
	rc.CustomObjectKey = customObjectKey
	return true, fiber.StatusOK, rc, nil
}

// ValidateFileSize checks if the file size is within acceptable limits
func ValidateFileSize(size int64, maxBytes int64) error {
	if maxBytes <= 0 {
		return nil
	}
	if size > maxBytes {
		return fmt.Errorf("file size %d bytes exceeds maximum allowed size of %d bytes", size, maxBytes)
	}
	return nil
}

// ValidateContentLength checks Content-Length header if present
func ValidateContentLength(contentLength string, maxBytes int64) error {
	if contentLength == "" || maxBytes <= 0 {
		return nil
	}

	size, err := strconv.ParseInt(contentLength, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid content length: %s", contentLength)
	}

	return ValidateFileSize(size, maxBytes)
}
