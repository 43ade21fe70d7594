package validation

import (
	"net/url"
	"strings"

	"github.com/IGLOU-EU/go-wildcard/v2"
	"go.uber.org/zap"
)

// ValidateUrl parses urlStr and checks its host against the allowed origins.
func ValidateUrl(logger *zap.Logger, urlStr string, origins []string) (valid bool, hostname string) {
	parsedUrl, err := url.Parse(urlStr)
	if err != nil {
		return false, ""
	}
	return ValidateHostname(parsedUrl, origins, logger)
}

// ValidateHostname accepts http(s) URLs whose host equals an origin or matches
// a wildcard origin such as "*.example.com". An empty list allows any host.
func ValidateHostname(parsedUrl *url.URL, origins []string, logger *zap.Logger) (valid bool, hostname string) {
	if parsedUrl.Scheme != "http" && parsedUrl.Scheme != "https" {
		return false, ""
	}

	hostname = parsedUrl.Hostname()
	if hostname == "" {
		return false, ""
	}
	if len(origins) == 0 {
		return true, hostname
	}

	for _, origin := range origins {
		if origin == hostname {
			logger.Debug("origin matched", zap.String("origin", origin), zap.String("hostname", hostname))
			return true, hostname
		}
	}

	for _, origin := range origins {
		if strings.ContainsAny(origin, "*?") && wildcard.Match(origin, hostname) {
			logger.Debug("origin matched", zap.String("origin", origin), zap.String("hostname", hostname))
			return true, hostname
		}
	}

	return false, ""
}
