package validation

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"net/url"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"thermal-render/config"
	"thermal-render/imaging"
)

func hexHMAC(message, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

func testConfig() *config.Config {
	return &config.Config{
		AllowedOrigins: []string{"example.com", "*.data.example.org"},
		Token:          "upload-token",
		Format:         "png",
		Quality:        90,
		Scale:          1,
	}
}

func TestCompareHmac_ValidAndInvalid(t *testing.T) {
	secret := "test-secret"
	u := "https://example.com/moth1/frame001.txt"
	if !compareHmac(u, hexHMAC(u, secret), secret) {
		t.Fatalf("expected compareHmac to return true for valid signature")
	}
	if compareHmac(u, "deadbeef", secret) {
		t.Fatalf("expected compareHmac to return false for invalid signature")
	}
	if compareHmac(u, "not-hex", secret) {
		t.Fatalf("expected compareHmac to return false for malformed signature")
	}
}

func TestParsePathParams(t *testing.T) {
	encoded := base64.URLEncoding.EncodeToString([]byte("https://example.com/f.txt"))
	params, err := ParsePathParams("mode:gray/fmt:webp/q:75/s:4/sig:abc/" + encoded)
	if err != nil {
		t.Fatal(err)
	}
	if params.Mode != "gray" || params.Format != "webp" || params.Quality != 75 || params.Scale != 4 {
		t.Fatalf("%+v", params)
	}
	if params.Signature != "abc" || params.EncodedURL != encoded {
		t.Fatalf("%+v", params)
	}

	params, err = ParsePathParams("loc:dXBsb2Fkcy9mLnBuZw/t:tok")
	if err != nil {
		t.Fatal(err)
	}
	if params.Location != "dXBsb2Fkcy9mLnBuZw" || params.Token != "tok" || params.EncodedURL != "" {
		t.Fatalf("%+v", params)
	}

	params, err = ParsePathParams("")
	if err != nil || *params != (PathParams{}) {
		t.Fatal(params, err)
	}

	for _, bad := range []string{"q:high/x", "s:1.5/x", "webp/x", "w:100/x"} {
		if _, err := ParsePathParams(bad); err == nil {
			t.Fatalf("%q: expected failure", bad)
		}
	}
}

func TestDecodeURL(t *testing.T) {
	u := "https://example.com/a?b=c"
	for _, enc := range []string{
		base64.URLEncoding.EncodeToString([]byte(u)),
		base64.RawURLEncoding.EncodeToString([]byte(u)),
	} {
		got, err := DecodeURL(enc)
		if err != nil || got != u {
			t.Fatalf("%q: %q %v", enc, got, err)
		}
	}
	if _, err := DecodeURL("!!"); err == nil {
		t.Fatal("expected failure")
	}
}

func TestProcessRenderContextFromPath_Defaults(t *testing.T) {
	u := "https://example.com/moth1/frame001.txt"
	encoded := base64.URLEncoding.EncodeToString([]byte(u))

	ok, status, rc, err := ProcessRenderContextFromPath(zap.NewNop(), encoded, testConfig())
	if !ok || status != http.StatusOK || err != nil {
		t.Fatalf("expected OK, got ok=%v status=%d err=%v", ok, status, err)
	}
	if rc.Url != u || rc.Hostname != "example.com" || rc.Mode != "color" {
		t.Fatalf("unexpected ctx: %+v", rc)
	}
	if rc.Encoder() != (imaging.Encoder{Format: imaging.PNG, Quality: 90, Scale: 1}) {
		t.Fatalf("unexpected encoder: %+v", rc.Encoder())
	}
}

func TestProcessRenderContextFromPath_WildcardOrigin(t *testing.T) {
	u := "https://cdn.data.example.org/frame.txt"
	pathParams := "mode:gray/fmt:jpg/" + base64.URLEncoding.EncodeToString([]byte(u))
	ok, status, rc, err := ProcessRenderContextFromPath(zap.NewNop(), pathParams, testConfig())
	if !ok || status != http.StatusOK || err != nil {
		t.Fatalf("expected OK, got ok=%v status=%d err=%v", ok, status, err)
	}
	if rc.Mode != "gray" || rc.Format != imaging.JPEG || rc.Hostname != "cdn.data.example.org" {
		t.Fatalf("unexpected ctx: %+v", rc)
	}
}

func TestProcessRenderContextFromPath_Rejected(t *testing.T) {
	secret := "test-secret"
	signed := testConfig()
	signed.HmacKey = secret

	good := "https://example.com/frame.txt"
	enc := func(s string) string { return base64.URLEncoding.EncodeToString([]byte(s)) }

	data := []struct {
		name   string
		path   string
		cfg    *config.Config
		status int
	}{
		{"no url", "mode:gray", testConfig(), http.StatusBadRequest},
		{"bad base64", "%%%", testConfig(), http.StatusBadRequest},
		{"origin", enc("https://evil.com/frame.txt"), testConfig(), http.StatusForbidden},
		{"scheme", enc("file:///etc/passwd"), testConfig(), http.StatusForbidden},
		{"mode", "mode:sepia/" + enc(good), testConfig(), http.StatusBadRequest},
		{"format", "fmt:gif/" + enc(good), testConfig(), http.StatusBadRequest},
		{"quality", "q:101/" + enc(good), testConfig(), http.StatusBadRequest},
		{"scale", "s:100/" + enc(good), testConfig(), http.StatusBadRequest},
		{"missing signature", enc(good), signed, http.StatusForbidden},
		{"invalid signature", "sig:deadbeef/" + enc(good), signed, http.StatusForbidden},
		{"signature without key", "sig:" + hexHMAC(good, secret) + "/" + enc(good), testConfig(), http.StatusForbidden},
		{"location without signature", "loc:" + enc("renders/a.png") + "/" + enc(good), signed, http.StatusForbidden},
	}
	for _, line := range data {
		ok, status, _, err := ProcessRenderContextFromPath(zap.NewNop(), line.path, line.cfg)
		if ok || status != line.status || err == nil {
			t.Fatalf("%s: got ok=%v status=%d err=%v, want %d", line.name, ok, status, err, line.status)
		}
	}
}

func TestProcessRenderContextFromPath_Signed(t *testing.T) {
	secret := "test-secret"
	cfg := testConfig()
	cfg.HmacKey = secret

	u := "https://example.com/moth1/frame001.txt"
	encoded := base64.URLEncoding.EncodeToString([]byte(u))

	ok, status, rc, err := ProcessRenderContextFromPath(zap.NewNop(), "sig:"+hexHMAC(u, secret)+"/"+encoded, cfg)
	if !ok || status != http.StatusOK || err != nil {
		t.Fatalf("expected OK, got ok=%v status=%d err=%v", ok, status, err)
	}
	if rc.CustomObjectKey != "" {
		t.Fatalf("unexpected ctx: %+v", rc)
	}

	location := "renders/moth1/frame001.png"
	pathParams := "loc:" + base64.URLEncoding.EncodeToString([]byte(location)) +
		"/sig:" + hexHMAC(u+"|"+location, secret) + "/" + encoded
	ok, status, rc, err = ProcessRenderContextFromPath(zap.NewNop(), pathParams, cfg)
	if !ok || status != http.StatusOK || err != nil {
		t.Fatalf("expected OK, got ok=%v status=%d err=%v", ok, status, err)
	}
	if rc.CustomObjectKey != location {
		t.Fatalf("unexpected ctx: %+v", rc)
	}
}

func TestProcessRenderUploadFromPath(t *testing.T) {
	cfg := testConfig()
	ok, status, rc, err := ProcessRenderUploadFromPath(zap.NewNop(), "mode:gray/t:upload-token", cfg)
	if !ok || status != http.StatusOK || err != nil {
		t.Fatalf("expected OK, got ok=%v status=%d err=%v", ok, status, err)
	}
	if rc.Mode != "gray" || rc.Url != "" {
		t.Fatalf("unexpected ctx: %+v", rc)
	}

	for _, p := range []string{"mode:gray", "t:wrong", "t:upload-token/aHR0cHM6Ly9leGFtcGxlLmNvbQ"} {
		if ok, _, _, err := ProcessRenderUploadFromPath(zap.NewNop(), p, cfg); ok || err == nil {
			t.Fatalf("%q: expected rejection", p)
		}
	}

	cfg.HmacKey = "test-secret"
	location := "renders/upload.png"
	pathParams := "loc:" + base64.URLEncoding.EncodeToString([]byte(location)) + "/sig:" + hexHMAC(location, cfg.HmacKey)
	ok, status, rc, err = ProcessRenderUploadFromPath(zap.NewNop(), pathParams, cfg)
	if !ok || status != http.StatusOK || err != nil {
		t.Fatalf("expected OK, got ok=%v status=%d err=%v", ok, status, err)
	}
	if rc.CustomObjectKey != location {
		t.Fatalf("unexpected ctx: %+v", rc)
	}
}

func TestSanitizeLocation(t *testing.T) {
	if got, err := sanitizeLocation("/renders/a.png"); err != nil || got != "renders/a.png" {
		t.Fatal(got, err)
	}
	for _, bad := range []string{"", "../etc", "a\\b", "a b", "ä.png"} {
		if _, err := sanitizeLocation(bad); err == nil {
			t.Fatalf("%q: expected failure", bad)
		}
	}
}

func TestValidateHostname(t *testing.T) {
	logger := zap.NewNop()
	data := []struct {
		url     string
		origins []string
		want    bool
	}{
		{"https://example.com/f", nil, true},
		{"ftp://example.com/f", nil, false},
		{"https://example.com:8443/f", []string{"example.com"}, true},
		{"https://a.b.example.com/f", []string{"*.example.com"}, true},
		{"https://example.net/f", []string{"*.example.com", "example.com"}, false},
	}
	for i, line := range data {
		u, err := url.Parse(line.url)
		if err != nil {
			t.Fatal(err)
		}
		if got, _ := ValidateHostname(u, line.origins, logger); got != line.want {
			t.Fatalf("#%d: got %v", i, got)
		}
	}
}

func TestValidateContentLength(t *testing.T) {
	if err := ValidateContentLength("", 10); err != nil {
		t.Fatal(err)
	}
	if err := ValidateContentLength("11", 10); err == nil {
		t.Fatal("expected failure")
	}
	if err := ValidateContentLength("abc", 10); err == nil {
		t.Fatal("expected failure")
	}
	if err := ValidateContentLength("1000", 0); err != nil {
		t.Fatal(err)
	}
}

func TestProcessRenderUploadFromPath_Fiber(t *testing.T) {
	cfg := testConfig()
	app := fiber.New()
	app.Post("/frames/*", func(c *fiber.Ctx) error {
		ok, status, _, err := ProcessRenderUploadFromPath(zap.NewNop(), c.Params("*"), cfg)
		if !ok {
			return c.Status(status).SendString(err.Error())
		}
		return c.SendStatus(status)
	})

	for path, want := range map[string]int{
		"/frames/mode:gray/t:upload-token": http.StatusOK,
		"/frames/mode:gray/t:nope":         http.StatusForbidden,
		"/frames/q:0/t:upload-token":       http.StatusOK,
		"/frames/q:500/t:upload-token":     http.StatusBadRequest,
	} {
		req, _ := http.NewRequest(http.MethodPost, path, nil)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test error: %v", err)
		}
		if resp.StatusCode != want {
			t.Fatalf("%s: expected %d, got %d", path, want, resp.StatusCode)
		}
	}
}
