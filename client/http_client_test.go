package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetchMatrix(t *testing.T) {
	body := "header\n1,2\n3,4\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/frame.txt":
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Write([]byte(body))
		case "/big.txt":
			w.Header().Set("Content-Type", "text/plain")
			w.Write([]byte(strings.Repeat("1,", 64)))
		case "/image.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write([]byte("png"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	got, err := FetchMatrix(ctx, srv.URL+"/frame.txt", 1024)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != body {
		t.Fatalf("%q", got)
	}

	if _, err := FetchMatrix(ctx, srv.URL+"/big.txt", 16); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if _, err := FetchMatrix(ctx, srv.URL+"/image.png", 1024); !errors.Is(err, ErrContentType) {
		t.Fatalf("expected ErrContentType, got %v", err)
	}
	var se *StatusError
	if _, err := FetchMatrix(ctx, srv.URL+"/missing.txt", 1024); !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 StatusError, got %v", err)
	}
}
