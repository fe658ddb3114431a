package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetchDecodesCatalog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"models":[
			{"name":"llama-3.2-11b","base_url":"https://chutes.example/v1"},
			{"name":"gpt-oss-120b-f16","base_url":"https://eigenai.eigencloud.xyz/v1","default":true}
		]}`))
	}))
	defer srv.Close()

	cat, err := NewClient(srv.URL, time.Second).Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(cat.Models) != 2 {
		t.Fatalf("models = %d", len(cat.Models))
	}
	def, ok := cat.Default()
	if !ok || def.Name != "gpt-oss-120b-f16" {
		t.Fatalf("default = %+v ok=%v", def, ok)
	}
}

func TestFetchErrorsFeedFallback(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"non-200":    func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) },
		"bad json":   func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("not json")) },
		"empty list": func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{"models":[]}`)) },
	}
	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(handler)
			defer srv.Close()
			if _, err := NewClient(srv.URL, time.Second).Fetch(context.Background()); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestFetchUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()
	if _, err := NewClient(url, time.Second).Fetch(context.Background()); err == nil {
		t.Fatalf("expected error for unreachable catalog")
	}
}

func TestStaticDefault(t *testing.T) {
	def, ok := Static().Default()
	if !ok {
		t.Fatalf("static catalog has no default")
	}
	if def.Name != DefaultModel || def.BaseURL != DefaultBaseURL {
		t.Fatalf("static default = %+v", def)
	}
}

func TestDefaultFallsBackToFirstEntry(t *testing.T) {
	cat := Catalog{Models: []Entry{{Name: "a"}, {Name: "b"}}}
	def, ok := cat.Default()
	if !ok || def.Name != "a" {
		t.Fatalf("default = %+v", def)
	}
}
