package enrich

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestProductIDFromURL(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://shop.example.com/shop?products_id=12345", "12345"},
		{"https://shop.example.com/item?product_id=777", "777"},
		{"https://shop.example.com/view?id=42", "42"},
		{"https://shop.example.com/products/98765", "98765"},
		{"https://shop.example.com/products/98765/", "98765"},
		{"https://shop.example.com/about", ""},
		{"https://shop.example.com/shop?products_id=abc", ""},
		{"not a url", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := productIDFromURL(tc.url); got != tc.want {
			t.Fatalf("productIDFromURL(%q) = %q, want %q", tc.url, got, tc.want)
		}
	}
}

func TestSplitTitle(t *testing.T) {
	name, creator := splitTitle("Midnight Gown by LiraDesigns")
	if name != "Midnight Gown" || creator != "LiraDesigns" {
		t.Fatalf("unexpected split: %q / %q", name, creator)
	}

	name, creator = splitTitle("Midnight Gown")
	if name != "Midnight Gown" || creator != "" {
		t.Fatalf("unexpected split without creator: %q / %q", name, creator)
	}
}

func TestResolve_FetchesTitleAndCaches(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.Write([]byte(`<html><head><title>Midnight Gown by LiraDesigns</title></head></html>`))
	}))
	defer srv.Close()

	svc := NewService()
	sourceURL := srv.URL + "/shop?products_id=12345"

	res := svc.Resolve(context.Background(), sourceURL)
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.ExternalID != "12345" || res.Name != "Midnight Gown" || res.CreatorName != "LiraDesigns" {
		t.Fatalf("unexpected result: %+v", res)
	}

	again := svc.Resolve(context.Background(), sourceURL)
	if again != res {
		t.Fatalf("cached result differs: %+v vs %+v", again, res)
	}
	if hits != 1 {
		t.Fatalf("expected a single upstream fetch, got %d", hits)
	}
}

func TestResolve_NonProductURLFails(t *testing.T) {
	svc := NewService()
	res := svc.Resolve(context.Background(), "https://shop.example.com/about")
	if res.Success {
		t.Fatalf("expected failure for a non-product url, got %+v", res)
	}
}

func TestResolve_UnreachableHostStillReturnsID(t *testing.T) {
	svc := NewService()
	// Port 0 is never reachable; the title fetch fails but the id parse wins.
	res := svc.Resolve(context.Background(), "http://127.0.0.1:0/products/555")
	if !res.Success || res.ExternalID != "555" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Name != "" || res.CreatorName != "" {
		t.Fatalf("expected empty metadata when the fetch fails: %+v", res)
	}
}
