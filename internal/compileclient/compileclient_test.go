package compileclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCompileSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("server failed to decode request: %v", err)
		}

		if req.SourcePath != "/sessions/t1/testcases/child1/child1.source" {
			t.Fatalf("unexpected sourcePath in request: %q", req.SourcePath)
		}

		json.NewEncoder(w).Encode(Response{Success: true, ArtifactPath: "/tmp/child1.class"})
	}))
	defer srv.Close()

	c := New(srv.URL)

	resp, err := c.Compile(context.Background(), "/sessions/t1/testcases/child1/child1.source")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.ArtifactPath != "/tmp/child1.class" {
		t.Fatalf("unexpected artifact path: %q", resp.ArtifactPath)
	}
}

func TestCompileFailureReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Response{Success: false, Message: "syntax error"})
	}))
	defer srv.Close()

	c := New(srv.URL)

	_, err := c.Compile(context.Background(), "/sessions/t1/testcases/child1/child1.source")
	if err == nil {
		t.Fatalf("expected an error for a rejected compile")
	}
}

func TestCompileNonOKStatusReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL)

	_, err := c.Compile(context.Background(), "/sessions/t1/testcases/child1/child1.source")
	if err == nil {
		t.Fatalf("expected an error for a 500 response")
	}
}
