package endpoint

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestJSONRenderer(t *testing.T) {
	w := httptest.NewRecorder()
	r := &JSONRenderer{Value: map[string]string{"access_token": "at"}}
	if err := r.Render(w, httptest.NewRequest("GET", "/", nil)); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("content type: got %q", ct)
	}
	var got map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if got["access_token"] != "at" {
		t.Fatalf("body: got %v", got)
	}
}

func TestRedirectRenderer(t *testing.T) {
	w := httptest.NewRecorder()
	r := &RedirectRenderer{URL: "/login?return_to=%2Foauth%2Fauthorize"}
	if err := r.Render(w, httptest.NewRequest("GET", "/", nil)); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if w.Code != http.StatusFound {
		t.Fatalf("status: got %d want 302", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/login?return_to=%2Foauth%2Fauthorize" {
		t.Fatalf("location: got %q", loc)
	}
}

func TestTemplateRenderer_Escapes(t *testing.T) {
	tmpl := template.Must(template.New("page").Parse(`<p>{{.Name}}</p>`))

	w := httptest.NewRecorder()
	r := &TemplateRenderer{Template: tmpl, Name: "page", Values: map[string]string{"Name": `<script>alert(1)</script>`}}
	if err := r.Render(w, httptest.NewRequest("GET", "/", nil)); err != nil {
		t.Fatalf("Render: %v", err)
	}
	body := w.Body.String()
	if strings.Contains(body, "<script>alert") {
		t.Fatalf("unescaped output: %q", body)
	}
	if !strings.Contains(body, "&lt;script&gt;") {
		t.Fatalf("expected escaped markup, got %q", body)
	}
}

func TestTemplateRenderer_BuffersFailures(t *testing.T) {
	// A template that fails mid-render must not leak a partial body.
	tmpl := template.Must(template.New("page").Parse(`before {{.Missing.Deep}} after`))

	w := httptest.NewRecorder()
	r := &TemplateRenderer{Template: tmpl, Name: "page", Values: struct{}{}}
	if err := r.Render(w, httptest.NewRequest("GET", "/", nil)); err == nil {
		t.Fatal("expected render error")
	}
	if w.Body.Len() != 0 {
		t.Fatalf("partial body written: %q", w.Body.String())
	}
}

func TestRendererFunc(t *testing.T) {
	want := errors.New("sentinel")
	var r Renderer = RendererFunc(func(http.ResponseWriter, *http.Request) error { return want })
	if err := r.Render(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil)); err != want {
		t.Fatalf("got %v want sentinel", err)
	}
}
