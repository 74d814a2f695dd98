package endpoint

import (
	"bytes"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net/http"
)

// setContentType sets Content-Type unless an outer processor already did.
func setContentType(w http.ResponseWriter, contentType string) {
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", contentType)
	}
}

// StringRenderer writes a plain string body.
type StringRenderer struct {
	Status      int
	Body        string
	ContentType string
}

func (sr *StringRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	ct := sr.ContentType
	if ct == "" {
		ct = "text/plain; charset=utf-8"
	}
	setContentType(w, ct)
	status := sr.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if sr.Body == "" {
		return nil
	}
	_, err := w.Write([]byte(sr.Body))
	return err
}

// NoContentRenderer writes a status code and no body.
// Status defaults to 204.
type NoContentRenderer struct {
	Status int
}

func (nr *NoContentRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	status := nr.Status
	if status == 0 {
		status = http.StatusNoContent
	}
	w.WriteHeader(status)
	return nil
}

// RedirectRenderer redirects the client. Status defaults to 302, which is
// what the consent pages use for login and post-decision redirects.
type RedirectRenderer struct {
	URL    string
	Status int
}

func (rr *RedirectRenderer) Render(w http.ResponseWriter, r *http.Request) error {
	status := rr.Status
	if status == 0 {
		status = http.StatusFound
	}
	http.Redirect(w, r, rr.URL, status)
	return nil
}

// JSONRenderer serializes Value as a JSON body.
type JSONRenderer struct {
	Status int
	Value  any
}

func (jr *JSONRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "application/json")
	status := jr.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(jr.Value)
}

// TemplateRenderer renders an html/template. Execution is buffered so a
// template error can still become a 500 instead of a half-written page.
//
// Name selects a named template within Template; when empty the root template
// executes.
type TemplateRenderer struct {
	Status   int
	Template *template.Template
	Name     string
	Values   any
}

func (tr *TemplateRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	if tr.Template == nil {
		return errors.New("endpoint: nil template")
	}
	var buf bytes.Buffer
	var err error
	if tr.Name != "" {
		err = tr.Template.ExecuteTemplate(&buf, tr.Name, tr.Values)
	} else {
		err = tr.Template.Execute(&buf, tr.Values)
	}
	if err != nil {
		return err
	}
	setContentType(w, "text/html; charset=utf-8")
	status := tr.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, err = io.Copy(w, &buf)
	return err
}
