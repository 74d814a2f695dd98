// A host site embedding the "Sign in with Kimlik" widget in redirect mode.
//
// /           renders the widget snippet
// /auth/start begins an authorization and redirects to Kimlik
// /callback   finishes the flow and signs the session in
package main

import (
	"crypto/rand"
	"html/template"
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/kimlikaz/connect/endpoint"
	"github.com/kimlikaz/connect/flow"
	"github.com/kimlikaz/connect/middleware"
	"github.com/kimlikaz/connect/widget"
)

const homeTmpl = `
<!DOCTYPE html>
<html>
<head><title>Widget Example</title></head>
<body>
	<h1>Widget Example</h1>
	{{if .Subject}}
		<p>Signed in as {{.Subject}}.</p>
	{{else}}
		{{.Snippet}}
	{{end}}
</body>
</html>
`

type homeData struct {
	Subject string
	Snippet template.HTML
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	clientID := os.Getenv("KIMLIK_CLIENT_ID")
	baseURL := os.Getenv("KIMLIK_BASE_URL")
	if clientID == "" || baseURL == "" {
		log.Fatal("KIMLIK_CLIENT_ID and KIMLIK_BASE_URL must be set")
	}

	w, err := widget.New(widget.Config{
		ClientID:    clientID,
		RedirectURI: "http://localhost:8081/callback",
		Scopes:      []string{"openid", "profile", "email"},
		Theme:       widget.ThemeDark,
		Locale:      "en",
	}, baseURL, nil)
	if err != nil {
		log.Fatal(err)
	}

	// Demo key; a real deployment persists this.
	key := make([]byte, middleware.KeySize)
	if _, err := rand.Read(key); err != nil {
		log.Fatal(err)
	}
	keys := map[string][]byte{"k1": key}

	jar, err := flow.NewJar("k1", keys, middleware.WithSecure(false))
	if err != nil {
		log.Fatal(err)
	}
	sessions, err := middleware.NewSessionProcessor("k1", keys, middleware.WithSecure(false))
	if err != nil {
		log.Fatal(err)
	}

	page := template.Must(template.New("home").Parse(homeTmpl))

	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", endpoint.HandleFunc(func(rw http.ResponseWriter, r *http.Request, _ struct{}) (endpoint.Renderer, error) {
		data := homeData{}
		if sess, ok := middleware.SessionFromContext(r.Context()); ok {
			data.Subject = sess.Subject()
		}
		if data.Subject == "" {
			snippet, err := w.Snippet("/auth/start")
			if err != nil {
				return nil, endpoint.Errorf(http.StatusInternalServerError, "render widget", err)
			}
			data.Snippet = snippet
		}
		return &endpoint.TemplateRenderer{Template: page, Name: "home", Values: data}, nil
	}, sessions))

	mux.HandleFunc("GET /auth/start", endpoint.HandleFunc(func(rw http.ResponseWriter, r *http.Request, _ struct{}) (endpoint.Renderer, error) {
		a, err := w.Begin()
		if err != nil {
			return nil, endpoint.Errorf(http.StatusInternalServerError, "start authorization", err)
		}
		if err := jar.Put(rw, r, a, "/"); err != nil {
			return nil, endpoint.Errorf(http.StatusInternalServerError, "persist authorization", err)
		}
		return &endpoint.RedirectRenderer{URL: a.URL}, nil
	}))

	mux.HandleFunc("GET /callback", endpoint.HandleFunc(func(rw http.ResponseWriter, r *http.Request, params struct {
		State string `query:"state"`
	}) (endpoint.Renderer, error) {
		a, returnTo, err := jar.Pop(rw, r, params.State)
		if err != nil {
			return nil, endpoint.Errorf(http.StatusBadRequest, "no pending authorization", err)
		}
		res, err := w.Complete(r.Context(), a, r.URL.String())
		if err != nil {
			return nil, endpoint.Errorf(http.StatusBadRequest, "authorization failed", err)
		}

		sess, ok := middleware.SessionFromContext(r.Context())
		if !ok {
			return nil, endpoint.Errorf(http.StatusInternalServerError, "no session", nil)
		}
		subject := "user"
		if res.IDToken != nil {
			subject = res.IDToken.Subject
		}
		if err := sess.SignIn(res.Token.AccessToken, subject, 0); err != nil {
			return nil, endpoint.Errorf(http.StatusInternalServerError, "sign in failed", err)
		}
		if returnTo == "" {
			returnTo = "/"
		}
		return &endpoint.RedirectRenderer{URL: returnTo}, nil
	}, sessions))

	log.Println("widget host listening on :8081")
	if err := http.ListenAndServe(":8081", mux); err != nil {
		log.Fatal(err)
	}
}
