// The consent gateway serves the Kimlik authorize, charge-approval and topup
// pages in front of the platform backend.
package main

import (
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/kimlikaz/connect/api"
	"github.com/kimlikaz/connect/consent"
	"github.com/kimlikaz/connect/endpoint"
	"github.com/kimlikaz/connect/middleware"
)

// Config is read from the environment (a local .env is honored).
type Config struct {
	Listen     string        `env:"LISTEN" envDefault:":8080"`
	BackendURL string        `env:"BACKEND_URL,required"`
	LoginURL   string        `env:"LOGIN_URL,required"`
	PublicURL  string        `env:"PUBLIC_URL,required"`
	CookieSeal CookieSeal
	TicketTTL  time.Duration `env:"TICKET_TTL" envDefault:"10m"`
	DevNoTLS   bool          `env:"DEV_NO_TLS"`
}

// CookieSeal is the session cookie sealing key material.
type CookieSeal struct {
	KeyID string `env:"COOKIE_KEY_ID" envDefault:"v1"`
	// Key is the base64url-encoded 32-byte AEAD key.
	Key string `env:"COOKIE_KEY,required"`
}

func (c CookieSeal) keys() (map[string][]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(c.Key)
	if err != nil {
		return nil, fmt.Errorf("COOKIE_KEY is not base64url: %w", err)
	}
	if len(raw) != middleware.KeySize {
		return nil, fmt.Errorf("COOKIE_KEY must be %d bytes, got %d", middleware.KeySize, len(raw))
	}
	return map[string][]byte{c.KeyID: raw}, nil
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatal(err)
	}
	keys, err := cfg.CookieSeal.keys()
	if err != nil {
		log.Fatal(err)
	}

	backend, err := api.NewCaller(cfg.BackendURL)
	if err != nil {
		log.Fatal(err)
	}

	var cookieOpts []middleware.CookieOption
	if cfg.DevNoTLS {
		cookieOpts = append(cookieOpts, middleware.WithSecure(false))
	}
	sessions, err := middleware.NewSessionProcessor(cfg.CookieSeal.KeyID, keys, cookieOpts...)
	if err != nil {
		log.Fatal(err)
	}
	headers := middleware.NewPageHeadersProcessor()

	handler, err := consent.NewHandler(backend, cfg.LoginURL, cfg.PublicURL,
		consent.WithProcessors(sessions, headers),
		consent.WithTicketTTL(cfg.TicketTTL),
	)
	if err != nil {
		log.Fatal(err)
	}

	mux := http.NewServeMux()
	mux.Handle("/oauth/", handler)
	mux.HandleFunc("GET /healthz", endpoint.HandleFunc(func(w http.ResponseWriter, r *http.Request, _ struct{}) (endpoint.Renderer, error) {
		return &endpoint.StringRenderer{Body: "ok"}, nil
	}))

	log.Printf("consent gateway listening on %s (backend %s)", cfg.Listen, cfg.BackendURL)
	if err := http.ListenAndServe(cfg.Listen, mux); err != nil {
		log.Fatal(err)
	}
}
