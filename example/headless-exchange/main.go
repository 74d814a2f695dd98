// Headless authorization-code exchange, for scripts and manual testing.
//
//	headless-exchange -start
//	    prints an authorization URL and its code verifier
//	headless-exchange -code CODE -verifier VERIFIER
//	    exchanges the code for tokens
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/kimlikaz/connect/flow"
)

func main() {
	start := flag.Bool("start", false, "print a fresh authorization URL and verifier")
	code := flag.String("code", "", "authorization code from the callback")
	verifier := flag.String("verifier", "", "code verifier printed by -start")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	client, err := flow.NewClient(flow.Config{
		ClientID:     os.Getenv("KIMLIK_CLIENT_ID"),
		ClientSecret: os.Getenv("KIMLIK_CLIENT_SECRET"),
		RedirectURI:  os.Getenv("KIMLIK_REDIRECT_URI"),
		Scopes:       strings.Fields(os.Getenv("KIMLIK_SCOPES")),
		BaseURL:      os.Getenv("KIMLIK_BASE_URL"),
	})
	if err != nil {
		log.Fatal(err)
	}

	switch {
	case *start:
		a, err := client.NewAuthorization()
		if err != nil {
			log.Fatal(err)
		}
		// The verifier is normally private to the Authorization; a headless
		// run spans two processes, so it is carried by hand.
		d, err := a.Detach()
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println("authorize_url:", a.URL)
		fmt.Println("state:       ", a.State)
		fmt.Println("verifier:    ", d.Verifier)

	case *code != "" && *verifier != "":
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		res, err := client.ExchangeCode(ctx, *code, *verifier)
		if err != nil {
			var te *flow.TokenError
			if errors.As(err, &te) {
				log.Fatalf("backend rejected the exchange: %s (%s)", te.Code, te.Description)
			}
			log.Fatal(err)
		}
		out, _ := json.MarshalIndent(res.Token, "", "  ")
		fmt.Println(string(out))

	default:
		flag.Usage()
		os.Exit(2)
	}
}
