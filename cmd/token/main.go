package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"orderflow-be/internal/auth"
	"orderflow-be/internal/config"
	"orderflow-be/internal/session"
)

// token prints a signed session token for a persona, for local testing of
// the API without a login flow.
func main() {
	persona := flag.String("persona", string(session.PersonaStaff), "guest, customer, staff, kitchen or admin")
	userID := flag.Int64("user", 0, "user id to embed; 0 leaves it empty")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := mint(os.Stdout, cfg, session.Persona(*persona), *userID); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func mint(w io.Writer, cfg *config.Config, persona session.Persona, userID int64) error {
	tokens, err := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}
	var uid *int64
	if userID > 0 {
		uid = &userID
	}
	token, err := tokens.Issue(persona, uid)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, token)
	return err
}
