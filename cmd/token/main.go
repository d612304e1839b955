// Command token mints a bearer token for local testing against the api.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"collegeattend/internal/auth"
	"collegeattend/internal/config"
)

func main() {
	sub := flag.String("sub", "", "user id placed in the token subject")
	roleName := flag.String("role", "student", "student, faculty, admin or staff")
	ttl := flag.Duration("ttl", 0, "token lifetime; defaults to ACCESS_TTL")
	flag.Parse()

	if *sub == "" {
		fmt.Fprintln(os.Stderr, "-sub is required")
		flag.Usage()
		os.Exit(2)
	}
	role, err := auth.ParseRole(*roleName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	lifetime := cfg.AccessTTL
	if *ttl > 0 {
		lifetime = *ttl
	}

	tok, err := auth.Issue(*sub, role, cfg.JWTIssuer, cfg.JWTSigningKey, lifetime)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sign:", err)
		os.Exit(1)
	}
	fmt.Println(tok.AccessToken)
	fmt.Fprintf(os.Stderr, "expires %s\n", tok.ExpiresAt.UTC().Format(time.RFC3339))
}
