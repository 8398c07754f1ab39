// Command supporttoken prints a SUPPORT session token for the attempt
// search endpoint, signed with SESSION_SECRET.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/bus-seat-checkout/internal/utils"
)

func main() {
	subject := flag.String("subject", "", "staff member the token is issued to")
	ttl := flag.Duration("ttl", 8*time.Hour, "token lifetime")
	flag.Parse()

	_ = godotenv.Load()
	secret := os.Getenv("SESSION_SECRET")
	if secret == "" || *subject == "" {
		fmt.Fprintln(os.Stderr, "usage: SESSION_SECRET=... supporttoken -subject alice@example.com [-ttl 8h]")
		os.Exit(2)
	}
	tok, err := utils.NewSessionToken(secret, *subject, utils.RoleSupport, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(tok.Token)
}
