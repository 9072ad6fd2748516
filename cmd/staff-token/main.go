// Command staff-token mints a signed token for a gate scanner or console
// user.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"ms-boxoffice/internal/auth"
	"ms-boxoffice/internal/config"

	"github.com/joho/godotenv"
)

func main() {
	id := flag.String("id", "", "staff id recorded on check-ins")
	name := flag.String("name", "", "display name")
	ttl := flag.Duration("ttl", 12*time.Hour, "token lifetime")
	flag.Parse()

	_ = godotenv.Load()
	if *id == "" {
		fmt.Fprintln(os.Stderr, "-id is required")
		os.Exit(2)
	}

	token, err := auth.IssueToken(config.Load().Auth.JWTSecret, auth.Staff{ID: *id, Name: *name}, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(token)
}
