// Command devtoken prints an access token for local testing of the API.
//
//	devtoken -user u-1 -role USER -ttl 1h
//
// The signing secret is read from JWT_SECRET (or .env).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/study-room-booking/internal/utils"
)

func main() {
	user := flag.String("user", "", "user id placed in the sub claim")
	role := flag.String("role", "USER", "USER or ADMIN")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	_ = godotenv.Load()
	tok, err := utils.NewAccessToken(os.Getenv("JWT_SECRET"), *user, strings.ToUpper(*role), *ttl)
	if err != nil {
		log.Fatalf("devtoken: %v", err)
	}
	fmt.Println(tok.Token)
}
