// Command token mints a staff access token for the reservation API, for
// local testing and service accounts.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/hotel-pms-core/internal/utils"
)

func main() {
	staff := flag.Uint64("staff", 0, "staff id (token subject)")
	hotel := flag.Uint64("hotel", 0, "hotel id the token is bound to (0 = any)")
	role := flag.String("role", "FRONT_DESK", "FRONT_DESK or MANAGER")
	ttl := flag.Duration("ttl", 15*time.Minute, "token lifetime")
	flag.Parse()

	_ = godotenv.Load()
	secret := os.Getenv("JWT_SECRET")
	if secret == "" || *staff == 0 {
		fmt.Fprintln(os.Stderr, "JWT_SECRET and -staff are required")
		os.Exit(2)
	}
	tok, err := utils.NewAccessToken(secret, *staff, *hotel, *role, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(tok.Token)
}
