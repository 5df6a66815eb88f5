package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/habitkit/devicegate/pkg/tokengenerator"
)

func main() {
	secret := flag.String("secret", "devicegate-dev-secret", "Secret key for signing the token (JWT_SECRET of the server)")
	issuer := flag.String("issuer", "devicegate", "Issuer of the token")
	audience := flag.String("audience", "public", "Audience of the token")
	account := flag.String("account", "", "Account id placed in the sub claim (random when empty)")
	email := flag.String("email", "", "Email claim")
	roles := flag.String("roles", "", "Comma-separated roles")
	expiry := flag.Duration("expiry", 30*time.Minute, "Token expiry duration (e.g., 30m, 1h, 24h)")
	outputFormat := flag.String("format", "compact", "Output format: compact, full, or debug")
	flag.Parse()

	accountID := uuid.New()
	if *account != "" {
		parsed, err := uuid.Parse(*account)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid account id %q: %v\n", *account, err)
			os.Exit(1)
		}
		accountID = parsed
	}
	var roleList []string
	for _, role := range strings.Split(*roles, ",") {
		if role = strings.TrimSpace(role); role != "" {
			roleList = append(roleList, role)
		}
	}

	tokenGen := tokengenerator.NewJwtTokenGenerator(*secret, *issuer, *audience)
	tokenStr, expiryTime, err := tokenGen.GenerateToken(accountID, *expiry, *email, roleList)
	if err != nil {
		slog.Error("Failed to generate token", "err", err)
		fmt.Fprintf(os.Stderr, "Error: Failed to generate token: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "compact":
		fmt.Println(tokenStr)
	case "full":
		fmt.Printf("Token: %s\nAccount: %s\nExpires: %s\n", tokenStr, accountID, expiryTime.Format(time.RFC3339))
	case "debug":
		token, claims, err := tokenGen.ParseToken(tokenStr)
		if err != nil {
			slog.Error("Failed to parse generated token", "err", err)
			fmt.Fprintf(os.Stderr, "Error: Failed to parse generated token: %v\n", err)
			os.Exit(1)
		}
		headerJSON, _ := json.MarshalIndent(token.Header, "", "  ")
		claimsJSON, _ := json.MarshalIndent(claims, "", "  ")
		fmt.Printf("=== Token ===\n%s\n\n", tokenStr)
		fmt.Printf("=== Header ===\n%s\n\n", headerJSON)
		fmt.Printf("=== Claims ===\n%s\n\n", claimsJSON)
		fmt.Printf("Expires: %s\n", expiryTime.Format(time.RFC3339))
	default:
		fmt.Fprintf(os.Stderr, "Error: Unknown output format: %s\n", *outputFormat)
		os.Exit(1)
	}
}
