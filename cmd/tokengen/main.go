// Package main provides a CLI tool for generating test tokens for the civid API.
// These tokens use the dev signing key and will NOT work in production.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	jwttoken "civid/internal/jwt_token"
	"civid/internal/policy"
	"civid/pkg/secrets"
)

const (
	// Dev signing key, matches config.go when JWT_SIGNING_KEY is not set.
	devSigningKey = "dev-secret-key-change-in-production"

	defaultIssuer   = "http://localhost:8080"
	defaultAudience = "civid-api"
	defaultTokenTTL = 15 * time.Minute
)

type tokenOutput struct {
	Token     string            `json:"token"`
	ExpiresIn string            `json:"expires_in"`
	Subject   string            `json:"subject"`
	Roles     []string          `json:"roles"`
	Usage     map[string]string `json:"usage"`
}

func main() {
	subject := flag.String("subject", "", "Subject ID (UUID). Generated if empty.")
	roles := flag.String("roles", policy.RoleCitizen, "Comma-separated roles (citizen,officer,voucher,admin)")
	ttl := flag.Duration("ttl", defaultTokenTTL, "Token time-to-live")
	key := flag.String("key", devSigningKey, "HS256 signing key")
	jsonOutput := flag.Bool("json", false, "Output as JSON")
	adminToken := flag.Bool("admin-token", false, "Generate a shared admin token and its bcrypt hash instead of a JWT")
	flag.Parse()

	if *adminToken {
		generateAdminToken()
		return
	}

	sub := *subject
	if sub == "" {
		sub = uuid.NewString()
	}
	roleList := splitRoles(*roles)

	svc := jwttoken.NewService(*key, defaultIssuer, defaultAudience, *ttl)
	token, err := svc.Generate(sub, roleList)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating token: %v\n", err)
		os.Exit(1)
	}

	if *jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(tokenOutput{
			Token:     token,
			ExpiresIn: ttl.String(),
			Subject:   sub,
			Roles:     roleList,
			Usage: map[string]string{
				"header": "Authorization: Bearer <token>",
			},
		})
		return
	}

	fmt.Println("Access Token (JWT)")
	fmt.Println("==================")
	fmt.Printf("Subject:    %s\n", sub)
	fmt.Printf("Roles:      %v\n", roleList)
	fmt.Printf("Expires In: %s\n", ttl)
	fmt.Println()
	fmt.Println("Token:")
	fmt.Println(token)
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  curl -H \"Authorization: Bearer <token>\" http://localhost:8080/v1/...")
}

// generateAdminToken mints the shared operator token for the /admin surface.
// The plaintext goes in the X-Admin-Token header; only the hash is configured
// on the server.
func generateAdminToken() {
	token, err := secrets.Generate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating admin token: %v\n", err)
		os.Exit(1)
	}
	hash, err := secrets.Hash(token)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error hashing admin token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Admin Token")
	fmt.Println("===========")
	fmt.Printf("Token (send as X-Admin-Token): %s\n", token)
	fmt.Println()
	fmt.Println("Server configuration:")
	fmt.Printf("  ADMIN_TOKEN_HASH='%s'\n", hash)
}

func splitRoles(roles string) []string {
	parts := strings.Split(roles, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
