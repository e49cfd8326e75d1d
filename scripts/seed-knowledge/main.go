// Command seed-knowledge uploads a property's knowledge file through the
// admin API of a running server.
//
//	ADMIN_JWT_SECRET=... go run ./scripts/seed-knowledge -property seri-pantai testdata/seri-pantai-knowledge.yaml
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"

	httpmiddleware "github.com/wolfman30/hotel-concierge-ai/internal/http/middleware"
	"github.com/wolfman30/hotel-concierge-ai/internal/knowledge"
)

func main() {
	propertyID := flag.String("property", "", "property id")
	apiURL := flag.String("api", "", "API base URL (default $API_URL or http://localhost:8080)")
	flag.Parse()

	_ = godotenv.Load()
	if *propertyID == "" || flag.NArg() != 1 {
		fmt.Println("Usage: go run ./scripts/seed-knowledge -property <id> <knowledge-file.(json|yaml)>")
		os.Exit(1)
	}
	if *apiURL == "" {
		*apiURL = os.Getenv("API_URL")
	}
	if *apiURL == "" {
		*apiURL = "http://localhost:8080"
	}

	secret := strings.TrimSpace(os.Getenv("ADMIN_JWT_SECRET"))
	if secret == "" {
		fmt.Println("ADMIN_JWT_SECRET is required")
		os.Exit(1)
	}

	file := flag.Arg(0)
	data, err := os.ReadFile(file)
	if err != nil {
		fmt.Printf("Error reading file: %v\n", err)
		os.Exit(1)
	}
	docs, err := knowledge.ParseDocuments(path.Ext(file), data)
	if err != nil {
		fmt.Printf("Error parsing documents: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Seeding knowledge base\n")
	fmt.Printf("API URL: %s\n", *apiURL)
	fmt.Printf("Property: %s, %d documents\n\n", *propertyID, len(docs))

	token, err := adminToken(secret, *propertyID)
	if err != nil {
		fmt.Printf("Error signing token: %v\n", err)
		os.Exit(1)
	}

	if err := upload(context.Background(), *apiURL, *propertyID, token, docs); err != nil {
		fmt.Printf("Upload failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Knowledge seeding complete.\n")
	fmt.Printf("Try it: curl -X POST %s/v1/conversations -H 'Content-Type: application/json' -d '{\"property_id\":\"%s\",\"message\":\"How much is the Ocean Suite?\"}'\n", *apiURL, *propertyID)
}

// adminToken signs a short-lived token scoped to one property.
func adminToken(secret, propertyID string) (string, error) {
	now := time.Now()
	claims := httpmiddleware.AdminClaims{
		Properties: []string{propertyID},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "seed-knowledge",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func upload(ctx context.Context, apiURL, propertyID, token string, docs []knowledge.DocumentInput) error {
	payload, err := json.Marshal(map[string]any{"documents": docs})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/admin/properties/%s/knowledge", strings.TrimRight(apiURL, "/"), propertyID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	client := &http.Client{Timeout: 2 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	fmt.Printf("Stored: %s\n", strings.TrimSpace(string(body)))
	return nil
}
