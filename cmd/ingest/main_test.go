package main

import (
	"context"
	"strings"
	"testing"

	appconfig "github.com/wolfman30/hotel-concierge-ai/internal/config"
	"github.com/wolfman30/hotel-concierge-ai/pkg/logging"
)

func TestRunRequiresDatabase(t *testing.T) {
	err := run(context.Background(), &appconfig.Config{}, "grand-harbor", "docs.json", logging.New("error"))
	if err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("expected DATABASE_URL error, got %v", err)
	}
}
