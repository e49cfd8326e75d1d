package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpmiddleware "github.com/wolfman30/hotel-concierge-ai/internal/http/middleware"
	"github.com/wolfman30/hotel-concierge-ai/internal/knowledge"
)

func TestAdminTokenIsScoped(t *testing.T) {
	signed, err := adminToken("secret", "seri-pantai")
	require.NoError(t, err)

	claims := &httpmiddleware.AdminClaims{}
	_, err = jwt.ParseWithClaims(signed, claims, func(*jwt.Token) (any, error) { return []byte("secret"), nil })
	require.NoError(t, err)
	assert.True(t, claims.CanAccess("seri-pantai"))
	assert.False(t, claims.CanAccess("other"))
}

func TestUploadPutsDocuments(t *testing.T) {
	var got struct {
		Documents []knowledge.DocumentInput `json:"documents"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/admin/properties/seri-pantai/knowledge", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"status":"stored"}`))
	}))
	defer srv.Close()

	docs := []knowledge.DocumentInput{{Category: "rates", Title: "Rates", Content: "RM 420"}}
	require.NoError(t, upload(context.Background(), srv.URL+"/", "seri-pantai", "tok", docs))
	assert.Equal(t, docs, got.Documents)
}

func TestUploadReportsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"property not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	err := upload(context.Background(), srv.URL, "missing", "tok", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
