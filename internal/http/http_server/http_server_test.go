package http_server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"livebid/internal/bidding"
	"livebid/internal/http/auctionhandler"
	"livebid/internal/http/middleware"
	"livebid/internal/services/auction"
	"livebid/internal/storage/memstore"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestEngine_Routes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := memstore.New()
	h := auctionhandler.New(
		auction.NewAuctionService(repo, nil, nil),
		bidding.NewBiddingService(repo, nil),
		middleware.NewAuthenticator("0123456789abcdef0123", ""),
	)
	engine := NewHttpServer(context.Background(), 8085, nil, h).Engine()

	tests := []struct {
		method   string
		path     string
		wantCode int
	}{
		{http.MethodGet, "/api/ping", http.StatusOK},
		{http.MethodGet, "/api/auctions", http.StatusOK},
		{http.MethodGet, "/api/auctions/missing", http.StatusNotFound},
		{http.MethodPost, "/api/bids", http.StatusUnauthorized},
		{http.MethodPost, "/api/auctions", http.StatusUnauthorized},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.method+tc.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
			require.Equal(t, tc.wantCode, w.Code)
		})
	}
}
