package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"livebid/internal/bidding"
	"livebid/internal/events/localbus"
	"livebid/internal/http/middleware"
	"livebid/internal/models"
	"livebid/internal/services/auction"
	"livebid/internal/storage/memstore"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123"

type fixture struct {
	url    string
	srv    *WsServer
	auctID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := memstore.New()
	now := time.Now().UTC()
	require.NoError(t, repo.CreateAuction(context.Background(), &models.Auction{
		ID: "a1", Title: "Lamp", StartPrice: 100, CurrentBid: 100,
		EndTime: now.Add(time.Hour), Status: models.StatusOngoing,
		BidIDs: []string{}, CreatedAt: now, UpdatedAt: now,
	}))

	bus := localbus.New()
	auth := middleware.NewAuthenticator(secret, "")
	srv := NewWsServer(NewHub(), bus,
		auction.NewAuctionService(repo, nil, nil),
		bidding.NewBiddingService(repo, bus),
		auth,
	)

	r := gin.New()
	r.GET("/ws", srv.Handle)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)

	return &fixture{url: "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws", srv: srv, auctID: "a1"}
}

func token(t *testing.T, userID string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
		User:             middleware.User{ID: userID},
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	c, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func read(t *testing.T, c *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env Envelope
	require.NoError(t, c.ReadJSON(&env))
	return env
}

func TestHandle_RejectsBeforeUpgrade(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name     string
		query    string
		wantCode int
	}{
		{name: "missing_auction", query: "", wantCode: http.StatusBadRequest},
		{name: "unknown_auction", query: "?auction_id=nope", wantCode: http.StatusNotFound},
		{name: "bad_token", query: "?auction_id=a1&token=garbage", wantCode: http.StatusForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(f.url+tc.query, nil)
			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			require.NotNil(t, resp)
			defer resp.Body.Close()
			require.Equal(t, tc.wantCode, resp.StatusCode)
		})
	}
}

func TestHandle_SnapshotAndAnonymousBid(t *testing.T) {
	f := newFixture(t)
	c := dial(t, f.url+"?auction_id=a1")

	env := read(t, c)
	require.Equal(t, EventSnapshot, env.Event)
	var snap models.Auction
	require.NoError(t, json.Unmarshal(env.Body, &snap))
	require.Equal(t, int64(100), snap.CurrentBid)

	require.NoError(t, c.WriteJSON(map[string]any{"event": EventBid, "body": map[string]any{"amount": 500}}))
	env = read(t, c)
	require.Equal(t, EventError, env.Event)
	var eb ErrorBody
	require.NoError(t, json.Unmarshal(env.Body, &eb))
	require.Equal(t, "unauthorized", eb.Code)

	require.NoError(t, c.WriteJSON(map[string]any{"event": "auctions/nope"}))
	env = read(t, c)
	require.Equal(t, EventError, env.Event)
}

func TestHandle_BidFansOutToRoom(t *testing.T) {
	f := newFixture(t)
	watcher := dial(t, f.url+"?auction_id=a1")
	bidder := dial(t, f.url+"?auction_id=a1&token="+token(t, "user1"))

	require.Equal(t, EventSnapshot, read(t, watcher).Event)
	require.Equal(t, EventSnapshot, read(t, bidder).Event)
	require.Equal(t, 2, f.srv.subMgr.active("a1"))
	require.Equal(t, 2, f.srv.hub.RoomSize("a1"))

	require.NoError(t, bidder.WriteJSON(map[string]any{"event": EventBid, "body": map[string]any{"amount": 50}}))
	env := read(t, bidder)
	require.Equal(t, EventError, env.Event)
	var eb ErrorBody
	require.NoError(t, json.Unmarshal(env.Body, &eb))
	require.Equal(t, bidding.ReasonTooLow, eb.Code)

	require.NoError(t, bidder.WriteJSON(map[string]any{"event": EventBid, "body": map[string]any{"amount": 150}}))

	// The ack and the broadcast race each other on the bidder's socket.
	seen := map[string]Envelope{}
	for len(seen) < 2 {
		env := read(t, bidder)
		seen[env.Event] = env
	}
	require.Contains(t, seen, EventBid+ackSuffix)
	var ack BidAck
	require.NoError(t, json.Unmarshal(seen[EventBid+ackSuffix].Body, &ack))
	require.Equal(t, int64(150), ack.Amount)

	env = read(t, watcher)
	require.Equal(t, EventBidUpdate, env.Event)
	var upd BidUpdateBody
	require.NoError(t, json.Unmarshal(env.Body, &upd))
	require.Equal(t, "a1", upd.AuctionID)
	require.Equal(t, int64(150), upd.NewBid)
	require.Equal(t, "user1", upd.UserID)

	_ = watcher.Close()
	_ = bidder.Close()
	require.Eventually(t, func() bool {
		return f.srv.subMgr.active("a1") == 0 && f.srv.hub.RoomSize("a1") == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWrapEvent(t *testing.T) {
	at := time.Date(2025, 7, 27, 12, 0, 0, 0, time.UTC)
	msg, err := wrapEvent(eventFixture(at))
	require.NoError(t, err)
	require.JSONEq(t,
		`{"event":"auctions/bid_update","body":{"auction_id":"a1","new_bid":150,"bid_id":"b1","user_id":"u1","at":"2025-07-27T12:00:00Z"}}`,
		string(msg))
}
