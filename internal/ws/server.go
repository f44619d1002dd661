package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"livebid/internal/bidding"
	"livebid/internal/events"
	"livebid/internal/http/middleware"
	"livebid/internal/models"
	"livebid/internal/services/auction"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 12 * time.Second
	pingPeriod     = 3 * time.Second // must be < pongWait
	maxMessageSize = 4096
	handlerTimeout = 1900 * time.Millisecond
	snapshotWait   = 4 * time.Second
)

var (
	errUnauthorized = errors.New("login required to bid")
	errBadRequest   = errors.New("malformed body")
)

// BidSubmitter is the bid engine as seen by this transport.
type BidSubmitter interface {
	SubmitBid(ctx context.Context, auctionID, userID string, amount int64) (*models.Bid, error)
}

type WsServer struct {
	hub      *Hub
	subMgr   *subscriptionManager
	router   *Router
	upgrader websocket.Upgrader
	auctions auction.IAuctionService
	bids     BidSubmitter
	auth     *middleware.Authenticator
}

func NewWsServer(h *Hub, bus events.Subscriber, auctions auction.IAuctionService, bids BidSubmitter, auth *middleware.Authenticator) *WsServer {
	srv := &WsServer{
		hub:    h,
		subMgr: newSubscriptionManager(bus, h),
		router: NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		auctions: auctions,
		bids:     bids,
		auth:     auth,
	}
	srv.registerHandlers()
	return srv
}

// Handle is the gin entry-point for GET /ws?auction_id=...
// A token is optional; without one the connection only watches.
func (s *WsServer) Handle(ginCtx *gin.Context) {
	auctionID := ginCtx.Query("auction_id")
	if auctionID == "" {
		ginCtx.JSON(http.StatusBadRequest, ErrorBody{Error: "auction_id is required", Code: "validation"})
		return
	}

	var user *middleware.User
	if raw := middleware.TokenFromRequest(ginCtx.Request); raw != "" {
		u, err := s.auth.Parse(raw)
		if err != nil {
			ginCtx.JSON(http.StatusForbidden, ErrorBody{Error: err.Error(), Code: "invalid_token"})
			return
		}
		user = u
	}

	_, err := s.auctions.GetAuction(ginCtx.Request.Context(), auctionID)
	if errors.Is(err, auction.ErrAuctionNotFound) {
		ginCtx.JSON(http.StatusNotFound, ErrorBody{Error: err.Error(), Code: bidding.ReasonNotFound})
		return
	}
	if err != nil {
		zap.L().Error("ws.snapshot", zap.String("auction_id", auctionID), zap.Error(err))
		ginCtx.JSON(http.StatusInternalServerError, ErrorBody{Error: "internal error", Code: "internal"})
		return
	}

	rawConn, err := s.upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		zap.L().Warn("ws.upgrade", zap.Error(err))
		return
	}
	rawConn.SetReadLimit(maxMessageSize)

	conn := newClientConn(rawConn)
	if err := s.subMgr.Subscribe(context.WithoutCancel(ginCtx.Request.Context()), auctionID); err != nil {
		zap.L().Error("ws.subscribe", zap.String("auction_id", auctionID), zap.Error(err))
		conn.close()
		return
	}
	s.hub.Join(auctionID, conn)

	// Read again once joined so no accepted bid falls between the snapshot
	// and the first update.
	if err := s.pushSnapshot(ginCtx.Request.Context(), auctionID, conn); err != nil {
		zap.L().Warn("ws.snapshot", zap.String("auction_id", auctionID), zap.Error(err))
	}

	cc := &ConnContext{AuctionID: auctionID, User: user}
	go s.reader(cc, conn)
	go s.pinger(conn)
}

func (s *WsServer) registerHandlers() {
	Register(
		s.router,
		EventBid,
		func(ctx context.Context, cc *ConnContext, req BidRequest) (BidAck, error) {
			if cc.User == nil {
				return BidAck{}, errUnauthorized
			}
			b, err := s.bids.SubmitBid(ctx, cc.AuctionID, cc.User.ID, req.Amount)
			if err != nil {
				return BidAck{}, err
			}
			return BidAck{BidID: b.ID, Amount: b.Amount}, nil
		},
	)
}

func (s *WsServer) pushSnapshot(ctx context.Context, id string, conn *clientConn) error {
	ctx, cancel := context.WithTimeout(ctx, snapshotWait)
	defer cancel()

	a, err := s.auctions.GetAuction(ctx, id)
	if err != nil {
		return err
	}
	return conn.writeJSON(map[string]any{"event": EventSnapshot, "body": a})
}

func (s *WsServer) reader(cc *ConnContext, conn *clientConn) {
	defer func() {
		s.hub.Leave(cc.AuctionID, conn)
		s.subMgr.Unsubscribe(cc.AuctionID)
	}()

	_ = conn.rawConn.SetReadDeadline(time.Now().Add(pongWait))
	conn.rawConn.SetPongHandler(func(string) error {
		return conn.rawConn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var env Envelope
		if err := conn.rawConn.ReadJSON(&env); err != nil {
			return // client closed or errored
		}

		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		res, err := s.router.dispatch(ctx, cc, env)
		cancel()

		if err != nil {
			_ = conn.writeJSON(map[string]any{"event": EventError, "body": errorBody(err)})
			continue
		}
		_ = conn.writeJSON(map[string]any{"event": env.Event + ackSuffix, "body": res})
	}
}

func (s *WsServer) pinger(conn *clientConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-conn.done:
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				conn.close()
				return
			}
		}
	}
}

func errorBody(err error) ErrorBody {
	if reason := bidding.Reason(err); reason != "" {
		return ErrorBody{Error: err.Error(), Code: reason}
	}
	switch {
	case errors.Is(err, errUnauthorized):
		return ErrorBody{Error: err.Error(), Code: "unauthorized"}
	case errors.Is(err, errBadRequest), errors.Is(err, ErrUnknownEvent):
		return ErrorBody{Error: err.Error(), Code: "bad_request"}
	}
	zap.L().Error("ws.handler_failed", zap.Error(err))
	return ErrorBody{Error: "internal error", Code: "internal"}
}
