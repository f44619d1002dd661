package http_server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"livebid/internal/http/auctionhandler"
	"livebid/internal/ws"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/abrar71/swaggerfilesv2" // swagger embed files
)

const shutdownTimeout = 10 * time.Second

type httpServer struct {
	listenPort uint16
	srv        *http.Server
	ln         net.Listener
	handler    *auctionhandler.Handler
	wsSrv      *ws.WsServer
	ctx        context.Context
}

func NewHttpServer(ctx context.Context, listenPort uint16, wsSrv *ws.WsServer, handler *auctionhandler.Handler) *httpServer {
	h := &httpServer{
		listenPort: listenPort,
		wsSrv:      wsSrv,
		handler:    handler,
		ctx:        ctx,
	}
	h.srv = &http.Server{
		Handler:           h.Engine(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return h
}

// Engine builds the router: swagger, websocket and the REST API under /api.
func (h *httpServer) Engine() *gin.Engine {
	routerEngine := gin.New()

	routerEngine.Use(ginzap.Ginzap(zap.L(), time.RFC3339, true))
	routerEngine.Use(ginzap.RecoveryWithZap(zap.L(), true))

	// Swagger UI and API specs
	routerEngine.StaticFS("/swagger-apis", http.FS(swaggerfilesv2.FS))
	routerEngine.Static("/api-specs", "api_specs")

	if h.wsSrv != nil {
		routerEngine.GET("/ws", h.wsSrv.Handle)
	}

	h.handler.Register(routerEngine.Group("/api"))
	return routerEngine
}

// Start blocks serving until Dispose is called.
func (h *httpServer) Start() error {
	var err error
	listenAddr := fmt.Sprintf(":%d", h.listenPort)
	h.ln, err = net.Listen("tcp", listenAddr)
	if err != nil {
		return err
	}
	zap.L().Info("http_listening", zap.String("addr", listenAddr))

	err = h.srv.Serve(h.ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Dispose gracefully shuts the HTTP server down.
// It waits up to 10 s for in-flight requests to finish.
func (h *httpServer) Dispose() error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(h.ctx), shutdownTimeout)
	defer cancel()

	if err := h.srv.Shutdown(ctx); err != nil {
		zap.L().Error("http_dispose", zap.Error(err))
		return err
	}
	return nil
}
