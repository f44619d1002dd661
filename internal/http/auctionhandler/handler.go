package auctionhandler

import (
	"context"
	"net/http"

	"livebid/internal/http/middleware"
	"livebid/internal/models"
	"livebid/internal/services/auction"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BidSubmitter is the bid engine as seen by transports.
type BidSubmitter interface {
	SubmitBid(ctx context.Context, auctionID, userID string, amount int64) (*models.Bid, error)
}

type Handler struct {
	svc  auction.IAuctionService
	bids BidSubmitter
	auth *middleware.Authenticator
}

func New(svc auction.IAuctionService, bids BidSubmitter, auth *middleware.Authenticator) *Handler {
	return &Handler{svc: svc, bids: bids, auth: auth}
}

func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/ping", h.ping)
	r.GET("/auctions", h.list)
	r.GET("/auctions/:id", h.info)
	r.GET("/auctions/:id/bids", h.listBids)
	r.POST("/auctions", h.auth.RequireUser(), h.auth.RequireAdmin(), h.create)
	r.POST("/bids", h.auth.RequireUser(), h.bid)
}

func (h *Handler) fail(c *gin.Context, err error) {
	status, body := MapErrorToHTTP(err)
	if status == http.StatusInternalServerError {
		zap.L().Error("http.request_failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	c.JSON(status, body)
}

// @Summary	Health check
// @Tags		System
// @Success	200	{string}	string	"ok"
// @Router		/ping [get]
func (h *Handler) ping(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// @Summary		Get auction details
// @Description	Returns one auction with its status brought up to date.
// @Tags			Auctions
// @Param			id	path		string	true	"Auction ID"
// @Success		200	{object}	models.Auction
// @Failure		404	{object}	ErrorResponse
// @Router			/auctions/{id} [get]
func (h *Handler) info(c *gin.Context) {
	a, err := h.svc.GetAuction(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// @Summary		List auctions
// @Description	Retrieves a paginated list of auctions, newest first, optionally filtered by status.
// @Tags			Auctions
// @Param			status	query		string	false	"Status filter"			Enums(upcoming,ongoing,completed)
// @Param			limit	query		int		false	"Max results (0-100)"	minimum(0)	maximum(100)	default(10)
// @Param			offset	query		int		false	"Offset for pagination"	minimum(0)	default(0)
// @Success		200		{array}		models.Auction
// @Failure		400		{object}	ErrorResponse
// @Failure		500		{object}	ErrorResponse
// @Router			/auctions [get]
func (h *Handler) list(c *gin.Context) {
	var q ListAuctionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: CodeValidation})
		return
	}
	out, err := h.svc.ListAuctions(c.Request.Context(), models.Status(q.Status), q.Limit, q.Offset)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// @Summary		List auction bids
// @Description	Accepted bids of one auction, oldest first.
// @Tags			Auctions
// @Param			id	path		string	true	"Auction ID"
// @Success		200	{array}		models.Bid
// @Failure		404	{object}	ErrorResponse
// @Router			/auctions/{id}/bids [get]
func (h *Handler) listBids(c *gin.Context) {
	out, err := h.svc.ListBids(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// @Summary		Create an auction
// @Description	Administrators only. Omitting start_time opens the auction immediately.
// @Tags			Auctions
// @Security		BearerAuth
// @Param			body	body		CreateAuctionBody	true	"Auction payload"
// @Success		201		{object}	models.Auction
// @Failure		400		{object}	ErrorResponse
// @Failure		401		{object}	ErrorResponse
// @Failure		403		{object}	ErrorResponse
// @Router			/auctions [post]
func (h *Handler) create(c *gin.Context) {
	var body CreateAuctionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: CodeValidation})
		return
	}
	a, err := h.svc.CreateAuction(c.Request.Context(), auction.CreateAuctionInput{
		Title:       body.Title,
		Description: body.Description,
		Image:       body.Image,
		StartPrice:  body.StartPrice,
		StartTime:   body.StartTime,
		EndTime:     body.EndTime,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

// @Summary		Place a bid
// @Description	Bids strictly above the current bid while the auction is open.
// @Tags			Bids
// @Security		BearerAuth
// @Param			body	body		PlaceBidBody	true	"Bid payload"
// @Success		201		{object}	models.Bid
// @Failure		400		{object}	ErrorResponse
// @Failure		404		{object}	ErrorResponse
// @Failure		409		{object}	ErrorResponse
// @Failure		410		{object}	ErrorResponse
// @Failure		422		{object}	ErrorResponse
// @Failure		425		{object}	ErrorResponse
// @Router			/bids [post]
func (h *Handler) bid(c *gin.Context) {
	var body PlaceBidBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: CodeValidation})
		return
	}
	u := middleware.CurrentUser(c)
	b, err := h.bids.SubmitBid(c.Request.Context(), body.AuctionID, u.ID, body.Amount)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}
