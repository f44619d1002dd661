package auctionhandler

import "time"

type CreateAuctionBody struct {
	Title       string     `json:"title"       binding:"required"     example:"Brass lamp"`
	Description string     `json:"description"                        example:"Early 1900s, working"`
	Image       string     `json:"image"                              example:"https://cdn.example.com/lamp.png"`
	StartPrice  int64      `json:"start_price" binding:"gte=0"        example:"10000"`
	StartTime   *time.Time `json:"start_time"                         example:"2025-07-27T16:00:00Z"`
	EndTime     time.Time  `json:"end_time"    binding:"required"     example:"2025-07-28T16:00:00Z"`
} // @name CreateAuctionRequest

type PlaceBidBody struct {
	AuctionID string `json:"auction_id" binding:"required" example:"6f1c2d9e-1a2b-4c3d-9e8f-001122334455"`
	Amount    int64  `json:"amount"                        example:"12500"`
} // @name PlaceBidRequest

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
} // @name ErrorResponse

type ListAuctionsQuery struct {
	Status string `form:"status"           binding:"omitempty,oneof=upcoming ongoing completed"`
	Limit  int    `form:"limit,default=10" binding:"gte=0,lte=100"`
	Offset int    `form:"offset,default=0" binding:"gte=0"`
} // @name ListAuctionsQuery
