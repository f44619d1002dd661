package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"livebid/internal/models"
	"livebid/internal/storage"

	"github.com/lib/pq"
)

const auctionColumns = `id, title, description, image, start_price, current_bid,
       start_time, end_time, status, bid_ids, created_at, updated_at`

// PostgresStore keeps auctions and bids in Postgres. The conditional bid
// update is one UPDATE statement, so the row lock serialises competing
// submissions across every process sharing the database.
type PostgresStore struct {
	db *sql.DB
}

var _ storage.Store = (*PostgresStore)(nil)

func New(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (s *PostgresStore) CreateAuction(ctx context.Context, a *models.Auction) error {
	const q = `
	INSERT INTO auctions (id, title, description, image, start_price, current_bid,
	                      start_time, end_time, status, created_at, updated_at)
	     VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := s.db.ExecContext(ctx, q,
		a.ID, a.Title, a.Description, a.Image, a.StartPrice, a.CurrentBid,
		nullTime(a.StartTime), a.EndTime, string(a.Status), a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("pgstore: insert auction %s: %w", a.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetAuction(ctx context.Context, id string) (*models.Auction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, id)
	a, err := scanAuction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pgstore: auction %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: get auction %s: %w", id, err)
	}
	return a, nil
}

func (s *PostgresStore) ListAuctions(ctx context.Context, f storage.ListFilter) ([]models.Auction, error) {
	f = f.Normalize()
	var (
		rows *sql.Rows
		err  error
	)
	base := `SELECT ` + auctionColumns + ` FROM auctions`
	if f.Status != "" {
		rows, err = s.db.QueryContext(ctx,
			base+` WHERE status = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`,
			string(f.Status), f.Limit, f.Offset)
	} else {
		rows, err = s.db.QueryContext(ctx,
			base+` ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`,
			f.Limit, f.Offset)
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: list auctions: %w", err)
	}
	return collectAuctions(rows, f.Limit)
}

func (s *PostgresStore) ListOpenAuctions(ctx context.Context) ([]models.Auction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE status <> $1`, string(models.StatusCompleted))
	if err != nil {
		return nil, fmt.Errorf("pgstore: list open auctions: %w", err)
	}
	return collectAuctions(rows, 0)
}

func (s *PostgresStore) AdvanceStatus(ctx context.Context, id string, from, to models.Status) (bool, error) {
	const q = `UPDATE auctions SET status = $3, updated_at = now() WHERE id = $1 AND status = $2`
	res, err := s.db.ExecContext(ctx, q, id, string(from), string(to))
	if err != nil {
		return false, fmt.Errorf("pgstore: advance status %s: %w", id, err)
	}
	return affectedOne(res)
}

func (s *PostgresStore) CreateBid(ctx context.Context, b *models.Bid) error {
	const q = `INSERT INTO bids (id, auction_id, user_id, amount, created_at) VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.db.ExecContext(ctx, q, b.ID, b.AuctionID, b.UserID, b.Amount, b.CreatedAt); err != nil {
		return fmt.Errorf("pgstore: insert bid %s: %w", b.ID, err)
	}
	return nil
}

func (s *PostgresStore) DeleteBid(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM bids WHERE id = $1`, id); err != nil {
		return fmt.Errorf("pgstore: delete bid %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) AcceptBid(ctx context.Context, p storage.AcceptBidParams) (bool, error) {
	const q = `
	UPDATE auctions
	   SET current_bid = $2,
	       bid_ids     = array_append(bid_ids, $3),
	       updated_at  = $4
	 WHERE id = $1
	   AND end_time > $4
	   AND (start_time IS NULL OR start_time <= $4)
	   AND current_bid < $2`
	res, err := s.db.ExecContext(ctx, q, p.AuctionID, p.Amount, p.BidID, p.Now)
	if err != nil {
		return false, fmt.Errorf("pgstore: accept bid %s: %w", p.BidID, err)
	}
	return affectedOne(res)
}

// ListBids returns the linked bids in the order they were accepted.
func (s *PostgresStore) ListBids(ctx context.Context, auctionID string) ([]models.Bid, error) {
	const q = `
	SELECT b.id, b.auction_id, b.user_id, b.amount, b.created_at
	  FROM auctions a
	  JOIN LATERAL unnest(a.bid_ids) WITH ORDINALITY AS l(bid_id, pos) ON true
	  JOIN bids b ON b.id = l.bid_id
	 WHERE a.id = $1
	 ORDER BY l.pos`

	if _, err := s.GetAuction(ctx, auctionID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, q, auctionID)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list bids %s: %w", auctionID, err)
	}
	defer rows.Close()

	out := make([]models.Bid, 0)
	for rows.Next() {
		var b models.Bid
		if err := rows.Scan(&b.ID, &b.AuctionID, &b.UserID, &b.Amount, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAuction(row scanner) (*models.Auction, error) {
	var (
		a      models.Auction
		start  sql.NullTime
		status string
		bidIDs pq.StringArray
	)
	if err := row.Scan(&a.ID, &a.Title, &a.Description, &a.Image, &a.StartPrice, &a.CurrentBid,
		&start, &a.EndTime, &status, &bidIDs, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	if start.Valid {
		st := start.Time.UTC()
		a.StartTime = &st
	}
	a.EndTime = a.EndTime.UTC()
	a.Status = models.Status(status)
	a.BidIDs = []string(bidIDs)
	if a.BidIDs == nil {
		a.BidIDs = []string{}
	}
	return &a, nil
}

func collectAuctions(rows *sql.Rows, capHint int) ([]models.Auction, error) {
	defer rows.Close()
	list := make([]models.Auction, 0, capHint)
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *a)
	}
	return list, rows.Err()
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
