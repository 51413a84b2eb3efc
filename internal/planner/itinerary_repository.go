package planner

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ai-trip-planner/internal/itinerary"
	"ai-trip-planner/internal/trip"
)

// ErrItineraryNotFound is returned when no itinerary matches the ID.
var ErrItineraryNotFound = errors.New("itinerary not found")

// Payment statuses stored with an itinerary.
const (
	PaymentUnpaid  = "unpaid"
	PaymentPending = "pending"
	PaymentPaid    = "paid"
)

// StoredItinerary is an itinerary persisted for a user.
type StoredItinerary struct {
	Itinerary     *itinerary.Itinerary
	UserID        string
	StartDate     string
	Style         trip.TravelStyle
	PaymentRef    string
	PaymentStatus string
	CreatedAt     time.Time
}

// ItineraryRepository is a database-backed repository for generated itineraries.
type ItineraryRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewItineraryRepository creates a new ItineraryRepository.
func NewItineraryRepository(d *sql.DB) *ItineraryRepository {
	return &ItineraryRepository{db: d, now: time.Now}
}

// Save inserts a new itinerary. The itinerary must have an ID.
func (r *ItineraryRepository) Save(ctx context.Context, userID string, params trip.Parameters, it *itinerary.Itinerary) error {
	if it == nil || it.ID == "" {
		return errors.New("itinerary has no ID")
	}
	data, err := json.Marshal(it)
	if err != nil {
		return fmt.Errorf("failed to encode itinerary %s: %w", it.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO itineraries (id, user_id, destination, start_date, total_cost, currency, style, data, payment_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		it.ID, userID, it.Destination, params.StartDate.Format("2006-01-02"), it.TotalCost, it.Currency,
		string(params.StyleOrDefault()), string(data), PaymentUnpaid, r.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save itinerary %s: %w", it.ID, err)
	}
	return nil
}

// Get loads one itinerary by ID.
func (r *ItineraryRepository) Get(ctx context.Context, id string) (*StoredItinerary, error) {
	row := r.db.QueryRowContext(ctx, selectItinerary+` WHERE id = ?`, id)
	s, err := scanItinerary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrItineraryNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load itinerary %s: %w", id, err)
	}
	return s, nil
}

// ListRecentByUserID retrieves the N most recent itineraries for a given user.
func (r *ItineraryRepository) ListRecentByUserID(ctx context.Context, userID string, limit int) ([]StoredItinerary, error) {
	rows, err := r.db.QueryContext(ctx, selectItinerary+`
		WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent itineraries for user %s: %w", userID, err)
	}
	defer rows.Close()

	var out []StoredItinerary
	for rows.Next() {
		s, err := scanItinerary(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read itinerary row: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// UpdatePayment records the checkout reference and status of an itinerary.
func (r *ItineraryRepository) UpdatePayment(ctx context.Context, id, ref, status string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE itineraries SET payment_ref = ?, payment_status = ? WHERE id = ?`, ref, status, id)
	if err != nil {
		return fmt.Errorf("failed to update payment for itinerary %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrItineraryNotFound, id)
	}
	return nil
}

const selectItinerary = `
	SELECT user_id, start_date, style, data, payment_ref, payment_status, created_at
	FROM itineraries`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItinerary(row rowScanner) (*StoredItinerary, error) {
	var (
		s         StoredItinerary
		style     string
		data      string
		createdAt int64
	)
	if err := row.Scan(&s.UserID, &s.StartDate, &style, &data, &s.PaymentRef, &s.PaymentStatus, &createdAt); err != nil {
		return nil, err
	}
	var it itinerary.Itinerary
	if err := json.Unmarshal([]byte(data), &it); err != nil {
		return nil, fmt.Errorf("corrupt itinerary data: %w", err)
	}
	s.Itinerary = &it
	s.Style = trip.TravelStyle(style)
	s.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &s, nil
}
