package roster

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seatline/backend/internal/models"
	"github.com/seatline/backend/pkg/storage"
)

// Row is one line of an event roster.
type Row struct {
	ParticipantID uuid.UUID
	UserID        uuid.UUID
	Email         string
	Status        models.ParticipantStatus
	RegisteredAt  time.Time
}

// Source lists roster rows for an event in registration order.
type Source interface {
	Roster(ctx context.Context, eventID uuid.UUID) ([]Row, error)
}

// Uploader stores an export and signs a download link for it.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error)
	PresignedDownloadURL(ctx context.Context, key string) (string, error)
}

// Repository reads rosters from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a roster repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Roster implements Source. Participants without a user row get an empty email.
func (r *Repository) Roster(ctx context.Context, eventID uuid.UUID) ([]Row, error) {
	const q = `SELECT p.id, p.user_id, COALESCE(u.email, ''), p.status, p.registered_at
		FROM participants p
		LEFT JOIN users u ON u.id = p.user_id
		WHERE p.event_id = $1
		ORDER BY p.seq ASC`
	rows, err := r.pool.Query(ctx, q, eventID)
	if err != nil {
		return nil, fmt.Errorf("query roster: %w", err)
	}
	defer rows.Close()
	var out []Row
	for rows.Next() {
		var row Row
		if err := rows.Scan(&row.ParticipantID, &row.UserID, &row.Email, &row.Status, &row.RegisteredAt); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

var header = []string{"participant_id", "user_id", "email", "status", "registered_at", "position"}

// WriteCSV writes the roster. position is the 1-based place in the waiting
// list for WAITING rows and empty otherwise.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	waiting := 0
	for _, r := range rows {
		position := ""
		if r.Status == models.StatusWaiting {
			waiting++
			position = strconv.Itoa(waiting)
		}
		record := []string{
			r.ParticipantID.String(),
			r.UserID.String(),
			r.Email,
			string(r.Status),
			r.RegisteredAt.UTC().Format(time.RFC3339Nano),
			position,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Export is the result of a roster export.
type Export struct {
	Key         string    `json:"key"`
	DownloadURL string    `json:"download_url"`
	Rows        int       `json:"rows"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Exporter builds roster CSVs and stores them.
type Exporter struct {
	source   Source
	uploader Uploader
	expiry   time.Duration
	now      func() time.Time
}

// NewExporter creates an exporter. expiry is the lifetime of download links.
func NewExporter(source Source, uploader Uploader, expiry time.Duration) *Exporter {
	return &Exporter{source: source, uploader: uploader, expiry: expiry, now: time.Now}
}

// Export writes the event roster to exports/{event_id}/{timestamp}.csv.
func (e *Exporter) Export(ctx context.Context, eventID uuid.UUID) (*Export, error) {
	rows, err := e.source.Roster(ctx, eventID)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, rows); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	now := e.now().UTC()
	key := storage.ExportKey(eventID.String(), now)
	if _, err := e.uploader.Upload(ctx, key, storage.ContentTypeCSV, &buf); err != nil {
		return nil, err
	}
	url, err := e.uploader.PresignedDownloadURL(ctx, key)
	if err != nil {
		return nil, err
	}
	return &Export{Key: key, DownloadURL: url, Rows: len(rows), ExpiresAt: now.Add(e.expiry)}, nil
}
