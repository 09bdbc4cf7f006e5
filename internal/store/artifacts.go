package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rowforge/rowforge/internal/conversion"
)

// ArtifactStore keeps serialized CSV output in the database, keyed by an
// opaque random reference that doubles as the download token. References
// stop resolving after the configured TTL, which is how the time-limited
// download URL contract is enforced.
type ArtifactStore struct {
	db  DBTX
	ttl time.Duration
}

// DefaultArtifactTTL is how long a download reference stays valid.
const DefaultArtifactTTL = time.Hour

// NewArtifactStore creates a store whose references expire after ttl
// (DefaultArtifactTTL when ttl <= 0).
func NewArtifactStore(db DBTX, ttl time.Duration) *ArtifactStore {
	if ttl <= 0 {
		ttl = DefaultArtifactTTL
	}
	return &ArtifactStore{db: db, ttl: ttl}
}

// Save stores the CSV for a job and returns the download reference.
func (s *ArtifactStore) Save(ctx context.Context, jobID uuid.UUID, csv string) (string, error) {
	const q = `
		INSERT INTO job_outputs (ref, job_id, body, created_at)
		VALUES ($1, $2, $3, now())`

	ref := uuid.NewString()
	if _, err := s.db.Exec(ctx, q, ref, jobID, []byte(csv)); err != nil {
		return "", fmt.Errorf("insert artifact: %w", err)
	}
	return ref, nil
}

// Open returns the CSV for a reference, scoped through the owning job's
// organization. An expired or unknown reference yields ErrArtifactExpired.
func (s *ArtifactStore) Open(ctx context.Context, orgID uuid.UUID, ref string) (string, error) {
	const q = `
		SELECT o.body, o.created_at
		FROM job_outputs o
		JOIN jobs j ON j.id = o.job_id
		WHERE o.ref = $1 AND j.organization_id = $2`

	var (
		body      []byte
		createdAt time.Time
	)
	err := s.db.QueryRow(ctx, q, ref, orgID).Scan(&body, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", conversion.ErrArtifactExpired
	}
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	if time.Since(createdAt) > s.ttl {
		return "", conversion.ErrArtifactExpired
	}
	return string(body), nil
}
