package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rowforge/rowforge/internal/conversion"
	"github.com/rowforge/rowforge/internal/engine"
)

// ConfigurationStore persists transformation configurations. The rule list
// and output format are stored as the portable document JSON, re-validated
// through engine.ParseDocument on every read so the interpreter only ever
// sees typed rules.
type ConfigurationStore struct {
	db DBTX
}

// NewConfigurationStore creates a store backed by db.
func NewConfigurationStore(db DBTX) *ConfigurationStore {
	return &ConfigurationStore{db: db}
}

// Get returns an active configuration scoped to the organization.
// Inactive configurations and other organizations' configurations are
// indistinguishable from missing ones.
func (s *ConfigurationStore) Get(ctx context.Context, orgID, configID uuid.UUID) (*conversion.Configuration, error) {
	const q = `
		SELECT id, organization_id, name, description, document, version, is_active
		FROM configurations
		WHERE id = $1 AND organization_id = $2 AND is_active`

	var (
		cfg    conversion.Configuration
		rawDoc []byte
	)
	err := s.db.QueryRow(ctx, q, configID, orgID).Scan(
		&cfg.ID, &cfg.OrganizationID, &cfg.Name, &cfg.Description, &rawDoc, &cfg.Version, &cfg.IsActive,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, conversion.ErrConfigurationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get configuration: %w", err)
	}

	doc, err := engine.ParseDocument(rawDoc)
	if err != nil {
		return nil, fmt.Errorf("stored configuration %s: %w", configID, err)
	}
	cfg.Rules = doc.Rules
	cfg.Output = doc.Output
	return &cfg, nil
}

// Create imports a validated document as a new active configuration and
// returns its id.
func (s *ConfigurationStore) Create(ctx context.Context, orgID uuid.UUID, doc *engine.Document) (uuid.UUID, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal configuration: %w", err)
	}

	const q = `
		INSERT INTO configurations (id, organization_id, name, description, document, version, is_active)
		VALUES ($1, $2, $3, $4, $5, 1, true)`

	id := uuid.New()
	if _, err := s.db.Exec(ctx, q, id, orgID, doc.Name, doc.Description, raw); err != nil {
		return uuid.Nil, fmt.Errorf("insert configuration: %w", err)
	}
	return id, nil
}

// Export returns the portable document for an active configuration.
func (s *ConfigurationStore) Export(ctx context.Context, orgID, configID uuid.UUID) (*engine.Document, error) {
	const q = `
		SELECT document
		FROM configurations
		WHERE id = $1 AND organization_id = $2 AND is_active`

	var rawDoc []byte
	err := s.db.QueryRow(ctx, q, configID, orgID).Scan(&rawDoc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, conversion.ErrConfigurationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("export configuration: %w", err)
	}
	return engine.ParseDocument(rawDoc)
}

// ConfigurationSummary is a listing row without the rule document.
type ConfigurationSummary struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Version     int       `json:"version"`
	RuleCount   int       `json:"ruleCount"`
}

// List returns the organization's active configurations, newest first.
func (s *ConfigurationStore) List(ctx context.Context, orgID uuid.UUID) ([]ConfigurationSummary, error) {
	const q = `
		SELECT id, name, description, version, jsonb_array_length(document->'rules')
		FROM configurations
		WHERE organization_id = $1 AND is_active
		ORDER BY created_at DESC`

	rows, err := s.db.Query(ctx, q, orgID)
	if err != nil {
		return nil, fmt.Errorf("list configurations: %w", err)
	}
	defer rows.Close()

	var out []ConfigurationSummary
	for rows.Next() {
		var c ConfigurationSummary
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.Version, &c.RuleCount); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
