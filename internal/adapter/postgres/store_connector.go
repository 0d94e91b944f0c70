package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ledgerline/ledgerline/internal/domain"
	"github.com/ledgerline/ledgerline/internal/domain/connector"
)

const connectorColumns = `id, org_id, type, name, status, config, metadata,
	last_sync_at, last_error, created_at, updated_at`

// UpsertConnector registers a connector, keyed by org + name. Re-registering
// replaces type, status, and config in place.
func (s *Store) UpsertConnector(ctx context.Context, req connector.RegisterRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", fmt.Errorf("upsert connector: %w", err)
	}

	status := req.Status
	if status == "" {
		status = connector.StatusPending
	}
	configJSON, err := mapJSON(req.Config)
	if err != nil {
		return "", err
	}
	metaJSON, err := mapJSON(req.Metadata)
	if err != nil {
		return "", err
	}

	var id string
	err = s.pool.QueryRow(ctx,
		`INSERT INTO org_connectors (org_id, type, name, status, config, metadata)
		 VALUES ($1, $2, $3, $4, COALESCE($5::jsonb, '{}'::jsonb), $6)
		 ON CONFLICT (org_id, name) DO UPDATE SET
		   type = EXCLUDED.type,
		   status = EXCLUDED.status,
		   config = EXCLUDED.config,
		   metadata = COALESCE(EXCLUDED.metadata, org_connectors.metadata),
		   updated_at = now()
		 RETURNING id`,
		req.OrgID, string(req.Type), req.Name, string(status), configJSON, metaJSON,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert connector %s/%s: %w", req.OrgID, req.Name, err)
	}
	return id, nil
}

func (s *Store) GetConnectorByName(ctx context.Context, orgID, name string) (*connector.Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+connectorColumns+` FROM org_connectors WHERE org_id = $1 AND name = $2`,
		orgID, name)

	rec, err := scanConnector(row)
	if err != nil {
		return nil, wrapSentinel(err, domain.ErrNotFound, "get connector %s/%s", orgID, name)
	}
	return rec, nil
}

func (s *Store) ListOrgConnectors(ctx context.Context, orgID string) ([]connector.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+connectorColumns+` FROM org_connectors WHERE org_id = $1 ORDER BY name ASC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list connectors for org %s: %w", orgID, err)
	}
	defer rows.Close()

	var recs []connector.Record
	for rows.Next() {
		rec, err := scanConnector(rows)
		if err != nil {
			return nil, fmt.Errorf("scan connector: %w", err)
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

func scanConnector(row scannable) (*connector.Record, error) {
	var rec connector.Record
	var configJSON, metaJSON []byte
	var lastSyncAt *time.Time

	err := row.Scan(&rec.ID, &rec.OrgID, &rec.Type, &rec.Name, &rec.Status,
		&configJSON, &metaJSON, &lastSyncAt, &rec.LastError, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := unmarshalMap(configJSON, &rec.Config); err != nil {
		return nil, fmt.Errorf("unmarshal connector config: %w", err)
	}
	if err := unmarshalMap(metaJSON, &rec.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal connector metadata: %w", err)
	}
	rec.LastSyncAt = timeOrZero(lastSyncAt)
	return &rec, nil
}
