// Package refdata loads warehouse, store and client reference data and
// resolves the owning client for each shipment.
package refdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/metscube/shipsync/internal/logging"
)

// pgUndefinedTable is the Postgres error code for a missing relation.
const pgUndefinedTable = "42P01"

// Refs holds the reference lookups captured once at run start. All maps
// are read-only for the remainder of the run.
type Refs struct {
	WarehouseClient map[string]string // warehouse id -> client id
	WarehouseName   map[string]string // warehouse id -> display name
	ClientName      map[string]string // client id -> display name
	StoreName       map[string]string // store id -> display name
	StoreClient     map[string]string // store id -> client id
	WarehouseMarkup map[string]string // warehouse id -> raw markup cell
}

// Source loads reference data from the configuration store.
type Source struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewSource creates a reference data source over the given pool.
func NewSource(pool *pgxpool.Pool) *Source {
	return &Source{
		pool: pool,
		log:  logging.Component("refdata"),
	}
}

// Load builds all lookup maps. Missing tables yield empty maps, never
// an error; the run proceeds with UNKNOWN resolution fallbacks.
func (s *Source) Load(ctx context.Context) (*Refs, error) {
	refs := &Refs{
		WarehouseClient: map[string]string{},
		WarehouseName:   map[string]string{},
		ClientName:      map[string]string{},
		StoreName:       map[string]string{},
		StoreClient:     map[string]string{},
		WarehouseMarkup: map[string]string{},
	}

	if s.pool == nil {
		s.log.Warn("no reference database configured, resolution falls back to name tags")
		return refs, nil
	}

	if err := s.loadWarehouses(ctx, refs); err != nil {
		return nil, err
	}
	if err := s.loadStores(ctx, refs); err != nil {
		return nil, err
	}

	s.log.Info("reference maps built",
		"warehouses", len(refs.WarehouseName),
		"stores", len(refs.StoreName),
		"clients", len(refs.ClientName),
	)
	return refs, nil
}

func (s *Source) loadWarehouses(ctx context.Context, refs *Refs) error {
	rows, err := s.pool.Query(ctx,
		`SELECT warehouse_id, name, client_id, COALESCE(markup, '') FROM warehouses`)
	if err != nil {
		if isMissingTable(err) {
			s.log.Warn("warehouses table not found")
			return nil
		}
		return fmt.Errorf("query warehouses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, name, clientID, markup string
		if err := rows.Scan(&id, &name, &clientID, &markup); err != nil {
			return fmt.Errorf("scan warehouse row: %w", err)
		}
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		refs.WarehouseName[id] = strings.TrimSpace(name)
		if c := strings.TrimSpace(clientID); c != "" {
			refs.WarehouseClient[id] = c
			if n := strings.TrimSpace(name); n != "" {
				if _, ok := refs.ClientName[c]; !ok {
					refs.ClientName[c] = n
				}
			}
		}
		refs.WarehouseMarkup[id] = strings.TrimSpace(markup)
	}
	return rows.Err()
}

func (s *Source) loadStores(ctx context.Context, refs *Refs) error {
	rows, err := s.pool.Query(ctx,
		`SELECT store_id, name, COALESCE(client_id, '') FROM stores`)
	if err != nil {
		if isMissingTable(err) {
			s.log.Warn("stores table not found")
			return nil
		}
		return fmt.Errorf("query stores: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, name, clientID string
		if err := rows.Scan(&id, &name, &clientID); err != nil {
			return fmt.Errorf("scan store row: %w", err)
		}
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		name = strings.TrimSpace(name)
		refs.StoreName[id] = name

		// Explicit mapping wins; otherwise derive from the bracket tag
		// in the store name.
		client := strings.TrimSpace(clientID)
		if client == "" {
			client = ExtractClientTag(name)
		}
		if client != "" {
			refs.StoreClient[id] = client
		}
	}
	return rows.Err()
}

func isMissingTable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUndefinedTable
	}
	return errors.Is(err, pgx.ErrNoRows)
}
