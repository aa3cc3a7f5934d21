package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mr1hm/go-shelter-coverage/internal/geo"
	"github.com/mr1hm/go-shelter-coverage/internal/models"
)

type SQLiteDB struct {
	db *sql.DB
}

var _ DatasetRepository = (*SQLiteDB)(nil)

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// :memory: databases are per connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteDB{
		db: db,
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("error while migrating to database: %w", err)
	}

	return s, nil
}

// Missing source fields are stored as NULL so they stay missing on reload.
func (s *SQLiteDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS population_areas (
			id TEXT PRIMARY KEY,
			geometry TEXT,
			total_population REAL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS shelters (
			id TEXT PRIMARY KEY,
			easting REAL,
			northing REAL,
			capacity REAL,
			address TEXT NOT NULL DEFAULT '',
			updated_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_population_areas_updated_at ON population_areas(updated_at);
		CREATE INDEX IF NOT EXISTS idx_shelters_updated_at ON shelters(updated_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteDB) UpsertArea(ctx context.Context, a *models.PopulationArea) error {
	var geometry sql.NullString
	if a.Geometry != nil {
		b, err := json.Marshal(a.Geometry)
		if err != nil {
			return fmt.Errorf("error encoding geometry for %s: %w", a.ID, err)
		}
		geometry = sql.NullString{String: string(b), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO population_areas (id, geometry, total_population, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			geometry = excluded.geometry,
			total_population = excluded.total_population,
			updated_at = excluded.updated_at`,
		a.ID, geometry, nullFloat(a.TotalPopulation), updatedAt(a.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("error upserting area %s: %w", a.ID, err)
	}
	return nil
}

func (s *SQLiteDB) ListAreas(ctx context.Context, opts Filter) ([]models.PopulationArea, error) {
	query := `SELECT id, geometry, total_population, updated_at FROM population_areas ORDER BY id` + paginate(opts)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing areas: %w", err)
	}
	defer rows.Close()

	var areas []models.PopulationArea
	for rows.Next() {
		var (
			a          models.PopulationArea
			geometry   sql.NullString
			population sql.NullFloat64
			updated    int64
		)
		if err := rows.Scan(&a.ID, &geometry, &population, &updated); err != nil {
			return nil, fmt.Errorf("error scanning area: %w", err)
		}
		if geometry.Valid {
			if err := json.Unmarshal([]byte(geometry.String), &a.Geometry); err != nil {
				return nil, fmt.Errorf("error decoding geometry for %s: %w", a.ID, err)
			}
			if a.Geometry == nil {
				a.Geometry = []geo.Coordinate{}
			}
		}
		if population.Valid {
			a.TotalPopulation = &population.Float64
		}
		a.UpdatedAt = time.Unix(0, updated)
		areas = append(areas, a)
	}

	return areas, rows.Err()
}

func (s *SQLiteDB) PruneAreas(ctx context.Context, before time.Time) (int64, error) {
	return s.prune(ctx, "population_areas", before)
}

func (s *SQLiteDB) UpsertShelter(ctx context.Context, sh *models.ShelterSite) error {
	var easting, northing sql.NullFloat64
	if sh.Location != nil {
		easting = sql.NullFloat64{Float64: sh.Location[0], Valid: true}
		northing = sql.NullFloat64{Float64: sh.Location[1], Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shelters (id, easting, northing, capacity, address, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			easting = excluded.easting,
			northing = excluded.northing,
			capacity = excluded.capacity,
			address = excluded.address,
			updated_at = excluded.updated_at`,
		sh.ID, easting, northing, nullFloat(sh.Capacity), sh.Address, updatedAt(sh.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("error upserting shelter %s: %w", sh.ID, err)
	}
	return nil
}

func (s *SQLiteDB) ListShelters(ctx context.Context, opts Filter) ([]models.ShelterSite, error) {
	query := `SELECT id, easting, northing, capacity, address, updated_at FROM shelters ORDER BY id` + paginate(opts)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing shelters: %w", err)
	}
	defer rows.Close()

	var shelters []models.ShelterSite
	for rows.Next() {
		var (
			sh                models.ShelterSite
			easting, northing sql.NullFloat64
			capacity          sql.NullFloat64
			updated           int64
		)
		if err := rows.Scan(&sh.ID, &easting, &northing, &capacity, &sh.Address, &updated); err != nil {
			return nil, fmt.Errorf("error scanning shelter: %w", err)
		}
		if easting.Valid && northing.Valid {
			sh.Location = &geo.Coordinate{easting.Float64, northing.Float64}
		}
		if capacity.Valid {
			sh.Capacity = &capacity.Float64
		}
		sh.UpdatedAt = time.Unix(0, updated)
		shelters = append(shelters, sh)
	}

	return shelters, rows.Err()
}

func (s *SQLiteDB) PruneShelters(ctx context.Context, before time.Time) (int64, error) {
	return s.prune(ctx, "shelters", before)
}

func (s *SQLiteDB) Counts(ctx context.Context) (areas, shelters int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM population_areas),
			(SELECT COUNT(*) FROM shelters)`,
	).Scan(&areas, &shelters)
	if err != nil {
		return 0, 0, fmt.Errorf("error counting records: %w", err)
	}
	return areas, shelters, nil
}

// prune deletes rows not refreshed since before. table is never user input.
func (s *SQLiteDB) prune(ctx context.Context, table string, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE updated_at < ?`, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("error pruning %s: %w", table, err)
	}
	return res.RowsAffected()
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

func paginate(opts Filter) string {
	if opts.Limit <= 0 {
		if opts.Offset > 0 {
			return fmt.Sprintf(" LIMIT -1 OFFSET %d", opts.Offset)
		}
		return ""
	}
	return fmt.Sprintf(" LIMIT %d OFFSET %d", opts.Limit, max(opts.Offset, 0))
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func updatedAt(t time.Time) int64 {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UnixNano()
}
