package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"building-studio/internal/studio/models"
)

var ErrNotFound = errors.New("building not found")

// ============================================================
// SQLite Repository
// ============================================================

type Repository struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Init applies the schema migration.
func (r *Repository) Init(ctx context.Context, migrationsPath string) error {
	if err := r.runMigrations(ctx, migrationsPath); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	return nil
}

const buildingColumns = `id, name, description, floors, image, place_id, objects3d, created_at, updated_at`

func (r *Repository) Create(ctx context.Context, req *models.CreateBuildingRequest) (*models.Building, error) {
	objects := req.Objects3D
	if objects == nil {
		objects = models.Objects3D{}
	}
	data, err := json.Marshal(objects)
	if err != nil {
		return nil, fmt.Errorf("encode objects3d: %w", err)
	}

	ts := r.now().UTC().Format(time.RFC3339Nano)
	res, err := r.db.ExecContext(ctx, `
        INSERT INTO buildings (name, description, floors, image, place_id, objects3d, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `, req.Name, req.Description, req.Floors, req.Image, req.PlaceID, string(data), ts, ts)
	if err != nil {
		return nil, fmt.Errorf("insert building: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// Update rewrites the form fields. An empty image keeps the stored one;
// objects3d is never touched.
func (r *Repository) Update(ctx context.Context, id int64, req *models.UpdateBuildingRequest) (*models.Building, error) {
	res, err := r.db.ExecContext(ctx, `
        UPDATE buildings
        SET name = ?, description = ?, floors = ?, place_id = ?,
            image = CASE WHEN ? = '' THEN image ELSE ? END,
            updated_at = ?
        WHERE id = ?
    `, req.Name, req.Description, req.Floors, req.PlaceID, req.Image, req.Image,
		r.now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return nil, fmt.Errorf("update building: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*models.Building, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+buildingColumns+` FROM buildings WHERE id = ?`, id)

	b, err := scanBuilding(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

// List returns buildings newest first. A placeID of zero lists every place.
func (r *Repository) List(ctx context.Context, placeID int64) ([]*models.Building, error) {
	query := `SELECT ` + buildingColumns + ` FROM buildings`
	var args []any
	if placeID > 0 {
		query += ` WHERE place_id = ?`
		args = append(args, placeID)
	}
	query += ` ORDER BY id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*models.Building{}
	for rows.Next() {
		b, err := scanBuilding(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBuilding(s scanner) (*models.Building, error) {
	var (
		b                models.Building
		objects          string
		created, updated string
	)
	if err := s.Scan(&b.ID, &b.Name, &b.Description, &b.Floors, &b.Image, &b.PlaceID, &objects, &created, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(objects), &b.Objects3D); err != nil {
		return nil, fmt.Errorf("decode objects3d of building %d: %w", b.ID, err)
	}
	b.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	b.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return &b, nil
}

// ============================================================
// Migrations
// ============================================================

func (r *Repository) runMigrations(ctx context.Context, migrationsPath string) error {
	data, err := os.ReadFile(migrationsPath)
	if err != nil {
		return fmt.Errorf("read migration: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, string(data)); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}
	return nil
}

// OpenSQLite opens (and creates if needed) the database at dbPath.
func OpenSQLite(dbPath string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}
