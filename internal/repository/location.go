package repository

import (
	"database/sql"

	"github.com/emilianohg/cvsbrowse/internal/models"
)

type LocationRepo struct {
	db *sql.DB
}

func NewLocationRepo(db *sql.DB) *LocationRepo {
	return &LocationRepo{db: db}
}

// Create registers a checkout. An empty cvsRoot makes the location offline.
func (r *LocationRepo) Create(rootPath, cvsRoot, module string) (*models.Location, error) {
	result, err := r.db.Exec(
		"INSERT INTO locations (root_path, cvs_root, module) VALUES (?, ?, ?)",
		rootPath, cvsRoot, module,
	)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return r.GetByID(id)
}

func (r *LocationRepo) GetByID(id int64) (*models.Location, error) {
	var loc models.Location
	err := r.db.QueryRow(`
		SELECT id, root_path, cvs_root, module, created_at
		FROM locations
		WHERE id = ?
	`, id).Scan(&loc.ID, &loc.RootPath, &loc.CvsRoot, &loc.Module, &loc.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &loc, nil
}

func (r *LocationRepo) GetByRootPath(rootPath string) (*models.Location, error) {
	var loc models.Location
	err := r.db.QueryRow(`
		SELECT id, root_path, cvs_root, module, created_at
		FROM locations
		WHERE root_path = ?
	`, rootPath).Scan(&loc.ID, &loc.RootPath, &loc.CvsRoot, &loc.Module, &loc.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &loc, nil
}

func (r *LocationRepo) GetAll() ([]models.Location, error) {
	rows, err := r.db.Query(`
		SELECT id, root_path, cvs_root, module, created_at
		FROM locations
		ORDER BY root_path
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locations []models.Location
	for rows.Next() {
		var loc models.Location
		if err := rows.Scan(&loc.ID, &loc.RootPath, &loc.CvsRoot, &loc.Module, &loc.CreatedAt); err != nil {
			return nil, err
		}
		locations = append(locations, loc)
	}
	return locations, rows.Err()
}

// Delete removes the location together with its cached changelists.
func (r *LocationRepo) Delete(id int64) error {
	_, err := r.db.Exec("DELETE FROM locations WHERE id = ?", id)
	return err
}
