package store

import (
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// Run is one webcam session, from enabling the webcam until disabling it.
type Run struct {
	ID        string
	StartedAt time.Time
	EndedAt   *time.Time
	Frames    int
	Hits      int
	MaxSpeed  float64
}

// Hit is a recorded ball contact with a body landmark.
type Hit struct {
	ID            int64
	RunID         string
	LandmarkIndex int
	BallX         float64
	BallY         float64
	VelX          float64
	VelY          float64
	Color         string
	CreatedAt     time.Time
}

// RunRepository provides operations on runs and their hits.
type RunRepository struct {
	db *sql.DB
}

// Runs returns the run repository for this store.
func (s *Store) Runs() *RunRepository {
	return &RunRepository{db: s.db}
}

// Create inserts a new run. StartedAt defaults to now.
func (r *RunRepository) Create(run *Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	_, err := r.db.Exec(
		`INSERT INTO runs (id, started_at, frames, hits, max_speed) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt, run.Frames, run.Hits, run.MaxSpeed,
	)
	return err
}

// Finish marks a run as ended and stores its final frame count and top speed.
func (r *RunRepository) Finish(id string, frames int, maxSpeed float64) error {
	result, err := r.db.Exec(
		`UPDATE runs SET ended_at = ?, frames = ?, max_speed = ? WHERE id = ?`,
		time.Now(), frames, maxSpeed, id,
	)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddHit records a hit and bumps the run's hit counter in one transaction.
func (r *RunRepository) AddHit(h *Hit) error {
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now()
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`INSERT INTO hits (run_id, landmark_index, ball_x, ball_y, vel_x, vel_y, color, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		h.RunID, h.LandmarkIndex, h.BallX, h.BallY, h.VelX, h.VelY, h.Color, h.CreatedAt,
	)
	if err != nil {
		return err
	}

	h.ID, err = result.LastInsertId()
	if err != nil {
		return err
	}

	if _, err := tx.Exec(`UPDATE runs SET hits = hits + 1 WHERE id = ?`, h.RunID); err != nil {
		return err
	}

	return tx.Commit()
}

// GetByID retrieves a run by its ID.
func (r *RunRepository) GetByID(id string) (*Run, error) {
	run, err := scanRun(r.db.QueryRow(
		`SELECT id, started_at, ended_at, frames, hits, max_speed FROM runs WHERE id = ?`,
		id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return run, nil
}

// List retrieves the most recent runs, newest first. A limit <= 0 returns all runs.
func (r *RunRepository) List(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.Query(
		`SELECT id, started_at, ended_at, frames, hits, max_speed
		 FROM runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}

// Hits retrieves all hits of a run in the order they happened.
func (r *RunRepository) Hits(runID string) ([]Hit, error) {
	rows, err := r.db.Query(
		`SELECT id, run_id, landmark_index, ball_x, ball_y, vel_x, vel_y, color, created_at
		 FROM hits WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.ID, &h.RunID, &h.LandmarkIndex, &h.BallX, &h.BallY,
			&h.VelX, &h.VelY, &h.Color, &h.CreatedAt); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return hits, nil
}

// Delete removes a run and, through the foreign key cascade, its hits.
func (r *RunRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	run := &Run{}
	var ended sql.NullTime
	if err := row.Scan(&run.ID, &run.StartedAt, &ended, &run.Frames, &run.Hits, &run.MaxSpeed); err != nil {
		return nil, err
	}
	if ended.Valid {
		t := ended.Time
		run.EndedAt = &t
	}
	return run, nil
}
