package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Default and maximum page sizes for List.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Prediction is one logged verdict. Action is empty when no label passed
// the confidence threshold.
type Prediction struct {
	ID            string             `json:"id"`
	Mode          string             `json:"mode"`
	Action        string             `json:"action"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities"`
	CreatedAt     time.Time          `json:"created_at"`
}

// PredictionRepository reads and writes the prediction log.
type PredictionRepository struct {
	db *sql.DB
}

// Predictions returns the prediction repository for this store.
func (s *Store) Predictions() *PredictionRepository {
	return &PredictionRepository{db: s.db}
}

// Create inserts p and its probabilities in one transaction.
// CreatedAt is set to now when zero.
func (r *PredictionRepository) Create(p *Prediction) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO predictions (id, mode, action, confidence, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Mode, p.Action, p.Confidence, p.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert prediction: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO prediction_probabilities (prediction_id, label, probability) VALUES (?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for label, prob := range p.Probabilities {
		if _, err := stmt.Exec(p.ID, label, prob); err != nil {
			return fmt.Errorf("insert probability %q: %w", label, err)
		}
	}

	return tx.Commit()
}

// GetByID returns the prediction with the given ID, or ErrNotFound.
func (r *PredictionRepository) GetByID(id string) (*Prediction, error) {
	p := &Prediction{}
	err := r.db.QueryRow(
		`SELECT id, mode, action, confidence, created_at FROM predictions WHERE id = ?`,
		id,
	).Scan(&p.ID, &p.Mode, &p.Action, &p.Confidence, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := r.loadProbabilities([]*Prediction{p}); err != nil {
		return nil, err
	}
	return p, nil
}

// List returns the most recent predictions, newest first. A limit <= 0
// means DefaultListLimit; limits above MaxListLimit are clamped.
func (r *PredictionRepository) List(limit int) ([]*Prediction, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}

	rows, err := r.db.Query(
		`SELECT id, mode, action, confidence, created_at
		 FROM predictions ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Prediction
	for rows.Next() {
		p := &Prediction{}
		if err := rows.Scan(&p.ID, &p.Mode, &p.Action, &p.Confidence, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.loadProbabilities(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes a prediction and its probabilities.
func (r *PredictionRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM predictions WHERE id = ?`, id)
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

// Prune deletes predictions created before cutoff and returns how many were removed.
func (r *PredictionRepository) Prune(cutoff time.Time) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM predictions WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *PredictionRepository) loadProbabilities(preds []*Prediction) error {
	for _, p := range preds {
		rows, err := r.db.Query(
			`SELECT label, probability FROM prediction_probabilities WHERE prediction_id = ?`,
			p.ID,
		)
		if err != nil {
			return err
		}

		p.Probabilities = make(map[string]float64)
		for rows.Next() {
			var label string
			var prob float64
			if err := rows.Scan(&label, &prob); err != nil {
				rows.Close()
				return err
			}
			p.Probabilities[label] = prob
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return err
		}
	}
	return nil
}
