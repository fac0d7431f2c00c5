package store

import "fmt"

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS predictions (
		id TEXT PRIMARY KEY,
		mode TEXT NOT NULL CHECK(mode IN ('batch', 'live', 'camera')),
		action TEXT NOT NULL DEFAULT '',
		confidence REAL NOT NULL,
		created_at DATETIME NOT NULL
	)`,

	// One row per label; the full distribution of a prediction.
	`CREATE TABLE IF NOT EXISTS prediction_probabilities (
		prediction_id TEXT NOT NULL REFERENCES predictions(id) ON DELETE CASCADE,
		label TEXT NOT NULL,
		probability REAL NOT NULL,
		PRIMARY KEY (prediction_id, label)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_predictions_action ON predictions(action)`,
}

func (s *Store) migrate() error {
	for i, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
