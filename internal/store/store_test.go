package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func TestNew_CreatesDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "mudra.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("database file should exist: %v", err)
	}
	if s.Path() != dbPath {
		t.Errorf("Path() = %q, want %q", s.Path(), dbPath)
	}
}

func TestNew_RunsMigrations(t *testing.T) {
	s := newTestStore(t)

	for _, table := range []string{"predictions", "prediction_probabilities"} {
		var name string
		err := s.DB().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q should exist: %v", table, err)
		}
	}

	for _, idx := range []string{"idx_predictions_created_at", "idx_predictions_action"} {
		var name string
		err := s.DB().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='index' AND name=?", idx,
		).Scan(&name)
		if err != nil {
			t.Errorf("index %q should exist: %v", idx, err)
		}
	}
}

func TestNew_ForeignKeysEnabled(t *testing.T) {
	s := newTestStore(t)

	var enabled int
	if err := s.DB().QueryRow("PRAGMA foreign_keys").Scan(&enabled); err != nil {
		t.Fatalf("query pragma: %v", err)
	}
	if enabled != 1 {
		t.Error("foreign keys should be enabled")
	}
}

func TestStore_Close(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if _, err := s.DB().Exec("SELECT 1"); err == nil {
		t.Error("queries should fail after Close")
	}
}

func TestPredictionRepository_CreateAndGet(t *testing.T) {
	repo := newTestStore(t).Predictions()

	p := &Prediction{
		ID:         "p-1",
		Mode:       "batch",
		Action:     "fever",
		Confidence: 0.82,
		Probabilities: map[string]float64{
			"fever": 0.82,
			"cold":  0.18,
		},
	}
	if err := repo.Create(p); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if p.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set by Create")
	}

	got, err := repo.GetByID("p-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Mode != "batch" || got.Action != "fever" || got.Confidence != 0.82 {
		t.Errorf("unexpected prediction %+v", got)
	}
	if len(got.Probabilities) != 2 || got.Probabilities["cold"] != 0.18 {
		t.Errorf("unexpected probabilities %v", got.Probabilities)
	}
}

func TestPredictionRepository_GetByID_NotFound(t *testing.T) {
	repo := newTestStore(t).Predictions()

	if _, err := repo.GetByID("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPredictionRepository_CreateRejectsBadMode(t *testing.T) {
	repo := newTestStore(t).Predictions()

	err := repo.Create(&Prediction{ID: "x", Mode: "stream", Confidence: 0.5})
	if err == nil {
		t.Fatal("expected constraint error")
	}
	if _, err := repo.GetByID("x"); !errors.Is(err, ErrNotFound) {
		t.Error("failed insert should leave nothing behind")
	}
}

func TestPredictionRepository_List(t *testing.T) {
	repo := newTestStore(t).Predictions()

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		err := repo.Create(&Prediction{
			ID:            id,
			Mode:          "live",
			Confidence:    0.3,
			Probabilities: map[string]float64{"cold": 0.3},
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Create(%s) error = %v", id, err)
		}
	}

	tests := []struct {
		name  string
		limit int
		want  []string
	}{
		{name: "default limit", limit: 0, want: []string{"c", "b", "a"}},
		{name: "limited", limit: 2, want: []string{"c", "b"}},
		{name: "clamped", limit: MaxListLimit + 10, want: []string{"c", "b", "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.List(tt.limit)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d predictions, want %d", len(got), len(tt.want))
			}
			for i, p := range got {
				if p.ID != tt.want[i] {
					t.Errorf("position %d: got %s, want %s", i, p.ID, tt.want[i])
				}
				if p.Probabilities["cold"] != 0.3 {
					t.Errorf("%s: probabilities not loaded", p.ID)
				}
			}
		})
	}
}

func TestPredictionRepository_DeleteCascades(t *testing.T) {
	s := newTestStore(t)
	repo := s.Predictions()

	repo.Create(&Prediction{ID: "d", Mode: "camera", Confidence: 1, Probabilities: map[string]float64{"fever": 1}})

	if err := repo.Delete("d"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := repo.Delete("d"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() = %v, want ErrNotFound", err)
	}

	var n int
	s.DB().QueryRow("SELECT COUNT(*) FROM prediction_probabilities WHERE prediction_id = 'd'").Scan(&n)
	if n != 0 {
		t.Errorf("expected probabilities to be deleted, %d remain", n)
	}
}

func TestPredictionRepository_Prune(t *testing.T) {
	repo := newTestStore(t).Predictions()

	now := time.Now().UTC()
	repo.Create(&Prediction{ID: "old", Mode: "batch", CreatedAt: now.Add(-48 * time.Hour)})
	repo.Create(&Prediction{ID: "new", Mode: "batch", CreatedAt: now})

	n, err := repo.Prune(now.Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Prune() removed %d, want 1", n)
	}
	if _, err := repo.GetByID("new"); err != nil {
		t.Errorf("recent prediction should survive: %v", err)
	}
}
