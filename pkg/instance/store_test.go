package instance

import (
	"path/filepath"
	"testing"
	"time"
)

func TestStore_WriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instances.json")
	s := NewStore(path)

	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	done := now.Add(90 * time.Second)
	in := []*Instance{
		{
			ID:         "inst-1",
			RecipeName: "vllm-server",
			Status:     StatusRunning,
			JobID:      "3757031",
			Endpoints:  map[string]string{"vllm-server": "node042:8000"},
			CreatedAt:  now,
			Metadata:   map[string]string{"node": "node042"},
		},
		{
			ID:          "inst-2",
			RecipeName:  "bench-a",
			Status:      StatusCompleted,
			JobID:       "3757032",
			CreatedAt:   now,
			CompletedAt: &done,
			Components: map[string]*Component{
				"prometheus": {Name: "prometheus", JobID: "3757033", Endpoint: "node043:9090", Status: StatusRunning},
			},
		},
	}

	if err := s.Write(in); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	got, err := s.Read()
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("unexpected instance count: %d", len(got))
	}
	if got[0].ID != "inst-1" || got[1].ID != "inst-2" {
		t.Fatalf("order not preserved: %q, %q", got[0].ID, got[1].ID)
	}
	if got[0].Endpoints["vllm-server"] != "node042:8000" {
		t.Fatalf("endpoints not persisted: %v", got[0].Endpoints)
	}
	if got[1].CompletedAt == nil || !got[1].CompletedAt.Equal(done) {
		t.Fatalf("completed_at not persisted: %v", got[1].CompletedAt)
	}
	comp := got[1].Components["prometheus"]
	if comp == nil || comp.JobID != "3757033" || comp.Status != StatusRunning {
		t.Fatalf("component not persisted: %+v", comp)
	}
}

func TestStore_ReadMissingFile(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "nope", "instances.json"))
	got, err := s.Read()
	if err != nil {
		t.Fatalf("Read() error on missing file: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty table, got %d", len(got))
	}
}

func TestStore_WriteIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instances.json")
	s := NewStore(path)

	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	in := []*Instance{{ID: "inst-1", RecipeName: "svc", Status: StatusStarting, CreatedAt: now}}

	if err := s.Write(in); err != nil {
		t.Fatalf("first Write() error: %v", err)
	}
	first, err := s.Read()
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if err := s.Write(first); err != nil {
		t.Fatalf("second Write() error: %v", err)
	}
	second, err := s.Read()
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if len(second) != 1 || second[0].ID != first[0].ID || second[0].Status != first[0].Status {
		t.Fatalf("round trip not stable: %+v vs %+v", first[0], second[0])
	}
}
