package store

import (
	"errors"
	"testing"
	"time"
)

func TestPublishRepository_Record(t *testing.T) {
	s := newTestStore(t)
	repo := s.Publishes()

	p := &Publish{FingerCount: 2, Level: 2560, Topic: "lampada/command"}
	if err := repo.Record(p); err != nil {
		t.Fatalf("failed to record publish: %v", err)
	}

	if p.ID == "" {
		t.Error("expected an ID to be assigned")
	}
	if p.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}

	got, err := repo.Latest()
	if err != nil {
		t.Fatalf("failed to get latest: %v", err)
	}
	if got.ID != p.ID {
		t.Errorf("expected ID %s, got %s", p.ID, got.ID)
	}
	if got.Level != 2560 || got.FingerCount != 2 {
		t.Errorf("unexpected publish: %+v", got)
	}
	if got.Topic != "lampada/command" {
		t.Errorf("expected topic lampada/command, got %s", got.Topic)
	}
}

func TestPublishRepository_RecordKeepsFailure(t *testing.T) {
	s := newTestStore(t)
	repo := s.Publishes()

	if err := repo.Record(&Publish{FingerCount: 1, Level: 2048, Topic: "t", Error: "not connected"}); err != nil {
		t.Fatalf("failed to record publish: %v", err)
	}

	got, err := repo.Latest()
	if err != nil {
		t.Fatalf("failed to get latest: %v", err)
	}
	if got.Error != "not connected" {
		t.Errorf("expected error to be kept, got %q", got.Error)
	}
}

func TestPublishRepository_RejectsOutOfRangeLevel(t *testing.T) {
	s := newTestStore(t)

	if err := s.Publishes().Record(&Publish{FingerCount: 1, Level: 5000, Topic: "t"}); err == nil {
		t.Error("expected level outside 0..4095 to be rejected")
	}
}

func TestPublishRepository_ListNewestFirst(t *testing.T) {
	s := newTestStore(t)
	repo := s.Publishes()

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i, level := range []int{2048, 2560, 3072} {
		p := &Publish{
			FingerCount: i + 1,
			Level:       level,
			Topic:       "lampada/command",
			CreatedAt:   base.Add(time.Duration(i) * time.Second),
		}
		if err := repo.Record(p); err != nil {
			t.Fatalf("failed to record publish: %v", err)
		}
	}

	list, err := repo.List(0)
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 publishes, got %d", len(list))
	}
	want := []int{3072, 2560, 2048}
	for i, p := range list {
		if p.Level != want[i] {
			t.Errorf("list[%d]: expected level %d, got %d", i, want[i], p.Level)
		}
	}

	limited, err := repo.List(2)
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("expected 2 publishes with limit, got %d", len(limited))
	}
}

func TestPublishRepository_LatestEmpty(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Publishes().Latest()
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	list, err := s.Publishes().List(10)
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Errorf("expected empty non-nil list, got %v", list)
	}
}

func TestPublishRepository_Prune(t *testing.T) {
	s := newTestStore(t)
	repo := s.Publishes()

	now := time.Now().UTC()
	old := &Publish{FingerCount: 1, Level: 2048, Topic: "t", CreatedAt: now.Add(-48 * time.Hour)}
	recent := &Publish{FingerCount: 2, Level: 2560, Topic: "t", CreatedAt: now}
	for _, p := range []*Publish{old, recent} {
		if err := repo.Record(p); err != nil {
			t.Fatalf("failed to record publish: %v", err)
		}
	}

	removed, err := repo.Prune(now.Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("failed to prune: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}

	n, _ := repo.Count()
	if n != 1 {
		t.Errorf("expected 1 remaining, got %d", n)
	}
}
