package storage

import (
	"path/filepath"
	"testing"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSettingRoundTrip(t *testing.T) {
	s := newTestStorage(t)

	if v, err := s.GetString("download_dir"); err != nil || v != "" {
		t.Fatalf("GetString unset = %q, %v; want empty, nil", v, err)
	}

	if err := s.SetString("download_dir", "/tmp/downloads"); err != nil {
		t.Fatalf("SetString: %v", err)
	}
	v, err := s.GetString("download_dir")
	if err != nil || v != "/tmp/downloads" {
		t.Fatalf("GetString = %q, %v; want /tmp/downloads, nil", v, err)
	}

	if err := s.SetString("download_dir", "/mnt/data"); err != nil {
		t.Fatalf("SetString overwrite: %v", err)
	}
	v, err = s.GetString("download_dir")
	if err != nil || v != "/mnt/data" {
		t.Fatalf("GetString after overwrite = %q, %v; want /mnt/data, nil", v, err)
	}
}

func TestRecordCompletionAccumulatesPerDay(t *testing.T) {
	s := newTestStorage(t)

	if err := s.RecordCompletion(1024); err != nil {
		t.Fatalf("RecordCompletion: %v", err)
	}
	if err := s.RecordCompletion(2048); err != nil {
		t.Fatalf("RecordCompletion: %v", err)
	}

	rows, err := s.DailyStats(1)
	if err != nil {
		t.Fatalf("DailyStats: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("len(rows) = %d; want 1", len(rows))
	}
	if rows[0].Bytes != 3072 || rows[0].Files != 2 {
		t.Fatalf("rows[0] = %+v; want Bytes=3072 Files=2", rows[0])
	}
}

func TestAuditTrailNewestFirst(t *testing.T) {
	s := newTestStorage(t)

	if err := s.AppendAudit("task-1", "create", "url=https://example.com/f"); err != nil {
		t.Fatalf("AppendAudit: %v", err)
	}
	if err := s.AppendAudit("task-1", "pause", ""); err != nil {
		t.Fatalf("AppendAudit: %v", err)
	}

	entries, err := s.RecentAudit(10)
	if err != nil {
		t.Fatalf("RecentAudit: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d; want 2", len(entries))
	}
	if entries[0].Action != "pause" {
		t.Fatalf("entries[0].Action = %q; want pause (newest first)", entries[0].Action)
	}
}
