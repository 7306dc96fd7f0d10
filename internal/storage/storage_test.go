package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSettings(t *testing.T) {
	s := openTestStore(t)

	t.Run("defaults when empty", func(t *testing.T) {
		got, err := s.LoadSettings()
		if err != nil {
			t.Fatalf("LoadSettings: %v", err)
		}
		if got.KingSafetyWeight != 0 || got.MoveOverheadMs != 30 || !got.AnalysisLog {
			t.Errorf("unexpected defaults %+v", got)
		}
		if got.MoveOverhead() != 30*time.Millisecond {
			t.Errorf("MoveOverhead = %v", got.MoveOverhead())
		}
	})

	t.Run("round trip", func(t *testing.T) {
		want := &Settings{KingSafetyWeight: 2, MoveOverheadMs: 100, AnalysisLog: false}
		if err := s.SaveSettings(want); err != nil {
			t.Fatalf("SaveSettings: %v", err)
		}
		got, err := s.LoadSettings()
		if err != nil {
			t.Fatalf("LoadSettings: %v", err)
		}
		if got.KingSafetyWeight != 2 || got.MoveOverheadMs != 100 || got.AnalysisLog {
			t.Errorf("loaded %+v, want %+v", got, want)
		}
		if got.UpdatedAt.IsZero() {
			t.Error("UpdatedAt not set")
		}
	})
}

func TestSettingsSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.SaveSettings(&Settings{KingSafetyWeight: 5, MoveOverheadMs: 0}); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if got.KingSafetyWeight != 5 || got.MoveOverheadMs != 0 {
		t.Errorf("settings after reopen = %+v", got)
	}
}

func TestAnalysisLog(t *testing.T) {
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	defer s.Close()

	const fen = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

	if _, found, err := s.LookupAnalysis(fen); err != nil || found {
		t.Fatalf("LookupAnalysis on empty store: found=%v err=%v", found, err)
	}

	first := AnalysisRecord{FEN: fen, BestMove: "e2e4", Score: 10, Depth: 3, Nodes: 1234}
	if err := s.RecordAnalysis(first); err != nil {
		t.Fatalf("RecordAnalysis: %v", err)
	}
	second := AnalysisRecord{FEN: fen, BestMove: "d2d4", Score: 12, Depth: 4, Ranking: []string{"d2d4", "e2e4"}}
	if err := s.RecordAnalysis(second); err != nil {
		t.Fatalf("RecordAnalysis: %v", err)
	}
	other := AnalysisRecord{FEN: "4k3/8/8/8/8/8/8/4K2R w K - 0 1", BestMove: "h1h8", Depth: 1}
	if err := s.RecordAnalysis(other); err != nil {
		t.Fatalf("RecordAnalysis: %v", err)
	}

	got, found, err := s.LookupAnalysis(fen)
	if err != nil || !found {
		t.Fatalf("LookupAnalysis: found=%v err=%v", found, err)
	}
	if got.BestMove != "d2d4" || got.Depth != 4 || len(got.Ranking) != 2 {
		t.Errorf("latest record = %+v, want the second one", got)
	}
	if got.SearchedAt.IsZero() {
		t.Error("SearchedAt not set")
	}

	n, err := s.CountAnalyses()
	if err != nil {
		t.Fatalf("CountAnalyses: %v", err)
	}
	if n != 2 {
		t.Errorf("CountAnalyses = %d, want 2", n)
	}

	// Settings live outside the analysis prefix.
	if err := s.SaveSettings(DefaultSettings()); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	if n, _ := s.CountAnalyses(); n != 2 {
		t.Errorf("CountAnalyses after saving settings = %d, want 2", n)
	}

	if err := s.RecordAnalysis(AnalysisRecord{}); err == nil {
		t.Error("RecordAnalysis accepted a record without a FEN")
	}
}

func TestDataPaths(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("APPDATA", t.TempDir())

	dbDir, err := DatabaseDir()
	if err != nil {
		t.Fatalf("DatabaseDir failed: %v", err)
	}
	if filepath.Base(dbDir) != "db" || filepath.Base(filepath.Dir(dbDir)) != appName {
		t.Errorf("unexpected database dir %s", dbDir)
	}
	if _, err := os.Stat(dbDir); os.IsNotExist(err) {
		t.Errorf("Database directory was not created: %s", dbDir)
	}
	t.Logf("Database directory: %s", dbDir)
}
