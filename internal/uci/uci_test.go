package uci

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hailam/blobchess/internal/engine"
	"github.com/hailam/blobchess/internal/storage"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// session drives a UCI loop over a pipe.
type session struct {
	t    *testing.T
	in   *io.PipeWriter
	out  *syncBuffer
	done chan error
}

func startSession(t *testing.T, store *storage.Store) *session {
	t.Helper()
	r, w := io.Pipe()
	s := &session{t: t, in: w, out: &syncBuffer{}, done: make(chan error, 1)}
	u := New(engine.NewEngine(), r, s.out, store, zerolog.Nop())
	go func() { s.done <- u.Run() }()
	t.Cleanup(func() { s.quit() })
	return s
}

func (s *session) send(cmds ...string) {
	s.t.Helper()
	for _, c := range cmds {
		if _, err := fmt.Fprintln(s.in, c); err != nil {
			s.t.Fatalf("write %q: %v", c, err)
		}
	}
}

// waitFor polls the output until it contains want n times.
func (s *session) waitFor(want string, n int) string {
	s.t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		out := s.out.String()
		if strings.Count(out, want) >= n {
			return out
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.t.Fatalf("timed out waiting for %q, output:\n%s", want, s.out.String())
	return ""
}

func (s *session) quit() {
	if s.done == nil {
		return
	}
	fmt.Fprintln(s.in, "quit")
	s.in.Close()
	if err := <-s.done; err != nil {
		s.t.Errorf("Run: %v", err)
	}
	s.done = nil
}

func lines(out, prefix string) []string {
	var got []string
	for _, l := range strings.Split(out, "\n") {
		if strings.HasPrefix(l, prefix) {
			got = append(got, l)
		}
	}
	return got
}

func TestHandshake(t *testing.T) {
	s := startSession(t, nil)
	s.send("uci", "isready")
	out := s.waitFor("readyok", 1)

	for _, want := range []string{
		"id name BlobChess",
		"option name KingSafetyWeight type spin default 0 min 0 max 10",
		"option name MoveOverhead type spin default 30 min 0 max 5000",
		"option name AnalysisLog type check default true",
		"uciok",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestGoDepth(t *testing.T) {
	s := startSession(t, nil)
	s.send("position startpos moves e2e4 e7e5", "go depth 2")
	out := s.waitFor("bestmove", 1)

	infos := lines(out, "info depth")
	if len(infos) != 2 {
		t.Fatalf("got %d info lines, want 2:\n%s", len(infos), out)
	}
	for i, l := range infos {
		if !strings.HasPrefix(l, fmt.Sprintf("info depth %d score cp ", i+1)) || !strings.Contains(l, " pv ") {
			t.Errorf("malformed info line %q", l)
		}
	}
	if best := lines(out, "bestmove"); len(best) != 1 || best[0] == "bestmove 0000" {
		t.Errorf("bestmove lines = %v", best)
	}
}

func TestGoFindsMate(t *testing.T) {
	s := startSession(t, nil)
	s.send("position fen 6k1/5ppp/8/8/8/8/8/R5K1 w - - 0 1", "go depth 4")
	out := s.waitFor("bestmove", 1)
	if !strings.Contains(out, "bestmove a1a8") {
		t.Errorf("expected bestmove a1a8, got:\n%s", out)
	}
}

func TestInfiniteUntilStop(t *testing.T) {
	s := startSession(t, nil)
	s.send("go infinite")
	time.Sleep(100 * time.Millisecond)
	if strings.Contains(s.out.String(), "bestmove") {
		t.Fatal("bestmove sent before stop")
	}

	s.send("stop", "isready")
	out := s.waitFor("readyok", 1)
	if n := len(lines(out, "bestmove")); n != 1 {
		t.Errorf("got %d bestmove lines, want 1:\n%s", n, out)
	}
}

func TestNoLegalMoves(t *testing.T) {
	s := startSession(t, nil)
	s.send("position fen R6k/6pp/8/8/8/8/8/K7 b - - 0 1", "go depth 3")
	out := s.waitFor("bestmove", 1)
	if !strings.Contains(out, "bestmove 0000") {
		t.Errorf("expected bestmove 0000, got:\n%s", out)
	}
}

func TestProtocolErrors(t *testing.T) {
	s := startSession(t, nil)
	s.send(
		"position startpos moves e2e5",
		"position fen 8/8/8 w - - 0 1",
		"go depth x",
		"setoption name KingSafetyWeight value 11",
		"setoption name Hash value 64",
		"frobnicate",
		"isready",
	)
	out := s.waitFor("readyok", 1)

	if n := len(lines(out, "info string error:")); n != 5 {
		t.Errorf("got %d error lines, want 5:\n%s", n, out)
	}
	if !strings.Contains(out, "info string unknown command: frobnicate") {
		t.Errorf("unknown command not reported:\n%s", out)
	}

	// The loop keeps going with the previous position.
	s.send("d", "isready")
	out = s.waitFor("readyok", 2)
	if !strings.Contains(out, "Fen: rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1") {
		t.Errorf("position changed after errors:\n%s", out)
	}
}

func TestBusyDuringSearch(t *testing.T) {
	s := startSession(t, nil)
	s.send("go infinite", "position startpos moves e2e4", "go depth 1", "d", "stop", "isready")
	out := s.waitFor("readyok", 1)

	if n := strings.Count(out, engine.ErrSearchInProgress.Error()); n != 3 {
		t.Errorf("got %d busy errors, want 3:\n%s", n, out)
	}
	if strings.Contains(out, "Fen: ") {
		t.Errorf("board printed during a search:\n%s", out)
	}
	if n := len(lines(out, "bestmove")); n != 1 {
		t.Errorf("got %d bestmove lines, want 1", n)
	}
}

func TestDebugCommands(t *testing.T) {
	s := startSession(t, nil)
	s.send("eval", "perft 2", "isready")
	out := s.waitFor("readyok", 1)

	for _, want := range []string{"Material: 0", "Eval: ", "Nodes: 400"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestParsePosition(t *testing.T) {
	tests := []struct {
		args    string
		fen     string
		moves   int
		wantErr bool
	}{
		{"startpos", "", 0, false},
		{"startpos moves e2e4 e7e5", "", 2, false},
		{"fen 4k3/8/8/8/8/8/8/4K3 w - - 0 1", "4k3/8/8/8/8/8/8/4K3 w - - 0 1", 0, false},
		{"fen 4k3/8/8/8/8/8/8/4K3 w - - 0 1 moves e1e2", "4k3/8/8/8/8/8/8/4K3 w - - 0 1", 1, false},
		{"", "", 0, true},
		{"fen", "", 0, true},
		{"fen moves e2e4", "", 0, true},
		{"startpos e2e4", "", 0, true},
		{"kiwipete", "", 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.args, func(t *testing.T) {
			spec, err := parsePosition(strings.Fields(tc.args))
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if err != nil {
				return
			}
			if spec.FEN != tc.fen || len(spec.Moves) != tc.moves {
				t.Errorf("spec = %+v", spec)
			}
		})
	}
}

func TestParseGoOptions(t *testing.T) {
	opts, err := parseGoOptions(strings.Fields("wtime 60000 btime 50000 winc 1000 binc 500 movestogo 20 depth 6"))
	if err != nil {
		t.Fatalf("parseGoOptions: %v", err)
	}
	limits := opts.Limits()
	if limits.Time != [2]time.Duration{60 * time.Second, 50 * time.Second} ||
		limits.Inc != [2]time.Duration{time.Second, 500 * time.Millisecond} ||
		limits.MovesToGo != 20 || limits.Depth != 6 || limits.Infinite {
		t.Errorf("limits = %+v", limits)
	}

	for _, bad := range []string{"depth", "movetime -1", "nodes -5", "wtime abc", "mate"} {
		if _, err := parseGoOptions(strings.Fields(bad)); err == nil {
			t.Errorf("parseGoOptions(%q) accepted bad input", bad)
		}
	}
}

func TestParseGoOptionsSkipsUnusedTokens(t *testing.T) {
	tests := []struct {
		args string
		want GoOptions
	}{
		{"nodes 5000", GoOptions{Nodes: 5000}},
		{"ponder wtime 1000 btime 1000", GoOptions{WTime: time.Second, BTime: time.Second}},
		{"searchmoves e2e4 d2d4 movetime 100", GoOptions{MoveTime: 100 * time.Millisecond}},
		{"searchmoves e2e4 infinite", GoOptions{Infinite: true}},
		{"mate 3", GoOptions{Mate: 3}},
		{"frobnicate depth 4 shuffle", GoOptions{Depth: 4}},
		{"", GoOptions{}},
	}
	for _, tt := range tests {
		got, err := parseGoOptions(strings.Fields(tt.args))
		if err != nil {
			t.Errorf("parseGoOptions(%q): %v", tt.args, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseGoOptions(%q) = %+v, want %+v", tt.args, got, tt.want)
		}
	}

	if d := (GoOptions{Mate: 3}).Limits().Depth; d != 5 {
		t.Errorf("mate 3 depth = %d, want 5", d)
	}
	if d := (GoOptions{Mate: 3, Depth: 2}).Limits().Depth; d != 2 {
		t.Errorf("mate 3 depth 2 gave depth %d, want 2", d)
	}
	if n := (GoOptions{Nodes: 5000}).Limits().Nodes; n != 5000 {
		t.Errorf("nodes limit = %d, want 5000", n)
	}
}

func TestGoWithExtraTokens(t *testing.T) {
	for _, cmd := range []string{
		"go nodes 5000",
		"go ponder wtime 1000 btime 1000",
		"go searchmoves e2e4 movetime 100",
	} {
		s := startSession(t, nil)
		s.send(cmd)
		out := s.waitFor("bestmove", 1)
		if strings.Contains(out, "info string error:") {
			t.Errorf("%q reported an error:\n%s", cmd, out)
		}
		if best := lines(out, "bestmove"); len(best) != 1 || best[0] == "bestmove 0000" {
			t.Errorf("%q: bestmove lines = %v", cmd, best)
		}
		s.quit()
	}
}

func TestParseSetOption(t *testing.T) {
	name, value := parseSetOption(strings.Fields("name Move Overhead value 100"))
	if name != "Move Overhead" || value != "100" {
		t.Errorf("got %q = %q", name, value)
	}
}

func TestSettingsPersisted(t *testing.T) {
	store, err := storage.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	defer store.Close()

	s := startSession(t, store)
	s.send("setoption name KingSafetyWeight value 2", "setoption name MoveOverhead value 50", "isready")
	s.waitFor("readyok", 1)
	s.quit()

	got, err := store.LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if got.KingSafetyWeight != 2 || got.MoveOverheadMs != 50 || !got.AnalysisLog {
		t.Errorf("settings = %+v", got)
	}

	// A new session starts from the stored settings.
	eng := engine.NewEngine()
	New(eng, strings.NewReader(""), io.Discard, store, zerolog.Nop())
	if _, err := eng.Evaluate(); err != nil {
		t.Errorf("Evaluate: %v", err)
	}
}

func TestAnalysisLog(t *testing.T) {
	store, err := storage.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	defer store.Close()

	s := startSession(t, store)
	s.send("position startpos", "go depth 1")
	out := s.waitFor("bestmove", 1)
	s.quit()

	rec, found, err := store.LookupAnalysis("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1")
	if err != nil || !found {
		t.Fatalf("LookupAnalysis: found=%v err=%v", found, err)
	}
	if rec.Depth != 1 || !strings.Contains(out, "bestmove "+rec.BestMove) || len(rec.Ranking) != 20 {
		t.Errorf("record = %+v, output:\n%s", rec, out)
	}

	store2, err := storage.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	defer store2.Close()
	s = startSession(t, store2)
	s.send("setoption name AnalysisLog value false", "go depth 1")
	s.waitFor("bestmove", 1)
	s.quit()
	if n, _ := store2.CountAnalyses(); n != 0 {
		t.Errorf("analysis recorded with AnalysisLog off: %d", n)
	}
}
