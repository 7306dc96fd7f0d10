// Package uci implements the Universal Chess Interface front-end.
package uci

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hailam/blobchess/internal/engine"
	"github.com/hailam/blobchess/internal/storage"
)

const (
	maxKingSafetyWeight = 10
	maxMoveOverheadMs   = 5000
)

// UCI implements the Universal Chess Interface protocol.
type UCI struct {
	engine   *engine.Engine
	store    *storage.Store // nil when persistence is disabled
	settings *storage.Settings
	logger   zerolog.Logger

	in    io.Reader
	out   io.Writer
	outMu sync.Mutex
}

// New creates a UCI handler reading commands from in and writing replies
// to out. Settings found in store are applied to eng.
func New(eng *engine.Engine, in io.Reader, out io.Writer, store *storage.Store, logger zerolog.Logger) *UCI {
	u := &UCI{
		engine:   eng,
		store:    store,
		settings: storage.DefaultSettings(),
		logger:   logger,
		in:       in,
		out:      out,
	}

	if store != nil {
		settings, err := store.LoadSettings()
		if err != nil {
			logger.Warn().Err(err).Msg("using-default-settings")
		}
		u.settings = settings
	}
	if err := eng.SetWeights(engine.Weights{KingSafety: u.settings.KingSafetyWeight}); err != nil {
		logger.Warn().Err(err).Msg("apply-settings")
	}
	eng.SetMoveOverhead(u.settings.MoveOverhead())

	eng.OnInfo = u.sendInfo
	return u
}

func (u *UCI) send(format string, args ...any) {
	u.outMu.Lock()
	defer u.outMu.Unlock()
	fmt.Fprintf(u.out, format+"\n", args...)
}

func (u *UCI) sendError(err error) {
	u.send("info string error: %v", err)
}

// Run reads commands until quit or end of input. A running search is
// stopped, and its bestmove emitted, before Run returns.
func (u *UCI) Run() error {
	scanner := bufio.NewScanner(u.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := parts[0]
		args := parts[1:]
		u.logger.Debug().Str("command", line).Msg("uci-command")

		switch cmd {
		case "uci":
			u.handleUCI()
		case "isready":
			u.send("readyok")
		case "ucinewgame":
			u.handleNewGame()
		case "position":
			u.handlePosition(args)
		case "go":
			u.handleGo(args)
		case "stop":
			u.handleStop()
		case "quit":
			u.handleStop()
			return nil
		case "setoption":
			u.handleSetOption(args)
		// Debug commands
		case "d":
			u.handleDisplay()
		case "eval":
			u.handleEval()
		case "perft":
			u.handlePerft(args)
		default:
			u.send("info string unknown command: %s", cmd)
		}
	}

	u.handleStop()
	return scanner.Err()
}

// handleUCI responds to the "uci" command.
func (u *UCI) handleUCI() {
	u.send("id name BlobChess")
	u.send("id author BlobChess Team")
	u.send("")
	u.send("option name KingSafetyWeight type spin default 0 min 0 max %d", maxKingSafetyWeight)
	u.send("option name MoveOverhead type spin default %d min 0 max %d",
		engine.DefaultMoveOverhead.Milliseconds(), maxMoveOverheadMs)
	u.send("option name AnalysisLog type check default true")
	u.send("uciok")
}

// handleNewGame resets the engine for a new game.
func (u *UCI) handleNewGame() {
	if err := u.engine.ResetState(); err != nil {
		u.sendError(err)
	}
}

// parsePosition splits the arguments of a position command.
// Formats:
//   - position startpos
//   - position startpos moves e2e4 e7e5
//   - position fen <fen>
//   - position fen <fen> moves e2e4
func parsePosition(args []string) (engine.PositionSpec, error) {
	if len(args) == 0 {
		return engine.PositionSpec{}, errors.New("position: missing arguments")
	}

	movesAt := len(args)
	for i, arg := range args {
		if arg == "moves" {
			movesAt = i
			break
		}
	}

	var spec engine.PositionSpec
	switch args[0] {
	case "startpos":
		if len(args) > 1 && movesAt != 1 {
			return spec, fmt.Errorf("position: unexpected %q after startpos", args[1])
		}
	case "fen":
		if movesAt <= 1 {
			return spec, errors.New("position: missing FEN")
		}
		spec.FEN = strings.Join(args[1:movesAt], " ")
	default:
		return spec, fmt.Errorf("position: unknown kind %q", args[0])
	}

	if movesAt < len(args) {
		spec.Moves = args[movesAt+1:]
	}
	return spec, nil
}

// handlePosition parses and sets up a position.
func (u *UCI) handlePosition(args []string) {
	spec, err := parsePosition(args)
	if err != nil {
		u.sendError(err)
		return
	}
	if err := u.engine.LoadPosition(spec); err != nil {
		u.sendError(err)
	}
}

// GoOptions holds parsed "go" command options.
type GoOptions struct {
	Depth     int
	Nodes     uint64
	Mate      int
	MoveTime  time.Duration
	Infinite  bool
	WTime     time.Duration
	BTime     time.Duration
	WInc      time.Duration
	BInc      time.Duration
	MovesToGo int
}

// goValueParams take one numeric argument.
var goValueParams = map[string]bool{
	"depth": true, "nodes": true, "mate": true, "movetime": true,
	"wtime": true, "btime": true, "winc": true, "binc": true, "movestogo": true,
}

// parseGoOptions parses "go" command arguments. Unknown tokens, ponder and
// searchmoves lists are skipped; a malformed value is an error.
func parseGoOptions(args []string) (GoOptions, error) {
	opts := GoOptions{}
	ms := func(n int) time.Duration { return time.Duration(n) * time.Millisecond }

	for i := 0; i < len(args); i++ {
		param := args[i]
		switch {
		case param == "infinite":
			opts.Infinite = true
			continue
		case param == "searchmoves":
			for i+1 < len(args) && !goValueParams[args[i+1]] && args[i+1] != "infinite" && args[i+1] != "ponder" {
				i++
			}
			continue
		case !goValueParams[param]:
			continue
		}

		if i+1 >= len(args) {
			return opts, fmt.Errorf("go: %s needs a value", param)
		}
		i++
		n, err := strconv.Atoi(args[i])
		if err != nil {
			return opts, fmt.Errorf("go: %s: %w", param, err)
		}
		if n < 0 {
			return opts, fmt.Errorf("go: %s must not be negative", param)
		}

		switch param {
		case "depth":
			opts.Depth = n
		case "nodes":
			opts.Nodes = uint64(n)
		case "mate":
			opts.Mate = n
		case "movetime":
			opts.MoveTime = ms(n)
		case "wtime":
			opts.WTime = ms(n)
		case "btime":
			opts.BTime = ms(n)
		case "winc":
			opts.WInc = ms(n)
		case "binc":
			opts.BInc = ms(n)
		case "movestogo":
			opts.MovesToGo = n
		}
	}
	return opts, nil
}

// Limits converts GoOptions to engine.SearchLimits. A mate in n request
// searches 2n-1 plies unless a depth is given.
func (o GoOptions) Limits() engine.SearchLimits {
	depth := o.Depth
	if depth == 0 && o.Mate > 0 {
		depth = 2*o.Mate - 1
	}
	return engine.SearchLimits{
		Time:      [2]time.Duration{o.WTime, o.BTime},
		Inc:       [2]time.Duration{o.WInc, o.BInc},
		MovesToGo: o.MovesToGo,
		MoveTime:  o.MoveTime,
		Depth:     depth,
		Nodes:     o.Nodes,
		Infinite:  o.Infinite,
	}
}

// handleGo starts a search with the given parameters.
func (u *UCI) handleGo(args []string) {
	opts, err := parseGoOptions(args)
	if err != nil {
		u.sendError(err)
		return
	}

	fen, err := u.engine.FEN()
	if err != nil {
		u.sendError(err)
		return
	}

	record := u.store != nil && u.settings.AnalysisLog
	u.engine.OnBestMove = func(res engine.Result, err error) {
		u.reportBestMove(res, err)
		if record && err == nil {
			u.recordAnalysis(fen, res)
		}
	}
	if err := u.engine.StartSearch(opts.Limits()); err != nil {
		u.sendError(err)
	}
}

// reportBestMove emits the single bestmove line of a search.
func (u *UCI) reportBestMove(res engine.Result, err error) {
	if errors.Is(err, engine.ErrNoLegalMoves) {
		// Only send 0000 for checkmate/stalemate (no legal moves)
		u.send("bestmove 0000")
		return
	}
	if err != nil {
		u.sendError(err)
	}
	u.send("bestmove %s", res.Move)
}

func (u *UCI) recordAnalysis(fen string, res engine.Result) {
	ranking := make([]string, len(res.Ranking))
	for i, sm := range res.Ranking {
		ranking[i] = sm.Move.String()
	}
	rec := storage.AnalysisRecord{
		FEN:       fen,
		BestMove:  res.Move.String(),
		Score:     res.Score,
		Depth:     res.Depth,
		Nodes:     res.Nodes,
		ElapsedMs: res.Elapsed.Milliseconds(),
		Ranking:   ranking,
	}
	if err := u.store.RecordAnalysis(rec); err != nil {
		u.logger.Error().Err(err).Str("fen", fen).Msg("record-analysis")
	}
}

// sendInfo outputs search info in UCI format.
func (u *UCI) sendInfo(info engine.Info) {
	u.send("info depth %d score cp %d nodes %d nps %d time %d pv %s",
		info.Depth, info.Score, info.Nodes, info.NPS, info.Elapsed.Milliseconds(), info.Best)
}

// handleStop stops the current search.
func (u *UCI) handleStop() {
	if !u.engine.Searching() {
		return
	}
	if _, err := u.engine.StopSearch(); err != nil && !errors.Is(err, engine.ErrNotSearching) {
		u.logger.Debug().Err(err).Msg("search-stopped")
	}
}

// parseSetOption splits "setoption name <name> value <value>".
func parseSetOption(args []string) (name, value string) {
	var names, values []string
	target := &names
	for _, arg := range args {
		switch arg {
		case "name":
			target = &names
		case "value":
			target = &values
		default:
			*target = append(*target, arg)
		}
	}
	return strings.Join(names, " "), strings.Join(values, " ")
}

// handleSetOption processes "setoption" commands.
func (u *UCI) handleSetOption(args []string) {
	name, value := parseSetOption(args)
	if err := u.setOption(name, value); err != nil {
		u.sendError(err)
		return
	}

	if u.store != nil {
		if err := u.store.SaveSettings(u.settings); err != nil {
			u.logger.Error().Err(err).Msg("save-settings")
			u.sendError(err)
		}
	}
}

func (u *UCI) setOption(name, value string) error {
	switch strings.ToLower(name) {
	case "kingsafetyweight":
		w, err := spin(value, 0, maxKingSafetyWeight)
		if err != nil {
			return fmt.Errorf("KingSafetyWeight: %w", err)
		}
		if err := u.engine.SetWeights(engine.Weights{KingSafety: w}); err != nil {
			return err
		}
		u.settings.KingSafetyWeight = w
	case "moveoverhead":
		overhead, err := spin(value, 0, maxMoveOverheadMs)
		if err != nil {
			return fmt.Errorf("MoveOverhead: %w", err)
		}
		u.settings.MoveOverheadMs = overhead
		u.engine.SetMoveOverhead(u.settings.MoveOverhead())
	case "analysislog":
		on, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("AnalysisLog: %w", err)
		}
		u.settings.AnalysisLog = on
	default:
		return fmt.Errorf("unknown option %q", name)
	}
	u.logger.Info().Str("option", name).Str("value", value).Msg("option-set")
	return nil
}

func spin(value string, lo, hi int) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("%d out of range [%d, %d]", n, lo, hi)
	}
	return n, nil
}

// handleDisplay prints the board.
func (u *UCI) handleDisplay() {
	out, err := u.engine.Board()
	if err != nil {
		u.sendError(err)
		return
	}
	fen, err := u.engine.FEN()
	if err != nil {
		u.sendError(err)
		return
	}
	u.send("%s", strings.TrimRight(out, "\n"))
	u.send("Fen: %s", fen)
}

// handleEval prints every evaluation term.
func (u *UCI) handleEval() {
	b, err := u.engine.Evaluate()
	if err != nil {
		u.sendError(err)
		return
	}
	u.send("Result: %s", b.Result)
	u.send("Endgame: %v", b.Endgame)
	u.send("Material: %d", b.Material)
	u.send("Space: %d (ray %d, non-ray %d)", b.Space, b.RaySpace, b.NonRaySpace)
	u.send("Center control: %d", b.CenterControl)
	u.send("King safety: %d", b.KingSafety)
	u.send("King activity: %d", b.KingActivity)
	u.send("Passed pawns: %d", b.PassedPawns)
	u.send("Mobility: %d", b.Mobility)
	u.send("Eval: %d", b.Eval)
}

// handlePerft runs a perft test.
func (u *UCI) handlePerft(args []string) {
	depth := 3
	if len(args) > 0 {
		d, err := strconv.Atoi(args[0])
		if err != nil || d < 0 {
			u.sendError(fmt.Errorf("perft: bad depth %q", args[0]))
			return
		}
		depth = d
	}

	start := time.Now()
	nodes, err := u.engine.Perft(depth)
	if err != nil {
		u.sendError(err)
		return
	}
	elapsed := time.Since(start)

	u.send("Nodes: %d", nodes)
	u.send("Time: %v", elapsed)
	if elapsed > 0 {
		u.send("NPS: %.0f", float64(nodes)/elapsed.Seconds())
	}
}
