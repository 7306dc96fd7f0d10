package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hailam/blobchess/internal/board"
)

var (
	ErrSearchInProgress = errors.New("search in progress")
	ErrNotSearching     = errors.New("no search has been started")
)

// PositionSpec describes a position to load: a FEN (empty means the
// starting position) followed by moves in UCI notation.
type PositionSpec struct {
	FEN   string
	Moves []string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithWeights sets the evaluation weights.
func WithWeights(w Weights) Option {
	return func(e *Engine) { e.weights = w }
}

// WithMoveOverhead sets the time subtracted from every timed budget.
func WithMoveOverhead(d time.Duration) Option {
	return func(e *Engine) { e.tm = NewTimeManager(d) }
}

// Engine is a search session: it owns the SearchState and runs at most one
// think request at a time.
type Engine struct {
	mu      sync.Mutex
	state   *SearchState
	weights Weights
	tm      *TimeManager
	logger  zerolog.Logger
	req     *request

	// Callbacks, invoked from search goroutines. Set them before the first
	// StartSearch.
	OnInfo     func(Info)
	OnBestMove func(Result, error)
}

// request is one think request: a driver goroutine and a watchdog
// goroutine sharing a fresh SearchControl.
type request struct {
	ctl      *SearchControl
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	result Result
	err    error
}

func (r *request) requestStop() {
	r.stopOnce.Do(func() {
		r.ctl.Stop()
		close(r.stop)
	})
}

func (r *request) finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// NewEngine creates an engine at the starting position.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		weights: DefaultWeights(),
		tm:      NewTimeManager(DefaultMoveOverhead),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.state = NewSearchState(board.NewPosition(), e.weights)
	return e
}

func (e *Engine) busyLocked() bool {
	return e.req != nil && !e.req.finished()
}

// Searching reports whether a think request is active.
func (e *Engine) Searching() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.busyLocked()
}

// StartSearch begins a think request and returns immediately. Exactly one
// OnBestMove call follows, after both search goroutines have exited. In
// infinite mode that call waits for StopSearch.
func (e *Engine) StartSearch(limits SearchLimits) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busyLocked() {
		return ErrSearchInProgress
	}

	budget := e.tm.Allocate(limits, e.state.pos)
	req := &request{
		ctl:  NewSearchControl(),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	req.ctl.SetNodeLimit(limits.Nodes)
	e.req = req

	driver := NewDriver(e.state, req.ctl, e.logger)
	driver.MaxDepth = limits.Depth
	driver.OnInfo = e.OnInfo
	onBestMove := e.OnBestMove
	logger := e.logger

	logger.Info().
		Str("fen", e.state.pos.FEN()).
		Dur("budget", budget.Duration).
		Bool("unbounded", budget.Unbounded).
		Int("max-depth", limits.Depth).
		Uint64("max-nodes", limits.Nodes).
		Msg("search-started")

	finished := make(chan struct{})
	g := &errgroup.Group{}
	g.Go(func() error {
		defer close(finished)
		res, err := driver.Run()
		req.result = res
		return err
	})
	g.Go(func() error {
		watchdog(req.ctl, budget, req.stop, finished)
		return nil
	})

	go func() {
		err := g.Wait()
		if limits.Infinite {
			<-req.stop
		}
		req.err = err

		switch {
		case err != nil:
			logger.Error().Err(err).Str("fallback", req.result.Move.String()).Msg("search-failed")
		default:
			logger.Info().
				Str("move", req.result.Move.String()).
				Int("score", req.result.Score).
				Int("depth", req.result.Depth).
				Uint64("nodes", req.result.Nodes).
				Uint64("nps", req.result.NPS()).
				Float64("time-elapsed-sec", req.result.Elapsed.Seconds()).
				Msg("search-finished")
		}

		if onBestMove != nil {
			onBestMove(req.result, err)
		}
		close(req.done)
	}()
	return nil
}

// StopSearch cancels the active request and blocks until its result has
// been emitted. After the request finished on its own, it returns that
// result.
func (e *Engine) StopSearch() (Result, error) {
	e.mu.Lock()
	req := e.req
	e.mu.Unlock()
	if req == nil {
		return Result{}, ErrNotSearching
	}
	req.requestStop()
	<-req.done
	return req.result, req.err
}

// Wait blocks until the current request has emitted its result.
func (e *Engine) Wait() (Result, error) {
	e.mu.Lock()
	req := e.req
	e.mu.Unlock()
	if req == nil {
		return Result{}, ErrNotSearching
	}
	<-req.done
	return req.result, req.err
}

// ResetState drops the SearchState and starts over at the initial position.
func (e *Engine) ResetState() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busyLocked() {
		return ErrSearchInProgress
	}
	e.state = NewSearchState(board.NewPosition(), e.weights)
	return nil
}

// LoadPosition replaces the position. On error the previous position is
// kept.
func (e *Engine) LoadPosition(spec PositionSpec) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busyLocked() {
		return ErrSearchInProgress
	}

	pos := board.NewPosition()
	if spec.FEN != "" {
		var err error
		if pos, err = board.ParseFEN(spec.FEN); err != nil {
			return fmt.Errorf("load position: %w", err)
		}
	}
	for i, s := range spec.Moves {
		m, err := pos.ParseMove(s)
		if err != nil {
			return fmt.Errorf("load position: move %d: %w", i+1, err)
		}
		if err := pos.MakeMove(m); err != nil {
			return fmt.Errorf("load position: move %d: %w", i+1, err)
		}
	}

	e.state = NewSearchState(pos, e.weights)
	e.logger.Debug().Str("fen", pos.FEN()).Int("moves", len(spec.Moves)).Msg("position-loaded")
	return nil
}

// SetWeights changes the evaluation weights.
func (e *Engine) SetWeights(w Weights) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busyLocked() {
		return ErrSearchInProgress
	}
	e.weights = w
	e.state.SetWeights(w)
	return nil
}

// SetMoveOverhead changes the move overhead for later requests.
func (e *Engine) SetMoveOverhead(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tm = NewTimeManager(d)
}

// idle runs fn on the search state while no request is active.
func (e *Engine) idle(fn func(s *SearchState) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busyLocked() {
		return ErrSearchInProgress
	}
	return fn(e.state)
}

// FEN returns the FEN of the loaded position.
func (e *Engine) FEN() (string, error) {
	var fen string
	err := e.idle(func(s *SearchState) error {
		fen = s.pos.FEN()
		return nil
	})
	return fen, err
}

// Board renders the loaded position.
func (e *Engine) Board() (string, error) {
	var out string
	err := e.idle(func(s *SearchState) error {
		out = s.pos.String()
		return nil
	})
	return out, err
}

// Evaluate returns the evaluation breakdown of the loaded position.
func (e *Engine) Evaluate() (Breakdown, error) {
	var b Breakdown
	err := e.idle(func(s *SearchState) error {
		var err error
		b, err = s.Breakdown()
		return err
	})
	return b, err
}

// Perft counts leaf nodes of the loaded position at depth.
func (e *Engine) Perft(depth int) (int64, error) {
	var nodes int64
	err := e.idle(func(s *SearchState) error {
		nodes = s.pos.Perft(depth)
		return nil
	})
	return nodes, err
}

// LegalMoves returns the legal moves of the loaded position.
func (e *Engine) LegalMoves() ([]board.Move, error) {
	var moves []board.Move
	err := e.idle(func(s *SearchState) error {
		moves = s.pos.LegalMoves()
		return nil
	})
	return moves, err
}
