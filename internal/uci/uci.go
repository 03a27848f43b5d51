// Package uci implements the Universal Chess Interface front end: it
// reads commands, runs searches and writes results.
package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/hailam/trout/internal/board"
	"github.com/hailam/trout/internal/config"
	"github.com/hailam/trout/internal/diagram"
	"github.com/hailam/trout/internal/engine"
	"github.com/hailam/trout/internal/storage"
)

// Option bounds
const (
	MaxHashMB  = 65536
	MaxMultiPV = 64
)

// queueSize is the number of input lines buffered ahead of the consumer.
const queueSize = 64

// Protocol implements the Universal Chess Interface protocol.
type Protocol struct {
	out   io.Writer
	outMu sync.Mutex

	search *engine.Search
	board  *board.Board
	store  *storage.Store

	hashMB       int
	multiPV      int
	analysisPath string
	showWDL      bool

	// Search state, owned by the consumer goroutine.
	group   *errgroup.Group
	current *searchRun
}

type searchRun struct {
	cancel   context.CancelFunc
	done     chan struct{}
	infinite bool
}

// New creates a protocol handler writing to out, set up from cfg.
func New(out io.Writer, cfg *config.Config) (*Protocol, error) {
	store, err := storage.OpenDir(cfg.AnalysisDir)
	if err != nil {
		return nil, err
	}

	p := &Protocol{
		out:          out,
		search:       engine.New(engine.NewCache(cfg.HashMB), nil, cfg.EngineOptions()),
		board:        board.New(),
		store:        store,
		hashMB:       cfg.HashMB,
		multiPV:      cfg.MultiPV,
		analysisPath: cfg.AnalysisDir,
	}
	p.search.OnInfo = p.sendInfo
	return p, nil
}

// Close releases the analysis store.
func (p *Protocol) Close() error {
	return p.store.Close()
}

// Run reads commands from in until "quit", end of input or cancellation
// of ctx. Commands are handled one at a time in arrival order; searches
// run in the background so that "stop" and "isready" are answered at once.
func (p *Protocol) Run(ctx context.Context, in io.Reader) error {
	g, ctx := errgroup.WithContext(ctx)
	p.group = g

	// The reader is not part of the group: a blocked Read cannot be
	// interrupted, and the process exits after "quit" anyway.
	lines := make(chan string, queueSize)
	var readErr error
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr = scanner.Err()
	}()

	g.Go(func() error {
		defer config.LogPanic("commands")
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					p.waitSearch()
					return readErr
				}
				if p.handle(ctx, line) {
					p.stopSearch()
					return nil
				}
			case <-ctx.Done():
				p.stopSearch()
				return nil
			}
		}
	})
	return g.Wait()
}

// handle dispatches one command line. It reports whether to quit.
func (p *Protocol) handle(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd := parts[0]
	args := parts[1:]
	log.Debug().Str("cmd", line).Msg("command")

	switch cmd {
	case "uci":
		p.handleUCI()
	case "isready":
		p.send("readyok")
	case "debug":
		p.handleDebug(args)
	case "ucinewgame":
		p.waitSearch()
		p.handleNewGame()
	case "position":
		p.waitSearch()
		p.handlePosition(args)
	case "go":
		p.waitSearch()
		p.handleGo(ctx, args)
	case "stop":
		p.stopSearch()
	case "quit":
		return true
	case "setoption":
		p.waitSearch()
		p.handleSetOption(args)
	// Debug commands
	case "d":
		p.waitSearch()
		p.handleDisplay()
	case "perft":
		p.waitSearch()
		p.handlePerft(args)
	case "eval":
		p.waitSearch()
		p.handleEval()
	case "svg":
		p.waitSearch()
		p.handleSVG(args)
	default:
		log.Debug().Str("cmd", cmd).Msg("unknown command ignored")
	}
	return false
}

func (p *Protocol) send(format string, args ...any) {
	p.outMu.Lock()
	defer p.outMu.Unlock()
	fmt.Fprintf(p.out, format+"\n", args...)
}

// handleUCI responds to the "uci" command.
func (p *Protocol) handleUCI() {
	p.send("id name Trout")
	p.send("id author the Trout authors")
	p.send("")
	p.send("option name Hash type spin default %d min 1 max %d", p.hashMB, MaxHashMB)
	p.send("option name MultiPV type spin default %d min 1 max %d", p.multiPV, MaxMultiPV)
	p.send("option name Clear Hash type button")
	p.send("option name UCI_ShowWDL type check default %t", p.showWDL)
	p.send("option name AnalysisPath type string default %s", orEmpty(p.analysisPath))
	p.send("uciok")
}

func orEmpty(s string) string {
	if s == "" {
		return "<empty>"
	}
	return s
}

func (p *Protocol) handleDebug(args []string) {
	if len(args) == 0 {
		return
	}
	switch args[0] {
	case "on":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "off":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// handleNewGame resets the engine for a new game.
func (p *Protocol) handleNewGame() {
	p.search.NewGame()
	p.board = board.New()
}

// handlePosition parses and sets up a position.
// Formats:
//   - position startpos
//   - position startpos moves e2e4 e7e5
//   - position fen <fen>
//   - position fen <fen> moves e2e4
//
// An invalid position leaves the current one unchanged.
func (p *Protocol) handlePosition(args []string) {
	if len(args) == 0 {
		return
	}

	movesAt := len(args)
	for i, arg := range args {
		if arg == "moves" {
			movesAt = i
			break
		}
	}
	var moves []string
	if movesAt < len(args) {
		moves = args[movesAt+1:]
	}

	var fen string
	switch args[0] {
	case "startpos":
		fen = board.StartFEN
	case "fen":
		fen = strings.Join(args[1:movesAt], " ")
	default:
		return
	}

	if err := p.board.SetPosition(fen, moves...); err != nil {
		log.Warn().Err(err).Str("fen", fen).Msg("invalid position")
		p.send("info string invalid position: %v", err)
	}
}

// parseGoOptions parses "go" command arguments.
func parseGoOptions(args []string) (engine.Limits, error) {
	var limits engine.Limits

	next := func(i int) (int, error) {
		if i+1 >= len(args) {
			return 0, fmt.Errorf("%s needs a value", args[i])
		}
		n, err := strconv.Atoi(args[i+1])
		if err != nil {
			return 0, fmt.Errorf("%s: bad value %q", args[i], args[i+1])
		}
		// Some interfaces send negative clocks after a flag fall.
		return max(n, 0), nil
	}
	ms := func(n int) time.Duration { return time.Duration(n) * time.Millisecond }

	for i := 0; i < len(args); i++ {
		var (
			n   int
			err error
		)
		switch args[i] {
		case "infinite":
			limits.Infinite = true
			continue
		case "depth", "nodes", "movetime", "wtime", "btime", "winc", "binc", "movestogo":
			n, err = next(i)
		default:
			continue
		}
		if err != nil {
			return limits, err
		}

		switch args[i] {
		case "depth":
			limits.Depth = n
		case "nodes":
			limits.Nodes = uint64(n)
		case "movetime":
			limits.MoveTime = ms(n)
		case "wtime":
			limits.Time[board.White] = ms(n)
		case "btime":
			limits.Time[board.Black] = ms(n)
		case "winc":
			limits.Inc[board.White] = ms(n)
		case "binc":
			limits.Inc[board.Black] = ms(n)
		case "movestogo":
			limits.MovesToGo = n
		}
		i++
	}
	return limits, nil
}

// handleGo starts a search with the given parameters.
func (p *Protocol) handleGo(ctx context.Context, args []string) {
	limits, err := parseGoOptions(args)
	if err != nil {
		p.send("info string invalid go command: %v", err)
		return
	}
	limits.MultiPV = p.multiPV

	b := p.board.Clone()
	fen := b.FEN()
	p.applyStoredHint(b, fen)

	sctx, cancel := context.WithCancel(ctx)
	run := &searchRun{cancel: cancel, done: make(chan struct{}), infinite: limits.Infinite}
	p.current = run

	p.group.Go(func() error {
		defer close(run.done)
		defer cancel()
		defer config.LogPanic("search")

		result := p.search.FindBestMove(sctx, b, limits)
		p.sendBestMove(result)
		p.saveAnalysis(fen, result)
		return nil
	})
}

// stopSearch stops the current search and waits for its bestmove.
func (p *Protocol) stopSearch() {
	if p.current == nil {
		return
	}
	p.current.cancel()
	p.search.Stop()
	<-p.current.done
	p.current = nil
}

// waitSearch waits for the current search to finish on its own. An
// infinite search never does, so it is stopped.
func (p *Protocol) waitSearch() {
	if p.current == nil {
		return
	}
	if p.current.infinite {
		log.Warn().Msg("command received during infinite search, stopping it")
		p.stopSearch()
		return
	}
	<-p.current.done
	p.current = nil
}

// sendInfo outputs search info in UCI format.
func (p *Protocol) sendInfo(info engine.Info) {
	p.send("info %s", formatInfo(info, p.showWDL))
}

func formatInfo(info engine.Info, showWDL bool) string {
	parts := []string{
		fmt.Sprintf("depth %d", info.Depth),
		fmt.Sprintf("seldepth %d", info.SelDepth),
	}
	if info.Completed() {
		parts = append(parts,
			fmt.Sprintf("multipv %d", info.MultiPV),
			"score "+engine.FormatScore(info.Score))
		if showWDL {
			parts = append(parts, fmt.Sprintf("wdl %d %d %d", info.WDL[0], info.WDL[1], info.WDL[2]))
		}
	} else if info.CurrMove != board.NoMove {
		parts = append(parts,
			"currmove "+info.CurrMove.String(),
			fmt.Sprintf("currmovenumber %d", info.CurrMoveNumber))
	}
	parts = append(parts,
		fmt.Sprintf("nodes %d", info.Nodes),
		fmt.Sprintf("nps %d", info.NPS),
		fmt.Sprintf("hashfull %d", info.HashFull),
		fmt.Sprintf("time %d", info.Time.Milliseconds()))
	if info.Completed() {
		parts = append(parts, "pv "+formatMoves(info.PV))
	}
	return strings.Join(parts, " ")
}

func moveStrings(moves []board.Move) []string {
	return lo.Map(moves, func(m board.Move, _ int) string { return m.String() })
}

func formatMoves(moves []board.Move) string {
	return strings.Join(moveStrings(moves), " ")
}

func (p *Protocol) sendBestMove(result engine.Result) {
	switch {
	case result.BestMove == board.NoMove:
		// Only for checkmate/stalemate (no legal moves)
		p.send("bestmove 0000")
	case result.PonderMove != board.NoMove:
		p.send("bestmove %s ponder %s", result.BestMove, result.PonderMove)
	default:
		p.send("bestmove %s", result.BestMove)
	}
}

// applyStoredHint passes the stored best move for the position, if any,
// to the search.
func (p *Protocol) applyStoredHint(b *board.Board, fen string) {
	p.search.SetRootHint(board.NoMove)
	if p.store == nil {
		return
	}
	a, found, err := p.store.LoadAnalysis(fen)
	if err != nil {
		log.Warn().Err(err).Msg("load analysis")
		return
	}
	if !found {
		return
	}
	m, err := b.ParseMove(a.BestMove)
	if err != nil {
		log.Debug().Str("move", a.BestMove).Msg("stored move no longer parses")
		return
	}
	log.Debug().Str("move", a.BestMove).Int("depth", a.Depth).Msg("using stored analysis")
	p.search.SetRootHint(m)
}

func (p *Protocol) saveAnalysis(fen string, result engine.Result) {
	if p.store == nil || result.BestMove == board.NoMove || len(result.Lines) == 0 {
		return
	}
	a := storage.Analysis{
		FEN:      fen,
		BestMove: result.BestMove.String(),
		Score:    result.Score,
		Depth:    result.Depth,
		Nodes:    result.Nodes,
		PV:       moveStrings(result.Lines[0].PV),
	}
	if _, err := p.store.SaveAnalysis(a); err != nil {
		log.Warn().Err(err).Str("fen", fen).Msg("save analysis")
	}
}

// handleSetOption processes "setoption" commands.
func (p *Protocol) handleSetOption(args []string) {
	name, value := parseSetOption(args)

	switch strings.ToLower(name) {
	case "hash":
		mb, err := strconv.Atoi(value)
		if err != nil || mb < 1 || mb > MaxHashMB {
			p.send("info string Hash must be between 1 and %d", MaxHashMB)
			return
		}
		p.hashMB = mb
		p.search.SetCache(engine.NewCache(mb))
		log.Info().Int("mb", mb).Uint64("entries", p.search.Cache().Capacity()).Msg("cache resized")
	case "multipv":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 || n > MaxMultiPV {
			p.send("info string MultiPV must be between 1 and %d", MaxMultiPV)
			return
		}
		p.multiPV = n
	case "clear hash":
		p.search.Cache().Clear()
	case "uci_showwdl":
		show, err := strconv.ParseBool(value)
		if err != nil {
			p.send("info string UCI_ShowWDL must be true or false")
			return
		}
		p.showWDL = show
	case "analysispath":
		if value == "<empty>" {
			value = ""
		}
		store, err := storage.OpenDir(value)
		if err != nil {
			p.send("info string cannot open analysis store: %v", err)
			return
		}
		if err := p.store.Close(); err != nil {
			log.Warn().Err(err).Msg("close analysis store")
		}
		p.store = store
		p.analysisPath = value
	default:
		log.Debug().Str("name", name).Msg("unknown option ignored")
	}
}

// parseSetOption splits "name <name> value <value>"; both may contain spaces.
func parseSetOption(args []string) (name, value string) {
	var nameParts, valueParts []string
	var target *[]string
	for _, arg := range args {
		switch arg {
		case "name":
			target = &nameParts
		case "value":
			target = &valueParts
		default:
			if target != nil {
				*target = append(*target, arg)
			}
		}
	}
	return strings.Join(nameParts, " "), strings.Join(valueParts, " ")
}

func (p *Protocol) handleDisplay() {
	p.send("%s", p.board.String())
	p.send("Fen: %s", p.board.FEN())
	p.send("Key: %016X", p.board.Key())
}

// handlePerft runs a perft test.
func (p *Protocol) handlePerft(args []string) {
	depth := 5
	if len(args) > 0 {
		d, err := strconv.Atoi(args[0])
		if err != nil || d < 1 {
			p.send("info string perft needs a positive depth")
			return
		}
		depth = d
	}

	start := time.Now()
	var nodes uint64
	for _, e := range p.board.Divide(depth) {
		p.send("%s: %d", e.Move, e.Nodes)
		nodes += e.Nodes
	}
	elapsed := time.Since(start)

	p.send("")
	p.send("Nodes: %d", nodes)
	p.send("Time: %v", elapsed)
	if elapsed > 0 {
		p.send("NPS: %.0f", float64(nodes)/elapsed.Seconds())
	}
}

func (p *Protocol) handleEval() {
	p.send("Evaluation: %s (side to move)", engine.FormatScore(p.search.Evaluate(p.board)))
}

func (p *Protocol) handleSVG(args []string) {
	if len(args) == 0 {
		p.send("info string svg needs a file name")
		return
	}
	path := strings.Join(args, " ")
	if err := writeDiagram(path, p.board.Current()); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("write diagram")
		p.send("info string %v", err)
		return
	}
	p.send("info string wrote %s", path)
}

func writeDiagram(path string, pos *board.Position) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	return diagram.WriteSVG(f, pos)
}
