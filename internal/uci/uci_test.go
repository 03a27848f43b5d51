package uci

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hailam/trout/internal/board"
	"github.com/hailam/trout/internal/config"
	"github.com/hailam/trout/internal/engine"
	"github.com/hailam/trout/internal/storage"
)

const afterE4 = "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1"

func testConfig() *config.Config {
	return &config.Config{
		HashMB:            1,
		MultiPV:           1,
		LogLevel:          zerolog.Disabled,
		InfoInterval:      time.Hour,
		NodeCheckInterval: 1000,
	}
}

func newTestProtocol(t *testing.T) (*Protocol, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	p, err := New(&out, testConfig())
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p, &out
}

// run feeds the commands to p and returns the output lines. Run returns
// only after every search it started has finished.
func run(t *testing.T, p *Protocol, out *bytes.Buffer, commands ...string) []string {
	t.Helper()
	out.Reset()
	input := strings.Join(commands, "\n") + "\n"
	require.NoError(t, p.Run(context.Background(), strings.NewReader(input)))
	return strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
}

func indexOf(lines []string, prefix string) int {
	for i, l := range lines {
		if strings.HasPrefix(l, prefix) {
			return i
		}
	}
	return -1
}

func countPrefix(lines []string, prefix string) int {
	n := 0
	for _, l := range lines {
		if strings.HasPrefix(l, prefix) {
			n++
		}
	}
	return n
}

// bestMove returns the move of the last bestmove line.
func bestMove(t *testing.T, lines []string) string {
	t.Helper()
	for i := len(lines) - 1; i >= 0; i-- {
		if f := strings.Fields(lines[i]); len(f) >= 2 && f[0] == "bestmove" {
			return f[1]
		}
	}
	t.Fatalf("no bestmove in output:\n%s", strings.Join(lines, "\n"))
	return ""
}

func TestHandshake(t *testing.T) {
	is := is.New(t)
	p, out := newTestProtocol(t)
	lines := run(t, p, out, "uci", "isready")

	is.Equal(lines[0], "id name Trout")
	is.True(indexOf(lines, "option name Hash type spin default 1 min 1") >= 0)
	is.True(indexOf(lines, "option name MultiPV") >= 0)
	is.True(indexOf(lines, "option name Clear Hash type button") >= 0)
	is.Equal(lines[len(lines)-2], "uciok")
	is.Equal(lines[len(lines)-1], "readyok")
}

func TestGoDepth(t *testing.T) {
	p, out := newTestProtocol(t)
	lines := run(t, p, out, "position startpos moves e2e4", "go depth 3")

	for d := 1; d <= 3; d++ {
		assert.GreaterOrEqual(t, indexOf(lines, fmt.Sprintf("info depth %d ", d)), 0)
	}
	assert.Equal(t, 1, countPrefix(lines, "bestmove"))
	assert.Contains(t, lines[indexOf(lines, "info depth 3")], " score cp ")

	b := board.New()
	require.NoError(t, b.SetPosition(board.StartFEN, "e2e4"))
	_, err := b.ParseMove(bestMove(t, lines))
	assert.NoError(t, err, "bestmove must be legal for Black after 1.e4")
}

func TestBestMoveCarriesPonder(t *testing.T) {
	p, out := newTestProtocol(t)
	lines := run(t, p, out, "position startpos", "go depth 2")
	f := strings.Fields(lines[len(lines)-1])
	require.Len(t, f, 4)
	assert.Equal(t, "ponder", f[2])
}

func TestMatedPositionAnswersNullMove(t *testing.T) {
	p, out := newTestProtocol(t)
	lines := run(t, p, out, "position startpos moves f2f3 e7e5 g2g4 d8h4", "go depth 3")
	assert.Equal(t, "bestmove 0000", lines[len(lines)-1])
}

func TestMateIsReportedInMoves(t *testing.T) {
	p, out := newTestProtocol(t)
	lines := run(t, p, out, "position fen 6k1/5ppp/8/8/8/8/5PPP/R5K1 w - - 0 1", "go depth 3")
	assert.Equal(t, "a1a8", bestMove(t, lines))
	// A proven mate ends the deepening early.
	assert.Equal(t, -1, indexOf(lines, "info depth 3 "))
	i := indexOf(lines, "info depth 1 ")
	require.GreaterOrEqual(t, i, 0)
	assert.Contains(t, lines[i], " score mate 1 ")
}

func TestStopEndsInfiniteSearch(t *testing.T) {
	p, out := newTestProtocol(t)
	lines := run(t, p, out, "position startpos", "go infinite", "isready", "stop", "isready")

	ready := indexOf(lines, "readyok")
	best := indexOf(lines, "bestmove")
	require.GreaterOrEqual(t, ready, 0)
	require.GreaterOrEqual(t, best, 0)
	assert.Less(t, ready, best, "isready is answered while searching")
	assert.Equal(t, 2, countPrefix(lines, "readyok"))
	assert.Equal(t, 1, countPrefix(lines, "bestmove"))
}

func TestQuitStopsSearch(t *testing.T) {
	p, out := newTestProtocol(t)
	lines := run(t, p, out, "go infinite", "quit", "isready")
	assert.Equal(t, 1, countPrefix(lines, "bestmove"))
	assert.Equal(t, -1, indexOf(lines, "readyok"), "nothing is handled after quit")
}

func TestCommandsWaitForSearch(t *testing.T) {
	p, out := newTestProtocol(t)
	lines := run(t, p, out, "position startpos", "go depth 3", "position startpos moves d2d4", "d")

	best := indexOf(lines, "bestmove")
	fen := indexOf(lines, "Fen: ")
	require.GreaterOrEqual(t, best, 0)
	assert.Greater(t, fen, best)
	assert.Equal(t, "Fen: rnbqkbnr/pppppppp/8/8/3P4/8/PPP1PPPP/RNBQKBNR b KQkq - 0 1", lines[fen])
}

func TestInvalidPositionKeepsPrevious(t *testing.T) {
	p, out := newTestProtocol(t)
	lines := run(t, p, out,
		"position startpos moves e2e4",
		"position startpos moves e2e5",
		"position fen not/a/fen w - - 0 1",
		"d")

	assert.Equal(t, 2, countPrefix(lines, "info string invalid position"))
	assert.GreaterOrEqual(t, indexOf(lines, "Fen: "+afterE4), 0)
}

func TestParseGoOptions(t *testing.T) {
	limits, err := parseGoOptions(strings.Fields("wtime 60000 btime 30000 winc 1000 binc 500 movestogo 20 depth 7 nodes 9000"))
	require.NoError(t, err)
	assert.Equal(t, engine.Limits{
		Depth:     7,
		Nodes:     9000,
		Time:      [2]time.Duration{time.Minute, 30 * time.Second},
		Inc:       [2]time.Duration{time.Second, 500 * time.Millisecond},
		MovesToGo: 20,
	}, limits)

	limits, err = parseGoOptions([]string{"infinite", "movetime", "250"})
	require.NoError(t, err)
	assert.True(t, limits.Infinite)
	assert.Equal(t, 250*time.Millisecond, limits.MoveTime)

	limits, err = parseGoOptions([]string{"wtime", "-20"})
	require.NoError(t, err)
	assert.Zero(t, limits.Time[board.White])

	_, err = parseGoOptions([]string{"depth"})
	assert.Error(t, err)
	_, err = parseGoOptions([]string{"nodes", "many"})
	assert.Error(t, err)
}

func TestSetOption(t *testing.T) {
	p, out := newTestProtocol(t)

	lines := run(t, p, out,
		"setoption name Hash value 2",
		"setoption name MultiPV value 3",
		"setoption name Hash value 0",
		"setoption name MultiPV value 100",
		"setoption name Clear Hash")
	assert.Equal(t, 2, p.hashMB)
	assert.Equal(t, uint64(2<<20/engine.EntrySize), p.search.Cache().Capacity())
	assert.Equal(t, 3, p.multiPV)
	assert.Equal(t, 2, countPrefix(lines, "info string"), "out of range values are rejected")

	name, value := parseSetOption(strings.Fields("name Analysis Path value /tmp/some dir"))
	assert.Equal(t, "Analysis Path", name)
	assert.Equal(t, "/tmp/some dir", value)
}

func TestMultiPVOutput(t *testing.T) {
	p, out := newTestProtocol(t)
	lines := run(t, p, out, "setoption name MultiPV value 3", "position startpos", "go depth 2")

	var atDepth2 []string
	for _, l := range lines {
		if strings.HasPrefix(l, "info depth 2 ") {
			atDepth2 = append(atDepth2, l)
		}
	}
	require.Len(t, atDepth2, 3)
	for i, l := range atDepth2 {
		assert.Contains(t, l, fmt.Sprintf(" multipv %d ", i+1))
	}
}

func TestShowWDL(t *testing.T) {
	p, out := newTestProtocol(t)
	lines := run(t, p, out, "uci", "position startpos", "go depth 2")
	assert.GreaterOrEqual(t, indexOf(lines, "option name UCI_ShowWDL type check default false"), 0)
	assert.NotContains(t, lines[indexOf(lines, "info depth 2 ")], " wdl ")

	lines = run(t, p, out, "setoption name UCI_ShowWDL value true", "go depth 2")
	wdl := regexp.MustCompile(` score cp -?\d+ wdl (\d+) (\d+) (\d+) `)
	m := wdl.FindStringSubmatch(lines[indexOf(lines, "info depth 2 ")])
	require.Len(t, m, 4)
	sum := 0
	for _, v := range m[1:] {
		n, err := strconv.Atoi(v)
		require.NoError(t, err)
		sum += n
	}
	assert.Equal(t, 1000, sum)

	lines = run(t, p, out, "setoption name UCI_ShowWDL value maybe")
	assert.Equal(t, "info string UCI_ShowWDL must be true or false", lines[0])
	assert.True(t, p.showWDL)
}

func TestAnalysisStoreIsUsed(t *testing.T) {
	p, out := newTestProtocol(t)
	run(t, p, out,
		"setoption name AnalysisPath value "+storage.MemoryDir,
		"position startpos moves e2e4",
		"go depth 2",
		"position startpos moves d2d4",
		"go depth 2")

	require.NotNil(t, p.store)
	n, err := p.store.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	a, found, err := p.store.LoadAnalysis(afterE4)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 2, a.Depth)
	assert.NotEmpty(t, a.PV)
	assert.Equal(t, a.BestMove, a.PV[0])

	// A later search of the same position starts from the stored move.
	lines := run(t, p, out, "position startpos moves e2e4", "go depth 1")
	assert.NotEmpty(t, bestMove(t, lines))

	run(t, p, out, "setoption name AnalysisPath value <empty>")
	assert.Nil(t, p.store)
}

func TestDebugCommands(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.GlobalLevel())
	p, out := newTestProtocol(t)
	svg := filepath.Join(t.TempDir(), "board.svg")

	lines := run(t, p, out, "debug on", "perft 2", "eval", "svg "+svg, "debug off")

	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
	divide := regexp.MustCompile(`^[a-h][1-8][a-h][1-8]: 20$`)
	n := 0
	for _, l := range lines {
		if divide.MatchString(l) {
			n++
		}
	}
	assert.Equal(t, 20, n, "one divide line per root move")
	assert.GreaterOrEqual(t, indexOf(lines, "Nodes: 400"), 0)
	assert.GreaterOrEqual(t, indexOf(lines, "Evaluation: cp "), 0)
	assert.GreaterOrEqual(t, indexOf(lines, "info string wrote "+svg), 0)

	data, err := os.ReadFile(svg)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<svg")
}

func TestContextCancelEndsRun(t *testing.T) {
	p, _ := newTestProtocol(t)
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, pr) }()

	_, err := pw.Write([]byte("go infinite\n"))
	require.NoError(t, err)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
