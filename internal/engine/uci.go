package engine

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
)

// uciProcess drives a single UCI subprocess over stdin/stdout. It is not
// safe for concurrent use; the Gateway serializes access.
type uciProcess struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	scanner *bufio.Scanner
}

// startUCI spawns the analyzer binary. The configured path may carry
// extra arguments separated by whitespace.
func startUCI(path string) (*uciProcess, error) {
	parts := strings.Fields(path)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty analyzer path")
	}
	cmd := exec.Command(parts[0], parts[1:]...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("analyzer stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("analyzer stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start analyzer %q: %w", parts[0], err)
	}

	p := &uciProcess{
		cmd:     cmd,
		stdin:   stdin,
		scanner: bufio.NewScanner(stdout),
	}
	if err := p.initialize(); err != nil {
		p.kill()
		return nil, err
	}
	return p, nil
}

func (p *uciProcess) initialize() error {
	if err := p.send("uci"); err != nil {
		return err
	}
	if err := p.expect("uciok"); err != nil {
		return err
	}
	if err := p.send("isready"); err != nil {
		return err
	}
	return p.expect("readyok")
}

func (p *uciProcess) send(cmd string) error {
	if _, err := fmt.Fprintln(p.stdin, cmd); err != nil {
		return fmt.Errorf("write %q to analyzer: %w", cmd, err)
	}
	return nil
}

// expect scans until the given token line appears.
func (p *uciProcess) expect(token string) error {
	for p.scanner.Scan() {
		if strings.TrimSpace(p.scanner.Text()) == token {
			return nil
		}
	}
	if err := p.scanner.Err(); err != nil {
		return fmt.Errorf("read from analyzer: %w", err)
	}
	return fmt.Errorf("analyzer closed stream before %q", token)
}

func (p *uciProcess) setOption(name, value string) error {
	return p.send(fmt.Sprintf("setoption name %s value %s", name, value))
}

func (p *uciProcess) setPosition(fen string) error {
	if fen == "" {
		return p.send("position startpos")
	}
	return p.send(fmt.Sprintf("position fen %s", fen))
}

// pvInfo is the parsed tail of one "info ... multipv N ... pv ..." line.
type pvInfo struct {
	scoreCp   int
	scoreMate int
	hasMate   bool
	moves     []string
}

// searchResult is what a "go movetime" run produces.
type searchResult struct {
	bestMove string
	lines    map[int]pvInfo // keyed by multipv index (1-based)
}

// search issues "go movetime" and collects info lines until bestmove.
func (p *uciProcess) search(moveTimeMs int) (*searchResult, error) {
	if err := p.send(fmt.Sprintf("go movetime %d", moveTimeMs)); err != nil {
		return nil, err
	}

	result := &searchResult{lines: make(map[int]pvInfo)}
	for p.scanner.Scan() {
		line := strings.TrimSpace(p.scanner.Text())
		if strings.HasPrefix(line, "info ") {
			if idx, info, ok := parseInfoLine(line); ok {
				result.lines[idx] = info
			}
			continue
		}
		if strings.HasPrefix(line, "bestmove") {
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				result.bestMove = fields[1]
			}
			return result, nil
		}
	}
	if err := p.scanner.Err(); err != nil {
		return nil, fmt.Errorf("read search output: %w", err)
	}
	return nil, fmt.Errorf("analyzer closed stream during search")
}

func (p *uciProcess) kill() {
	_ = p.send("quit")
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	_ = p.cmd.Wait()
}

// parseInfoLine extracts (multipv index, score, pv) from one info line.
// Lines without a score are ignored.
func parseInfoLine(line string) (int, pvInfo, bool) {
	fields := strings.Fields(line)
	info := pvInfo{}
	idx := 1
	haveScore := false

	for i := 1; i < len(fields); i++ {
		switch fields[i] {
		case "multipv":
			if i+1 < len(fields) {
				if n, err := strconv.Atoi(fields[i+1]); err == nil {
					idx = n
				}
				i++
			}
		case "score":
			if i+2 < len(fields) {
				n, err := strconv.Atoi(fields[i+2])
				if err == nil {
					switch fields[i+1] {
					case "cp":
						info.scoreCp = n
						haveScore = true
					case "mate":
						info.scoreMate = n
						info.hasMate = true
						haveScore = true
					}
				}
				i += 2
			}
		case "pv":
			info.moves = append([]string(nil), fields[i+1:]...)
			i = len(fields)
		}
	}
	return idx, info, haveScore
}
