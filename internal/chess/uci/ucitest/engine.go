// Package ucitest provides a scripted in-process UCI engine for tests.
package ucitest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/TBarmak/Chess-Twitter-Bot/internal/chess/uci"
)

// Engine answers the UCI handshake and replies to "go" with Reply(moves).
// When Silent is set it never answers "go", which lets callers exercise timeouts.
type Engine struct {
	Reply  func(moves []string) string
	Silent bool

	mu        sync.Mutex
	positions []string
	starts    int
}

// Start connects a new uci.Session to a fresh serving goroutine.
func (e *Engine) Start(ctx context.Context) (*uci.Session, error) {
	toEngine, fromClient := io.Pipe()
	fromEngine, toClient := io.Pipe()
	go e.serve(toEngine, toClient)

	e.mu.Lock()
	e.starts++
	e.mu.Unlock()

	return uci.NewSessionFromPipes(ctx, fromClient, fromEngine, uci.Options{Threads: 1, HashMB: 16})
}

// Positions returns every "position" command received, in order.
func (e *Engine) Positions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.positions...)
}

// Starts counts how many sessions were launched.
func (e *Engine) Starts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.starts
}

func (e *Engine) serve(r io.Reader, w io.WriteCloser) {
	defer w.Close()
	var moves []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "uci":
			fmt.Fprintln(w, "id name ucitest")
			fmt.Fprintln(w, "uciok")
		case "isready":
			fmt.Fprintln(w, "readyok")
		case "position":
			e.mu.Lock()
			e.positions = append(e.positions, line)
			e.mu.Unlock()
			moves = nil
			for i, f := range fields {
				if f == "moves" {
					moves = append(moves, fields[i+1:]...)
					break
				}
			}
		case "go":
			if e.Silent {
				continue
			}
			best := "(none)"
			if e.Reply != nil {
				best = e.Reply(moves)
			}
			fmt.Fprintf(w, "info depth 1 score cp 17 pv %s\n", best)
			fmt.Fprintf(w, "bestmove %s\n", best)
		case "quit":
			return
		}
	}
}
