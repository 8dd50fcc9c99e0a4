package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/roman-kulish/radio-telescope/internal/queue"
)

const promptText = "  [Enter]=run  s=skip  q=quit: "

// Prompt asks the operator to confirm every queue item on a terminal. Any
// answer other than "s" or "q" runs the item; end of input quits the queue.
type Prompt struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPrompt creates a new Prompt reading answers from in
func NewPrompt(in io.Reader, out io.Writer) *Prompt {
	return &Prompt{in: bufio.NewReader(in), out: out}
}

func (p *Prompt) Decide(ctx context.Context, _ queue.Item) (queue.Decision, error) {
	if err := ctx.Err(); err != nil {
		return queue.Quit, err
	}

	if _, err := fmt.Fprint(p.out, promptText); err != nil {
		return queue.Quit, fmt.Errorf("writing prompt: %w", err)
	}

	line, err := p.readLine(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return queue.Quit, err
		}
		if !errors.Is(err, io.EOF) {
			return queue.Quit, fmt.Errorf("reading answer: %w", err)
		}
		if line == "" {
			_, _ = fmt.Fprintln(p.out)
			return queue.Quit, nil
		}
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "q":
		return queue.Quit, nil
	case "s":
		return queue.Skip, nil
	}
	return queue.Accept, nil
}

type answer struct {
	line string
	err  error
}

// readLine waits for one line of input or for ctx to be cancelled. A
// cancelled read leaves its goroutine blocked until input arrives.
func (p *Prompt) readLine(ctx context.Context) (string, error) {
	ch := make(chan answer, 1)
	go func() {
		line, err := p.in.ReadString('\n')
		ch <- answer{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case a := <-ch:
		return a.line, a.err
	}
}
