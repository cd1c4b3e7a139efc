// ABOUTME: Terminal prompts for plain and secret input
// ABOUTME: Passwords are read without echo when stdin is a terminal

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

type prompter struct {
	in    *bufio.Reader
	out   io.Writer
	fd    int
	isTTY bool
}

func newPrompter() *prompter {
	fd := int(os.Stdin.Fd())
	return &prompter{
		in:    bufio.NewReader(os.Stdin),
		out:   os.Stdout,
		fd:    fd,
		isTTY: term.IsTerminal(fd),
	}
}

// Line prints label and reads one trimmed line.
func (p *prompter) Line(label string) (string, error) {
	fmt.Fprint(p.out, label)
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("reading %s: %w", strings.TrimSuffix(strings.ToLower(label), ": "), err)
	}
	return strings.TrimSpace(line), nil
}

// Secret prints label and reads a line without echo on terminals.
func (p *prompter) Secret(label string) (string, error) {
	if !p.isTTY {
		return p.Line(label)
	}
	fmt.Fprint(p.out, label)
	data, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(data), nil
}

// lineReader delivers stdin lines on a channel so reads can race a context.
type lineReader struct {
	lines chan string
	errs  chan error
}

func newLineReader(r io.Reader) *lineReader {
	lr := &lineReader{lines: make(chan string), errs: make(chan error, 1)}
	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lr.lines <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			lr.errs <- err
			return
		}
		lr.errs <- io.EOF
	}()
	return lr
}

// Next returns the next line, io.EOF at end of input, or ctx.Err().
func (lr *lineReader) Next(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case err := <-lr.errs:
		return "", err
	case line := <-lr.lines:
		return line, nil
	}
}
