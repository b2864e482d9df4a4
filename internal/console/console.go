// Package console is the terminal front end of the exam client.
package console

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Console reads commands line by line and serializes output.
// It satisfies session.Notifier and session.Confirmer.
type Console struct {
	in  *bufio.Reader
	fd  int
	tty bool

	mu  sync.Mutex
	out io.Writer
}

// New wraps in and out. When in is a terminal, secrets are read without echo.
func New(in io.Reader, out io.Writer) *Console {
	c := &Console{in: bufio.NewReader(in), out: out, fd: -1}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		c.fd = int(f.Fd())
		c.tty = true
	}
	return c
}

// Print writes a block of text
func (c *Console) Print(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	io.WriteString(c.out, s)
}

// Printf writes formatted text
func (c *Console) Printf(format string, args ...any) {
	c.Print(fmt.Sprintf(format, args...))
}

// ReadLine returns the next input line without its line ending
func (c *Console) ReadLine() (string, error) {
	line, err := c.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// ReadSecret prompts and reads a line without echo when attached to a terminal
func (c *Console) ReadSecret(prompt string) (string, error) {
	c.Print(prompt)
	if !c.tty {
		return c.ReadLine()
	}
	b, err := term.ReadPassword(c.fd)
	c.Print("\n")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Alert shows a message the user has to notice
func (c *Console) Alert(msg string) {
	c.Printf("\n⚠️  %s\n", msg)
}

// Confirm asks a yes/no question; anything but yes declines
func (c *Console) Confirm(msg string) bool {
	c.Printf("\n%s [y/N] ", msg)
	line, err := c.ReadLine()
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes", "კი", "დიახ":
		return true
	}
	return false
}
