package iocli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Stdio реализация IO поверх произвольных потоков.
// Если вход является терминалом, пароль читается без эха
type Stdio struct {
	in     *bufio.Reader
	out    io.Writer
	termFD int // -1, если вход не терминал
}

// NewStdio использует os.Stdin и os.Stdout
func NewStdio() IO {
	return New(os.Stdin, os.Stdout)
}

// New создает IO на потоках in и out
func New(in io.Reader, out io.Writer) IO {
	fd := -1
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd = int(f.Fd())
	}
	return &Stdio{in: bufio.NewReader(in), out: out, termFD: fd}
}

func (s *Stdio) Println(a ...any) {
	_, _ = fmt.Fprintln(s.out, a...)
}

func (s *Stdio) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(s.out, format, a...)
}

func (s *Stdio) Write(p []byte) (int, error) {
	return s.out.Write(p)
}

func (s *Stdio) ReadInput(prompt string) (string, error) {
	s.Printf("%s", prompt)
	input, err := s.in.ReadString('\n')
	if err != nil && (err != io.EOF || input == "") {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

func (s *Stdio) ReadPassword(prompt string) (string, error) {
	if s.termFD < 0 {
		return s.ReadInput(prompt)
	}

	s.Printf("%s", prompt)
	pwBytes, err := term.ReadPassword(s.termFD)
	s.Println("")
	if err != nil {
		return "", err
	}
	return string(pwBytes), nil
}
