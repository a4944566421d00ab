package iocli

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Проверяем что NewStdio возвращает валидный объект
func TestNewStdio(t *testing.T) {
	stdio := NewStdio()
	assert.NotNil(t, stdio)
}

func TestPrintlnAndPrintf(t *testing.T) {
	var out bytes.Buffer
	stdio := New(strings.NewReader(""), &out)

	stdio.Println("hello", "world")
	stdio.Printf("test %d %s", 1, "abc")
	_, err := stdio.Write([]byte("!"))
	require.NoError(t, err)

	assert.Equal(t, "hello world\ntest 1 abc!", out.String())
}

func TestReadInput(t *testing.T) {
	var out bytes.Buffer
	stdio := New(strings.NewReader("user input\nsecond\n"), &out)

	got, err := stdio.ReadInput("Enter: ")
	require.NoError(t, err)
	assert.Equal(t, "user input", got)
	assert.Equal(t, "Enter: ", out.String())

	// буфер чтения сохраняется между вызовами
	got, err = stdio.ReadInput("")
	require.NoError(t, err)
	assert.Equal(t, "second", got)
}

func TestReadInput_LastLineWithoutNewline(t *testing.T) {
	stdio := New(strings.NewReader("tail"), io.Discard)

	got, err := stdio.ReadInput("")
	require.NoError(t, err)
	assert.Equal(t, "tail", got)

	_, err = stdio.ReadInput("")
	assert.ErrorIs(t, err, io.EOF)
}

// Вход не терминал: пароль читается как обычная строка
func TestReadPassword_NotTerminal(t *testing.T) {
	var out bytes.Buffer
	stdio := New(strings.NewReader("  s3cret \n"), &out)

	got, err := stdio.ReadPassword("API key: ")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got)
	assert.Equal(t, "API key: ", out.String())
}
