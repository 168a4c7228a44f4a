package mikrotik

import (
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRows(t *testing.T) {
	response := []string{
		"!re", "=.id=*1A", "=name=alice", "=address=100.64.0.7",
		"!re", "=.id=*1B", "=name=bob",
		"!done",
	}

	rows := parseRows(response)
	require.Len(t, rows, 2)
	assert.Equal(t, "*1A", rows[0][".id"])
	assert.Equal(t, "alice", rows[0]["name"])
	assert.Equal(t, "100.64.0.7", rows[0]["address"])
	assert.Equal(t, "bob", rows[1]["name"])
}

func TestParseRowsEmptyResponse(t *testing.T) {
	assert.Empty(t, parseRows([]string{"!done"}))
}

func TestParseRowsValuelessAttribute(t *testing.T) {
	rows := parseRows([]string{"!re", "=comment", "!done"})
	require.Len(t, rows, 1)
	assert.Equal(t, "", rows[0]["comment"])
}

func TestTrapError(t *testing.T) {
	err := trapError([]string{"!trap", "=message=no such item", "!done"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such item")

	err = trapError([]string{"!trap", "!done"})
	require.Error(t, err)

	assert.NoError(t, trapError([]string{"!re", "=name=alice", "!done"}))
}

func TestWordCodecRoundTrip(t *testing.T) {
	left, right := net.Pipe()
	defer left.Close()
	defer right.Close()

	sender := &Client{conn: left}
	receiver := &Client{conn: right}

	words := []string{
		"/ppp/active/print",
		"?name=alice",
		strings.Repeat("x", 0x90),   // two-byte length prefix
		strings.Repeat("y", 0x4100), // three-byte length prefix
	}

	go func() {
		for _, w := range words {
			sender.sendWord(w)
		}
	}()

	for _, want := range words {
		got, err := receiver.readWord()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestReadResponseStopsAtDone(t *testing.T) {
	left, right := net.Pipe()
	defer left.Close()
	defer right.Close()

	sender := &Client{conn: left}
	receiver := &Client{conn: right}

	go func() {
		for _, w := range []string{"!re", "=name=alice", "", "!done", ""} {
			sender.sendWord(w)
		}
	}()

	words, err := receiver.readResponse()
	require.NoError(t, err)
	assert.Equal(t, []string{"!re", "=name=alice", "!done"}, words)
}
