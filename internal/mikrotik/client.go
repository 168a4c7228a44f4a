package mikrotik

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"strings"
	"time"
)

// Client speaks the RouterOS binary API. It is not safe for
// concurrent use; callers own one client per connection.
type Client struct {
	Address  string
	Username string
	Password string
	conn     net.Conn
	timeout  time.Duration
}

// NewClient creates a RouterOS API client. Address is host:port
// (the API listens on 8728 by default).
func NewClient(address, username, password string) *Client {
	return &Client{
		Address:  address,
		Username: username,
		Password: password,
		timeout:  5 * time.Second,
	}
}

// Connect establishes the TCP connection and authenticates. RouterOS
// 6.43+ accepts the plain login; older firmware answers with an MD5
// challenge which we complete transparently.
func (c *Client) Connect() error {
	conn, err := net.DialTimeout("tcp", c.Address, c.timeout)
	if err != nil {
		return fmt.Errorf("cannot connect: %w", err)
	}
	c.conn = conn
	conn.SetDeadline(time.Now().Add(c.timeout))

	c.sendWord("/login")
	c.sendWord("=name=" + c.Username)
	c.sendWord("=password=" + c.Password)
	c.sendWord("")

	response, err := c.readResponse()
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	for _, word := range response {
		if word == "!done" {
			return nil
		}
		if strings.HasPrefix(word, "=ret=") {
			return c.challengeLogin(strings.TrimPrefix(word, "=ret="))
		}
		if strings.HasPrefix(word, "!trap") {
			return fmt.Errorf("authentication failed")
		}
	}
	return nil
}

// challengeLogin performs the pre-6.43 MD5 challenge-response login.
func (c *Client) challengeLogin(challenge string) error {
	challengeBytes, err := hex.DecodeString(challenge)
	if err != nil {
		return err
	}

	h := md5.New()
	h.Write([]byte{0})
	h.Write([]byte(c.Password))
	h.Write(challengeBytes)
	response := hex.EncodeToString(h.Sum(nil))

	c.sendWord("/login")
	c.sendWord("=name=" + c.Username)
	c.sendWord("=response=00" + response)
	c.sendWord("")

	resp, err := c.readResponse()
	if err != nil {
		return err
	}

	for _, word := range resp {
		if word == "!done" {
			return nil
		}
		if strings.HasPrefix(word, "!trap") {
			return fmt.Errorf("authentication failed")
		}
	}
	return nil
}

// Close closes the connection.
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}

// RunSentence sends one API sentence (command word plus attribute
// words) and returns the reply rows as attribute maps.
func (c *Client) RunSentence(words ...string) ([]map[string]string, error) {
	if len(words) == 0 {
		return nil, fmt.Errorf("empty sentence")
	}
	if c.conn == nil {
		if err := c.Connect(); err != nil {
			return nil, err
		}
	}
	c.conn.SetDeadline(time.Now().Add(c.timeout))

	for _, word := range words {
		if err := c.sendWord(word); err != nil {
			return nil, fmt.Errorf("failed to send word: %w", err)
		}
	}
	if err := c.sendWord(""); err != nil {
		return nil, fmt.Errorf("failed to send end: %w", err)
	}

	response, err := c.readResponse()
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return parseRows(response), trapError(response)
}

// RunCommand runs a single-word command, splitting on whitespace so
// callers can pass "/ppp/secret/add =name=x =profile=y" as one string.
func (c *Client) RunCommand(command string) ([]map[string]string, error) {
	return c.RunSentence(strings.Fields(command)...)
}

// ActiveSession is one row from /ppp/active (or /ip/hotspot/active).
type ActiveSession struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Service   string `json:"service"`
	CallerID  string `json:"caller_id"`
	Address   string `json:"address"`
	Uptime    string `json:"uptime"`
	SessionID string `json:"session_id"`
}

// GetActiveSession looks up the active PPP session for a username.
func (c *Client) GetActiveSession(username string) (*ActiveSession, error) {
	rows, err := c.RunSentence("/ppp/active/print", "?name="+username)
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	for _, row := range rows {
		if row[".id"] == "" {
			continue
		}
		return &ActiveSession{
			ID:        row[".id"],
			Name:      row["name"],
			Service:   row["service"],
			CallerID:  row["caller-id"],
			Address:   row["address"],
			Uptime:    row["uptime"],
			SessionID: row["session-id"],
		}, nil
	}
	return nil, fmt.Errorf("user not connected")
}

// DisconnectUser removes the active PPP session for a username.
func (c *Client) DisconnectUser(username string) error {
	session, err := c.GetActiveSession(username)
	if err != nil {
		return err
	}
	if _, err := c.RunSentence("/ppp/active/remove", "=.id="+session.ID); err != nil {
		return fmt.Errorf("failed to disconnect: %w", err)
	}
	return nil
}

// parseRows turns raw reply words into attribute maps, one per !re.
func parseRows(response []string) []map[string]string {
	var results []map[string]string
	current := make(map[string]string)

	for _, word := range response {
		switch {
		case word == "!re":
			if len(current) > 0 {
				results = append(results, current)
				current = make(map[string]string)
			}
		case strings.HasPrefix(word, "="):
			parts := strings.SplitN(word[1:], "=", 2)
			if len(parts) == 2 {
				current[parts[0]] = parts[1]
			} else if len(parts) == 1 {
				current[parts[0]] = ""
			}
		case word == "!done":
			if len(current) > 0 {
				results = append(results, current)
				current = make(map[string]string)
			}
		}
	}
	return results
}

// trapError extracts the error message from a !trap reply, if any.
func trapError(response []string) error {
	trapped := false
	for _, word := range response {
		if strings.HasPrefix(word, "!trap") {
			trapped = true
		}
	}
	if !trapped {
		return nil
	}
	for _, word := range response {
		if strings.HasPrefix(word, "=message=") {
			return fmt.Errorf("routeros: %s", strings.TrimPrefix(word, "=message="))
		}
	}
	return fmt.Errorf("routeros: command failed")
}

// sendWord writes one length-prefixed API word.
func (c *Client) sendWord(word string) error {
	length := len(word)
	var lenBytes []byte

	if length < 0x80 {
		lenBytes = []byte{byte(length)}
	} else if length < 0x4000 {
		lenBytes = []byte{byte((length >> 8) | 0x80), byte(length)}
	} else if length < 0x200000 {
		lenBytes = []byte{byte((length >> 16) | 0xC0), byte(length >> 8), byte(length)}
	} else if length < 0x10000000 {
		lenBytes = []byte{byte((length >> 24) | 0xE0), byte(length >> 16), byte(length >> 8), byte(length)}
	} else {
		lenBytes = []byte{0xF0, byte(length >> 24), byte(length >> 16), byte(length >> 8), byte(length)}
	}

	if _, err := c.conn.Write(lenBytes); err != nil {
		return err
	}
	if len(word) > 0 {
		if _, err := c.conn.Write([]byte(word)); err != nil {
			return err
		}
	}
	return nil
}

// readResponse reads words until the terminating !done sentence.
func (c *Client) readResponse() ([]string, error) {
	var words []string
	gotDone := false

	for {
		word, err := c.readWord()
		if err != nil {
			if err == io.EOF {
				break
			}
			return words, err
		}

		// An empty word ends the current sentence; the response is
		// complete only once a !done sentence has closed.
		if word == "" {
			if gotDone {
				break
			}
			continue
		}

		words = append(words, word)
		if word == "!done" {
			gotDone = true
		}
	}
	return words, nil
}

func (c *Client) readWord() (string, error) {
	length, err := c.readLength()
	if err != nil {
		return "", err
	}
	if length == 0 {
		return "", nil
	}
	word := make([]byte, length)
	if _, err := io.ReadFull(c.conn, word); err != nil {
		return "", err
	}
	return string(word), nil
}

func (c *Client) readLength() (int, error) {
	b := make([]byte, 1)
	if _, err := c.conn.Read(b); err != nil {
		return 0, err
	}

	first := b[0]

	if first < 0x80 {
		return int(first), nil
	} else if first < 0xC0 {
		if _, err := c.conn.Read(b); err != nil {
			return 0, err
		}
		return int(first&0x3F)<<8 | int(b[0]), nil
	} else if first < 0xE0 {
		extra := make([]byte, 2)
		if _, err := io.ReadFull(c.conn, extra); err != nil {
			return 0, err
		}
		return int(first&0x1F)<<16 | int(extra[0])<<8 | int(extra[1]), nil
	} else if first < 0xF0 {
		extra := make([]byte, 3)
		if _, err := io.ReadFull(c.conn, extra); err != nil {
			return 0, err
		}
		return int(first&0x0F)<<24 | int(extra[0])<<16 | int(extra[1])<<8 | int(extra[2]), nil
	}
	extra := make([]byte, 4)
	if _, err := io.ReadFull(c.conn, extra); err != nil {
		return 0, err
	}
	return int(extra[0])<<24 | int(extra[1])<<16 | int(extra[2])<<8 | int(extra[3]), nil
}
