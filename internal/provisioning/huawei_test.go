package provisioning

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadNetconfMessage(t *testing.T) {
	raw := "<rpc-reply message-id=\"1\"><ok/></rpc-reply>\n]]>]]>\nmore data"
	reader := bufio.NewReader(strings.NewReader(raw))

	msg, err := readNetconfMessage(reader)
	require.NoError(t, err)
	assert.Equal(t, `<rpc-reply message-id="1"><ok/></rpc-reply>`, msg)
}

func TestReadNetconfMessageTruncated(t *testing.T) {
	reader := bufio.NewReader(strings.NewReader("<rpc-reply>incomplete"))

	_, err := readNetconfMessage(reader)
	assert.Error(t, err)
}

func TestReadNetconfMessageBackToBack(t *testing.T) {
	raw := "<hello/>]]>]]><rpc-reply/>]]>]]>"
	reader := bufio.NewReader(strings.NewReader(raw))

	first, err := readNetconfMessage(reader)
	require.NoError(t, err)
	assert.Equal(t, "<hello/>", first)

	second, err := readNetconfMessage(reader)
	require.NoError(t, err)
	assert.Equal(t, "<rpc-reply/>", second)
}

func TestErrorTag(t *testing.T) {
	reply := `<rpc-reply><rpc-error>
		<error-type>application</error-type>
		<error-message xml:lang="en"> ONT already bound </error-message>
	</rpc-error></rpc-reply>`

	assert.Equal(t, "ONT already bound", errorTag(reply))
	assert.Equal(t, "unspecified error", errorTag("<rpc-reply><rpc-error/></rpc-reply>"))
	assert.Equal(t, "unspecified error", errorTag("<error-message unterminated"))
}
