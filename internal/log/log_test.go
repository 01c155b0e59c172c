package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/op/go-logging.v1"
)

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("notice")
	require.NoError(t, err)
	assert.Equal(t, logging.NOTICE, lvl)

	_, err = ParseLevel("chatty")
	assert.Error(t, err)
}

func TestBackend_WritesToFileAtLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.log")
	b, err := New(path, "NOTICE", false)
	require.NoError(t, err)

	l := b.GetLogger("test")
	l.Debug("hidden")
	l.Notice("relay started")
	require.NoError(t, b.Rotate())
	l.Warning("after rotate")
	require.NoError(t, b.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(raw)
	assert.True(t, strings.Contains(out, "test: relay started"), out)
	assert.True(t, strings.Contains(out, "after rotate"), out)
	assert.False(t, strings.Contains(out, "hidden"), out)
}
