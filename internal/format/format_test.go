package format

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string   `json:"name" yaml:"name"`
	Blobs []string `json:"blobs" yaml:"blobs"`
}

func TestFormatters(t *testing.T) {
	payload := sample{Name: "ctx7", Blobs: []string{"B"}}

	var buf bytes.Buffer
	require.NoError(t, JSONFormatter{}.Write(&buf, payload))
	assert.Equal(t, "{\"name\":\"ctx7\",\"blobs\":[\"B\"]}\n", buf.String())

	buf.Reset()
	require.NoError(t, YAMLFormatter{}.Write(&buf, payload))
	assert.Equal(t, "name: ctx7\nblobs:\n  - B\n", buf.String())
}

func TestNew(t *testing.T) {
	f, err := New("yaml")
	require.NoError(t, err)
	assert.IsType(t, YAMLFormatter{}, f)

	_, err = New("xml")
	require.Error(t, err)
}
