package export

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hb9tf/nrfscan/scanner"
)

func TestCSVWrite(t *testing.T) {
	t.Parallel()
	records := make(chan scanner.Record, 2)
	records <- scanner.Record{Identifier: "id1", Source: "nrf24", TimeMillis: 100, Channels: []int{1, 2, 3}}
	records <- scanner.Record{Identifier: "id1", Source: "nrf24", TimeMillis: 200, Channels: []int{4, 5, 6}}
	close(records)

	var buf bytes.Buffer
	c := &CSV{Out: &buf}
	require.NoError(t, c.Write(context.Background(), records))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Source,Identifier,timestamp,Ch1,Ch2,Ch3", lines[0])
	assert.Equal(t, "nrf24,id1,100,1,2,3", lines[1])
	assert.Equal(t, "nrf24,id1,200,4,5,6", lines[2])
}

func TestCSVWriteNothing(t *testing.T) {
	t.Parallel()
	records := make(chan scanner.Record)
	close(records)

	var buf bytes.Buffer
	c := &CSV{Out: &buf}
	require.NoError(t, c.Write(context.Background(), records))
	assert.Empty(t, buf.String(), "no header without a first record")
}
