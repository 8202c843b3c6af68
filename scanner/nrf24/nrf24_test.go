package nrf24

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hb9tf/nrfscan/scanner"
)

// fakePort scripts the byte stream of a scanner device. Once the
// scripted chunks are drained, reads behave like timed out serial
// reads (or fail with readErr when set).
type fakePort struct {
	mu      sync.Mutex
	chunks  [][]byte
	readErr error
	closed  bool
	writes  []string
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, errors.New("port closed")
	}
	if len(p.chunks) == 0 {
		err := p.readErr
		p.mu.Unlock()
		if err != nil {
			return 0, err
		}
		time.Sleep(time.Millisecond) // pretend the read timed out
		return 0, nil
	}
	c := p.chunks[0]
	p.chunks = p.chunks[1:]
	p.mu.Unlock()
	return copy(b, c), nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writes = append(p.writes, string(b))
	return len(b), nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePort) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePort) written() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.writes...)
}

func nextRecord(t *testing.T, records <-chan scanner.Record) scanner.Record {
	t.Helper()
	select {
	case r, ok := <-records:
		require.True(t, ok, "record channel closed early")
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a record")
		return scanner.Record{}
	}
}

func TestSweepScenario(t *testing.T) {
	t.Parallel()
	port := &fakePort{chunks: [][]byte{
		[]byte("100,1,2,3\n"),
		[]byte("\n"),
		[]byte("bad,x,y\n"),
		[]byte("200,4,5,6\n"),
	}}
	sdr := &SDR{Identifier: "test", Conn: port}
	records := make(chan scanner.Record)
	require.NoError(t, sdr.Start(&scanner.Options{}, records))

	r1 := nextRecord(t, records)
	assert.Equal(t, "test", r1.Identifier)
	assert.Equal(t, SourceName, r1.Source)
	assert.Equal(t, int64(100), r1.TimeMillis)
	assert.Equal(t, []int{1, 2, 3}, r1.Channels)

	r2 := nextRecord(t, records)
	assert.Equal(t, int64(200), r2.TimeMillis)
	assert.Equal(t, []int{4, 5, 6}, r2.Channels)

	require.NoError(t, sdr.Stop())
	_, ok := <-records
	assert.False(t, ok, "record channel should be closed after stop")
	assert.True(t, port.isClosed(), "port should be closed after stop")
}

func TestSweepWidthMismatch(t *testing.T) {
	t.Parallel()
	port := &fakePort{chunks: [][]byte{
		[]byte("100,1,2,3\n"),
		[]byte("150,7,8\n"),
		[]byte("200,4,5,6\n"),
	}}
	sdr := &SDR{Identifier: "test", Conn: port}
	records := make(chan scanner.Record)
	require.NoError(t, sdr.Start(&scanner.Options{}, records))

	assert.Equal(t, int64(100), nextRecord(t, records).TimeMillis)
	assert.Equal(t, int64(200), nextRecord(t, records).TimeMillis)
	require.NoError(t, sdr.Stop())
}

func TestSweepSplitAcrossReads(t *testing.T) {
	t.Parallel()
	port := &fakePort{chunks: [][]byte{
		[]byte("100,1"),
		[]byte(",2,3\n2"),
		[]byte("00,4,5,6\r\n"),
	}}
	sdr := &SDR{Identifier: "test", Conn: port}
	records := make(chan scanner.Record)
	require.NoError(t, sdr.Start(&scanner.Options{}, records))

	assert.Equal(t, []int{1, 2, 3}, nextRecord(t, records).Channels)
	assert.Equal(t, []int{4, 5, 6}, nextRecord(t, records).Channels)
	require.NoError(t, sdr.Stop())
}

func TestSweepStopWithoutData(t *testing.T) {
	t.Parallel()
	port := &fakePort{}
	sdr := &SDR{Identifier: "test", Conn: port}
	records := make(chan scanner.Record)
	require.NoError(t, sdr.Start(&scanner.Options{}, records))

	require.NoError(t, sdr.Stop())
	_, ok := <-records
	assert.False(t, ok, "record channel should be closed after stop")
	assert.True(t, port.isClosed())
}

func TestSweepAbnormalEnd(t *testing.T) {
	t.Parallel()
	port := &fakePort{
		chunks:  [][]byte{[]byte("100,1,2,3\n")},
		readErr: errors.New("device unplugged"),
	}
	sdr := &SDR{Identifier: "test", Conn: port}
	records := make(chan scanner.Record)
	require.NoError(t, sdr.Start(&scanner.Options{}, records))

	nextRecord(t, records)
	_, ok := <-records
	assert.False(t, ok, "record channel should close when the device dies")

	err := sdr.Stop()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device unplugged")
	assert.True(t, port.isClosed(), "port should be closed after an abnormal end")
}

func TestStartWhileRunning(t *testing.T) {
	t.Parallel()
	port := &fakePort{}
	sdr := &SDR{Identifier: "test", Conn: port}
	records := make(chan scanner.Record)
	require.NoError(t, sdr.Start(&scanner.Options{}, records))

	require.ErrorIs(t, sdr.Start(&scanner.Options{}, records), scanner.ErrAlreadyRunning)
	require.NoError(t, sdr.Stop())
}

func TestStartOpenError(t *testing.T) {
	t.Parallel()
	sdr := &SDR{Identifier: "test"}
	records := make(chan scanner.Record)
	err := sdr.Start(&scanner.Options{Port: "/dev/nrfscan-test-does-not-exist"}, records)
	require.Error(t, err)

	// No goroutine was started: the channel stays open and empty.
	select {
	case <-records:
		t.Fatal("expected no records after a failed start")
	default:
	}
	require.NoError(t, sdr.Stop())
}

func TestStreamCommand(t *testing.T) {
	t.Parallel()
	port := &fakePort{chunks: [][]byte{[]byte("100,1,2\n")}}
	sdr := &SDR{Identifier: "test", Conn: port}
	records := make(chan scanner.Record)
	require.NoError(t, sdr.Start(&scanner.Options{StreamCommand: "v"}, records))

	nextRecord(t, records)
	require.NoError(t, sdr.Stop())
	assert.Equal(t, []string{"v", "v"}, port.written(), "stream toggle should be sent on start and stop")
}

func TestParseLine(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		desc     string
		line     string
		width    int
		wantOK   bool
		wantTime int64
		want     []int
	}{
		{desc: "full line", line: "100,1,2,3", wantOK: true, wantTime: 100, want: []int{1, 2, 3}},
		{desc: "blank", line: ""},
		{desc: "whitespace only", line: "   \r"},
		{desc: "single field", line: "100"},
		{desc: "non-numeric channels", line: "bad,x,y"},
		{desc: "non-numeric timestamp", line: "12.5,1,2"},
		{desc: "device banner", line: "timestamp,Ch1,Ch2,Ch3"},
		{desc: "padded fields", line: " 200 , 4 , 5 ", wantOK: true, wantTime: 200, want: []int{4, 5}},
		{desc: "trailing carriage return", line: "300,7,8\r", wantOK: true, wantTime: 300, want: []int{7, 8}},
		{desc: "width match", line: "100,1,2,3", width: 3, wantOK: true, wantTime: 100, want: []int{1, 2, 3}},
		{desc: "width mismatch", line: "100,1,2", width: 3},
	} {
		tc := tc
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()
			gotTime, gotChannels, ok := parseLine(tc.line, tc.width)
			require.Equal(t, tc.wantOK, ok)
			if !tc.wantOK {
				return
			}
			assert.Equal(t, tc.wantTime, gotTime)
			assert.Equal(t, tc.want, gotChannels)
		})
	}
}
