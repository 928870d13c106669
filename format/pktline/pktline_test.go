package pktline_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/statewalker/vcs-sub002/format/pktline"
)

func TestWritePacketReadPacketRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	_, err := pktline.WritePacket(&buf, []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, "0009hello", buf.String())

	pkt, err := pktline.ReadPacket(&buf)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), pkt.Data)
	require.Equal(t, -1, pkt.Length)
}

func TestWriteFlushReadPacketIsFlush(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, pktline.WriteFlush(&buf))

	pkt, err := pktline.ReadPacket(&buf)
	require.NoError(t, err)
	require.True(t, pkt.IsFlush())
}

func TestWriteDelimAndResponseEnd(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, pktline.WriteDelim(&buf))
	require.NoError(t, pktline.WriteResponseEnd(&buf))

	pkt, err := pktline.ReadPacket(&buf)
	require.NoError(t, err)
	require.True(t, pkt.IsDelim())

	pkt, err = pktline.ReadPacket(&buf)
	require.NoError(t, err)
	require.True(t, pkt.IsResponseEnd())
}

func TestWritePacketRejectsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	_, err := pktline.WritePacket(&buf, make([]byte, pktline.MaxPayloadSize+1))
	require.ErrorIs(t, err, pktline.ErrPayloadTooLong)
}

func TestReadAllPacketsStopsAtFlush(t *testing.T) {
	var buf bytes.Buffer
	_, _ = pktline.WritePacketString(&buf, "one")
	_, _ = pktline.WritePacketString(&buf, "two")
	_ = pktline.WriteFlush(&buf)
	_, _ = pktline.WritePacketString(&buf, "three") // after flush, not returned

	packets, err := pktline.ReadAllPackets(&buf)
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("one"), []byte("two")}, packets)
}

func TestScannerIteratesUntilFlush(t *testing.T) {
	var buf bytes.Buffer
	_, _ = pktline.WritePacketLine(&buf, "first")
	_, _ = pktline.WritePacketLine(&buf, "second")
	_ = pktline.WriteFlush(&buf)

	sc := pktline.NewScanner(&buf)
	var lines []string
	for sc.Scan() {
		lines = append(lines, string(pktline.TrimLF(sc.Bytes())))
	}
	require.NoError(t, sc.Err())
	require.Equal(t, []string{"first", "second"}, lines)
}

func TestReadPacketRejectsTruncatedLength(t *testing.T) {
	_, err := pktline.ReadPacket(bytes.NewReader([]byte("00")))
	require.Error(t, err)
}

func TestReadPacketRejectsInvalidHexDigit(t *testing.T) {
	_, err := pktline.ReadPacket(bytes.NewReader([]byte("zzzz")))
	require.Error(t, err)
}
