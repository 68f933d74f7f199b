package pcap

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeValidCapture(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))

	eth := layers.Ethernet{
		SrcMAC:       []byte{0, 1, 2, 3, 4, 5},
		DstMAC:       []byte{6, 7, 8, 9, 10, 11},
		EthernetType: layers.EthernetTypeIPv4,
	}
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, &eth))

	require.NoError(t, w.WritePacket(gopacket.CaptureInfo{
		Timestamp:     time.Now(),
		CaptureLength: len(buf.Bytes()),
		Length:        len(buf.Bytes()),
	}, buf.Bytes()))
}

func TestTotalHandshakesCountsOnlyValidCaptures(t *testing.T) {
	dir := t.TempDir()
	writeValidCapture(t, filepath.Join(dir, "a.pcap"))
	writeValidCapture(t, filepath.Join(dir, "b.pcap"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.pcap"), []byte("not a pcap file"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "d.txt"), []byte("ignored, wrong extension"), 0o644))

	w := New(dir, nil)
	assert.Equal(t, 2, w.TotalHandshakes())
}

func TestTotalHandshakesEmptyDir(t *testing.T) {
	w := New(t.TempDir(), nil)
	assert.Equal(t, 0, w.TotalHandshakes())
}

func TestFilenamesReturnsBasenamesOfValidCaptures(t *testing.T) {
	dir := t.TempDir()
	writeValidCapture(t, filepath.Join(dir, "handshake-1.pcap"))

	w := New(dir, nil)
	names := w.Filenames()
	require.Len(t, names, 1)
	assert.Equal(t, "handshake-1.pcap", names[0])
}
