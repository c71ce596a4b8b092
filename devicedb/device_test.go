package devicedb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuiltinParsesWithoutError(t *testing.T) {
	db, err := Builtin()
	require.NoError(t, err)
	require.NotEmpty(t, db.Devices)
}

func TestLookupKnownDevice(t *testing.T) {
	db, err := Builtin()
	require.NoError(t, err)

	dev, err := db.Lookup("attiny817")
	require.NoError(t, err)
	require.Equal(t, uint32(0x1100), dev.SigrowAddress())
	require.Equal(t, uint32(0x8000), dev.FlashStart())

	segment := dev.Segments[0]
	require.Equal(t, "flash", segment.Name())
	require.Equal(t, uint32(8192), segment.Size())
}

func TestLookupUnknownDeviceErrors(t *testing.T) {
	db, err := Builtin()
	require.NoError(t, err)
	_, err = db.Lookup("nonexistent-part")
	require.Error(t, err)
}

func TestNamesListsEveryDevice(t *testing.T) {
	db, err := Builtin()
	require.NoError(t, err)
	names := db.Names()
	require.Len(t, names, len(db.Devices))
	require.Contains(t, names, "avr64eb32")
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("devices: [this is not a device list"))
	require.Error(t, err)
}
