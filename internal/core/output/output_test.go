package output

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPrintDevices_SortByAddr(t *testing.T) {
	devices := testDevices(t)

	var buf bytes.Buffer
	err := PrintDevices(&buf, devices, time.Second, FormatTable, WithSort(SortByAddr))
	require.NoError(t, err)
	require.Contains(t, buf.String(), "HP LaserJet MFP M630")
}

func TestSortByAddr_DeviceDoesNotSortBeforeItself(t *testing.T) {
	devices := testDevices(t)
	require.Len(t, devices, 1)

	// A device with an address never sorts before itself.
	require.False(t, SortByAddr(devices[0], devices[0]))
}

func TestNewOutput_DefaultsToTable(t *testing.T) {
	o, err := NewOutput(FormatTable)
	require.NoError(t, err)
	_, ok := o.formatter.(*TableFormatter)
	require.True(t, ok)
}

func TestNewOutput_JSON(t *testing.T) {
	o, err := NewOutput(FormatJSON, WithPretty())
	require.NoError(t, err)
	jf, ok := o.formatter.(*JSONFormatter)
	require.True(t, ok)
	require.True(t, jf.pretty)
}
