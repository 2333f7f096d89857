package output

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJSONFormatter(t *testing.T) {
	devices := testDevices(t)

	var buf bytes.Buffer
	err := PrintDevices(&buf, devices, 250*time.Millisecond, FormatJSON)
	require.NoError(t, err)

	var decoded listResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded.Devices, 1)

	dev := decoded.Devices[0]
	require.Equal(t, "HP LaserJet MFP M630", dev.Model)
	require.Equal(t, []string{"mdns"}, dev.Methods)
	require.Len(t, dev.Endpoints, 1)
	require.Equal(t, "escl", dev.Endpoints[0].Protocol)
	require.Equal(t, "250ms", decoded.Elapsed)
}

func TestJSONFormatter_Pretty(t *testing.T) {
	devices := testDevices(t)

	var buf bytes.Buffer
	err := PrintDevices(&buf, devices, time.Second, FormatJSON, WithPretty())
	require.NoError(t, err)

	if !bytes.Contains(buf.Bytes(), []byte("\n  \"")) {
		t.Errorf("expected indented JSON, got: %s", buf.String())
	}
}

func TestJSONFormatter_Empty(t *testing.T) {
	var buf bytes.Buffer
	err := PrintDevices(&buf, nil, time.Second, FormatJSON)
	require.NoError(t, err)

	var decoded listResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Empty(t, decoded.Devices)
}
