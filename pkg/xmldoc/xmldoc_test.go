package xmldoc

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pwgNS = "http://www.pwg.org/schemas/2010/12/sm"
const scanNS = "http://schemas.hp.com/imaging/escl/2011/05/03"

func testNS() NsMap {
	return NsMap{"pwg": pwgNS, "scan": scanNS}
}

func TestReaderMatchesByPrefixAndLocal(t *testing.T) {
	doc := `<scan:ScannerStatus xmlns:scan="` + scanNS + `" xmlns:pwg="` + pwgNS + `">
		<pwg:Version>2.0</pwg:Version>
		<pwg:State>Idle</pwg:State>
	</scan:ScannerStatus>`

	r := NewReader(strings.NewReader(doc), testNS())

	local, isStart, err := r.Next()
	require.NoError(t, err)
	require.True(t, isStart)
	assert.Equal(t, "ScannerStatus", local)
	assert.True(t, r.Match("scan:ScannerStatus"))

	local, isStart, err = r.Next()
	require.NoError(t, err)
	require.True(t, isStart)
	assert.Equal(t, "Version", local)
	assert.True(t, r.Match("pwg:Version"))
	assert.True(t, r.Match("*:Version"))

	text, err := r.Text()
	require.NoError(t, err)
	assert.Equal(t, "2.0", text)
}

func TestReaderDepthInvariant(t *testing.T) {
	doc := `<a><b><c/></b></a>`
	r := NewReader(strings.NewReader(doc), nil)

	depths := []int{}
	for {
		_, isStart, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		depths = append(depths, r.Depth())
		_ = isStart
	}
	// enter a(1) enter b(2) enter c(3, self closing emits start+end)
	// end c(2) end b(1) end a(0)
	assert.Equal(t, 0, r.Depth())
	assert.Contains(t, depths, 3)
}

func TestReaderSkipSubtree(t *testing.T) {
	doc := `<root><vendorExt><a><b/></a></vendorExt><after>x</after></root>`
	r := NewReader(strings.NewReader(doc), nil)

	_, _, err := r.Next() // root
	require.NoError(t, err)
	_, _, err = r.Next() // vendorExt
	require.NoError(t, err)
	require.NoError(t, r.Skip())

	local, isStart, err := r.Next()
	require.NoError(t, err)
	require.True(t, isStart)
	assert.Equal(t, "after", local)
}

func TestValueUintOverflow(t *testing.T) {
	_, err := ValueUint("99999999999999999999999")
	assert.Error(t, err)

	v, err := ValueUint(" 42 ")
	require.NoError(t, err)
	assert.EqualValues(t, 42, v)
}

func TestWriterRootDeclaresNamespaces(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, testNS(), "")
	root := w.Root("scan", "ScanSettings")
	root.Child("pwg", "Version").Text("2.0").End()
	require.NoError(t, root.End())
	require.NoError(t, w.Close())

	out := buf.String()
	assert.Contains(t, out, "<scan:ScanSettings")
	assert.Contains(t, out, `xmlns:scan="`+scanNS+`"`)
	assert.Contains(t, out, `xmlns:pwg="`+pwgNS+`"`)
	assert.Contains(t, out, "<pwg:Version>2.0</pwg:Version>")
	assert.Contains(t, out, "</scan:ScanSettings>")
}

func TestWriterRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, NsMap{"scan": scanNS}, "  ")
	root := w.Root("scan", "ScanSettings")
	root.Child("scan", "InputSource").Text("Platen").End()
	require.NoError(t, root.End())
	require.NoError(t, w.Close())

	r := NewReader(strings.NewReader(buf.String()), NsMap{"scan": scanNS})
	local, isStart, err := r.Next()
	require.NoError(t, err)
	require.True(t, isStart)
	assert.Equal(t, "ScanSettings", local)

	local, isStart, err = r.Next()
	require.NoError(t, err)
	require.True(t, isStart)
	assert.Equal(t, "InputSource", local)

	text, err := r.Text()
	require.NoError(t, err)
	assert.Equal(t, "Platen", text)
}
