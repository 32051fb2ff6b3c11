package control

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCtx(t *testing.T) context.Context {
	return logr.NewContext(context.Background(), testr.New(t))
}

func TestDecodeSimpleStanza(t *testing.T) {
	const input = `Package: libfoo
Version: 1.2-3
Architecture: mips
Depends: libc, libbar (>= 1.0)
Description: does the foo thing
 across multiple lines

`
	dec := NewDecoder(testCtx(t), strings.NewReader(input), false)
	st, err := dec.Decode(FieldAll)
	require.NoError(t, err)

	assert.Equal(t, "libfoo", st.Package)
	assert.Equal(t, "1.2-3", st.Version)
	assert.Equal(t, "mips", st.Architecture)
	assert.Equal(t, "libc, libbar (>= 1.0)", st.Depends)
	assert.Equal(t, "does the foo thing across multiple lines", st.Description)

	_, err = dec.Decode(FieldAll)
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecodeMultipleStanzas(t *testing.T) {
	const input = `Package: a
Version: 1.0

Package: b
Version: 2.0

`
	dec := NewDecoder(testCtx(t), strings.NewReader(input), false)

	first, err := dec.Decode(FieldAll)
	require.NoError(t, err)
	assert.Equal(t, "a", first.Package)

	second, err := dec.Decode(FieldAll)
	require.NoError(t, err)
	assert.Equal(t, "b", second.Package)

	_, err = dec.Decode(FieldAll)
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecodeDiscardsBlankStanza(t *testing.T) {
	const input = `Version: 1.0

Package: real
Version: 2.0

`
	dec := NewDecoder(testCtx(t), strings.NewReader(input), false)
	st, err := dec.Decode(FieldAll)
	require.NoError(t, err)
	assert.Equal(t, "real", st.Package)
}

func TestDecodeStatus(t *testing.T) {
	const input = `Package: foo
Version: 1.0
Status: install hold installed

`
	dec := NewDecoder(testCtx(t), strings.NewReader(input), false)
	st, err := dec.Decode(FieldAll)
	require.NoError(t, err)
	assert.Equal(t, WantInstall, st.Want)
	assert.Equal(t, FlagHold, st.Flags)
	assert.Equal(t, StatusInstalled, st.Status)
}

func TestDecodeConffiles(t *testing.T) {
	const input = `Package: foo
Version: 1.0
Conffiles:
 /etc/foo.conf aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa
 /etc/bar.conf bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb

`
	dec := NewDecoder(testCtx(t), strings.NewReader(input), false)
	st, err := dec.Decode(FieldAll)
	require.NoError(t, err)
	require.Len(t, st.Conffiles, 2)
	assert.Equal(t, "/etc/foo.conf", st.Conffiles[0].Path)
	assert.Equal(t, "/etc/bar.conf", st.Conffiles[1].Path)
}

func TestDecodeAlternatives(t *testing.T) {
	const input = `Package: foo
Version: 1.0
Alternatives: 50:/usr/bin/foo:/usr/bin/editor, 10:relative:/usr/bin/editor

`
	dec := NewDecoder(testCtx(t), strings.NewReader(input), false)
	st, err := dec.Decode(FieldAll)
	require.NoError(t, err)
	require.Len(t, st.Alternatives, 1)
	assert.Equal(t, 50, st.Alternatives[0].Priority)
	assert.Equal(t, "/usr/bin/foo", st.Alternatives[0].Path)
	assert.Equal(t, "/usr/bin/editor", st.Alternatives[0].AltPath)
}

func TestDecodeFieldMask(t *testing.T) {
	const input = `Package: foo
Version: 1.0
Depends: libbar

`
	mask := FieldAll &^ FieldDepends
	dec := NewDecoder(testCtx(t), strings.NewReader(input), false)
	st, err := dec.Decode(mask)
	require.NoError(t, err)
	assert.Equal(t, "foo", st.Package)
	assert.Empty(t, st.Depends)
}

func TestEncodeRoundTrip(t *testing.T) {
	st := &Stanza{
		Package:   "foo",
		Version:   "1.0-1",
		Depends:   "libbar",
		Want:      WantInstall,
		Flags:     FlagOK,
		Status:    StatusInstalled,
		Essential: true,
	}
	out := Encode(st)

	dec := NewDecoder(testCtx(t), strings.NewReader(out+"\n"), false)
	got, err := dec.Decode(FieldAll)
	require.NoError(t, err)

	assert.Equal(t, st.Package, got.Package)
	assert.Equal(t, st.Version, got.Version)
	assert.Equal(t, st.Depends, got.Depends)
	assert.Equal(t, st.Want, got.Want)
	assert.Equal(t, st.Status, got.Status)
	assert.True(t, got.Essential)
}
