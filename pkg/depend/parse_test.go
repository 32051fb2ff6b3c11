package depend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhanhb/opkg-lede/pkg/version"
)

func noopEnsure(string) {}

func TestParseListSimple(t *testing.T) {
	compounds, err := ParseList(Depend, "libc, libfoo (>= 1.2)", noopEnsure)
	require.NoError(t, err)
	require.Len(t, compounds, 2)

	assert.Equal(t, "libc", compounds[0].Possibilities[0].Target)
	assert.False(t, compounds[0].Possibilities[0].HasVersion)

	assert.Equal(t, "libfoo", compounds[1].Possibilities[0].Target)
	assert.True(t, compounds[1].Possibilities[0].HasVersion)
	assert.Equal(t, version.LaterEqual, compounds[1].Possibilities[0].Constraint)
}

func TestParseListDisjunction(t *testing.T) {
	compounds, err := ParseList(Depend, "libssl1.1 | libssl3", noopEnsure)
	require.NoError(t, err)
	require.Len(t, compounds, 1)
	assert.Len(t, compounds[0].Possibilities, 2)
	assert.Equal(t, Depend, compounds[0].Kind)
}

func TestParseListGreedy(t *testing.T) {
	compounds, err := ParseList(Depend, "kmod-foo*", noopEnsure)
	require.NoError(t, err)
	require.Len(t, compounds, 1)
	assert.Equal(t, GreedyDepend, compounds[0].Kind)
	assert.Equal(t, "kmod-foo", compounds[0].Possibilities[0].Target)
}

func TestParseListLegacyOperators(t *testing.T) {
	compounds, err := ParseList(Depend, "libfoo (< 2.0), libbar (> 1.0)", noopEnsure)
	require.NoError(t, err)
	require.Len(t, compounds, 2)
	assert.Equal(t, version.EarlierEqual, compounds[0].Possibilities[0].Constraint)
	assert.Equal(t, version.LaterEqual, compounds[1].Possibilities[0].Constraint)
}

func TestParseListArchRestriction(t *testing.T) {
	compounds, err := ParseList(Depend, "libfoo [mips]", noopEnsure)
	require.NoError(t, err)
	require.Len(t, compounds, 1)
	assert.Equal(t, "libfoo", compounds[0].Possibilities[0].Target)
}

func TestParseListEnsuresAbstract(t *testing.T) {
	var seen []string
	_, err := ParseList(Depend, "a, b (>= 1.0) | c", func(name string) {
		seen = append(seen, name)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, seen)
}

func TestParseListEmpty(t *testing.T) {
	compounds, err := ParseList(Depend, "   ", noopEnsure)
	require.NoError(t, err)
	assert.Nil(t, compounds)
}

func TestParseListMalformed(t *testing.T) {
	cases := []string{
		"libfoo (>~ 1.0)",
		"libfoo (>= )",
		"!!!bad",
	}
	for _, c := range cases {
		t.Run(c, func(t *testing.T) {
			_, err := ParseList(Depend, c, noopEnsure)
			require.Error(t, err)
			var target *ErrParseDepExpr
			assert.ErrorAs(t, err, &target)
		})
	}
}

func TestAtomAndCompoundString(t *testing.T) {
	compounds, err := ParseList(Depend, "libfoo (>= 1.2-3)", noopEnsure)
	require.NoError(t, err)
	assert.Equal(t, "libfoo (>= 1.2-3)", compounds[0].String())
}
