package resource

import (
	"testing"

	"github.com/nspcc-dev/hsm-http-gw/hsmerr"
	"github.com/stretchr/testify/require"
)

func TestParseFamily(t *testing.T) {
	for _, tc := range []struct {
		name     string
		expected Family
		err      bool
	}{
		{name: "", expected: FamilyUnspecified},
		{name: "tape", expected: FamilyTape},
		{name: "DIR", expected: FamilyDir},
		{name: "Rados_Pool", expected: FamilyRadosPool},
		{name: "floppy", err: true},
	} {
		f, err := ParseFamily(tc.name)
		if tc.err {
			require.ErrorIs(t, err, hsmerr.ErrInvalidArgument, tc.name)
			continue
		}
		require.NoError(t, err, tc.name)
		require.Equal(t, tc.expected, f, tc.name)
	}

	require.False(t, FamilyUnspecified.Valid())
	require.True(t, FamilyDir.Valid())
}

func TestIDs(t *testing.T) {
	ids := IDs(FamilyDir, []string{"/a", "/b"})
	require.Equal(t, []ID{{FamilyDir, "/a"}, {FamilyDir, "/b"}}, ids)
	require.Equal(t, "/a, /b", Names(ids))
	require.Equal(t, "dir:/a", ids[0].String())
}
