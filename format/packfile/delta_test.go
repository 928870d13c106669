package packfile_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/statewalker/vcs-sub002/format/packfile"
)

func TestComputeDeltaApplyDeltaRoundTrip(t *testing.T) {
	base := []byte("the quick brown fox jumps over the lazy dog, repeated: the quick brown fox jumps over the lazy dog")
	target := []byte("the quick brown fox jumps over the lazy cat, repeated: the quick brown fox jumps over the lazy dog")

	delta := packfile.ComputeDelta(base, target)
	require.NotEmpty(t, delta)

	out, err := packfile.ApplyDelta(base, delta)
	require.NoError(t, err)
	require.True(t, bytes.Equal(target, out))
}

func TestComputeDeltaApplyDeltaIdenticalContent(t *testing.T) {
	base := []byte("identical content identical content identical content")
	target := append([]byte(nil), base...)

	delta := packfile.ComputeDelta(base, target)
	out, err := packfile.ApplyDelta(base, delta)
	require.NoError(t, err)
	require.True(t, bytes.Equal(target, out))
}

func TestComputeDeltaApplyDeltaEmptyTarget(t *testing.T) {
	base := []byte("some base content")
	target := []byte{}

	delta := packfile.ComputeDelta(base, target)
	out, err := packfile.ApplyDelta(base, delta)
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestComputeDeltaApplyDeltaNoSharedContent(t *testing.T) {
	base := []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	target := []byte("zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz")

	delta := packfile.ComputeDelta(base, target)
	out, err := packfile.ApplyDelta(base, delta)
	require.NoError(t, err)
	require.True(t, bytes.Equal(target, out))
}

func TestApplyDeltaRejectsWrongBaseSize(t *testing.T) {
	base := []byte("base content")
	target := []byte("target content")
	delta := packfile.ComputeDelta(base, target)

	_, err := packfile.ApplyDelta(append(base, "extra"...), delta)
	require.Error(t, err)
}
