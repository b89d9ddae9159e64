package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCidOfBytesDeterministic(t *testing.T) {
	data := []byte("content addressed blob")
	a, err := CidOfBytes(data)
	require.NoError(t, err)
	b, err := CidOfBytes(data)
	require.NoError(t, err)
	assert.True(t, a.Equal(b))
	assert.Equal(t, a.String(), b.String())
}

func TestCidOfBytesDiffersOnContent(t *testing.T) {
	a, err := CidOfBytes([]byte("one"))
	require.NoError(t, err)
	b, err := CidOfBytes([]byte("two"))
	require.NoError(t, err)
	assert.False(t, a.Equal(b))
}

func TestNilCid(t *testing.T) {
	assert.True(t, NilCid.IsNil())
	assert.Equal(t, "", NilCid.String())
	assert.Nil(t, NilCid.Bytes())
}

func TestCidFromBytesRoundTrip(t *testing.T) {
	cid, err := CidOfBytes([]byte("round trip me"))
	require.NoError(t, err)
	parsed, err := CidFromBytes(cid.Bytes())
	require.NoError(t, err)
	assert.True(t, cid.Equal(parsed))
}

func TestCidFromEmptyBytesIsNil(t *testing.T) {
	cid, err := CidFromBytes(nil)
	require.NoError(t, err)
	assert.True(t, cid.IsNil())
}
