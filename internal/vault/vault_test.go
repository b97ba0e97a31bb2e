package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresSecret(t *testing.T) {
	_, err := New("")
	require.ErrorIs(t, err, ErrNoSecret)
}

func TestSealOpen(t *testing.T) {
	v, err := New("operator-secret")
	require.NoError(t, err)

	sealed, err := v.Seal("salut, ça va ?")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "salut")

	again, err := v.Seal("salut, ça va ?")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonces must differ")

	plain, err := v.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "salut, ça va ?", plain)
}

func TestOpenRejectsForeignPayloads(t *testing.T) {
	a, err := New("one")
	require.NoError(t, err)
	b, err := New("two")
	require.NoError(t, err)

	sealed, err := a.Seal("secret")
	require.NoError(t, err)

	_, err = b.Open(sealed)
	assert.Error(t, err)

	_, err = a.Open("not base64 !!")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = a.Open("c2hvcnQ")
	assert.ErrorIs(t, err, ErrMalformed)
}
