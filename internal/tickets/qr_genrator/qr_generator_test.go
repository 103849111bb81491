package qr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecrypt(t *testing.T) {
	gen, err := NewQRGenerator("secret")
	require.NoError(t, err)

	p := Payload{Code: "NSV-250301090000-ABCDEF", OrderID: "o-1", EventID: "e-1"}
	a, err := gen.Encrypt(p)
	require.NoError(t, err)
	b, err := gen.Encrypt(p)
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "nonce must differ per encryption")
	assert.NotContains(t, a, "=")

	got, err := gen.Decrypt(a)
	require.NoError(t, err)
	assert.Equal(t, p, *got)
}

func TestDecrypt_Tampered(t *testing.T) {
	gen, err := NewQRGenerator("secret")
	require.NoError(t, err)

	s, err := gen.Encrypt(Payload{Code: "NSV-1"})
	require.NoError(t, err)

	b := []byte(s)
	if b[20] == 'A' {
		b[20] = 'B'
	} else {
		b[20] = 'A'
	}
	_, err = gen.Decrypt(string(b))
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = gen.Decrypt("")
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestPNG(t *testing.T) {
	png, err := PNG("payload", 128)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png[:4])
}
