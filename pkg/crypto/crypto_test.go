package crypto

import (
	"crypto/aes"
	"encoding/base64"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveKeyLayout(t *testing.T) {
	key := DeriveKey(0x12345678)

	require.Equal(t, uint32(0x12345678), binary.LittleEndian.Uint32(key[0:4]))
	require.Equal(t, uint64(0x618123462C14795C), binary.LittleEndian.Uint64(key[4:12]))
	require.Equal(t, uint32(0x82800DF0), binary.LittleEndian.Uint32(key[12:16]))
}

func TestDeriveKeySameHandleSameKey(t *testing.T) {
	a := DeriveKey(42)
	b := DeriveKey(42)
	require.Equal(t, a, b)

	c := DeriveKey(43)
	require.NotEqual(t, a, c)
}

func TestGenerateRandomKeyShapeAndUniqueness(t *testing.T) {
	k1, err := GenerateRandomKey()
	require.NoError(t, err)
	require.Len(t, k1, 16)
	for _, r := range k1 {
		require.True(t, (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'))
	}

	k2, err := GenerateRandomKey()
	require.NoError(t, err)
	require.NotEqual(t, k1, k2)
}

func TestEncryptPasswordRoundTrip(t *testing.T) {
	random, err := GenerateRandomKey()
	require.NoError(t, err)

	b64, err := EncryptPassword("hunter2", random)
	require.NoError(t, err)
	require.NotEmpty(t, b64)

	// Decrypting manually with the same two keys must recover the
	// original, PKCS#7-padded password through both layers.
	outerBlock, err := aes.NewCipher([]byte(random))
	require.NoError(t, err)
	outer, err := base64.StdEncoding.DecodeString(b64)
	require.NoError(t, err)
	ecbDecrypt(outerBlock, outer)
	inner := unpad(t, outer)

	innerBlock, err := aes.NewCipher([]byte(staticPasswordKey))
	require.NoError(t, err)
	plainPadded := append([]byte(nil), inner...)
	ecbDecrypt(innerBlock, plainPadded)
	plain := unpad(t, plainPadded)

	require.Equal(t, "hunter2", string(plain))
}

func TestDecryptVideo6480WindowBoundary(t *testing.T) {
	key := DeriveKey(7)
	block, err := newBlock(key)
	require.NoError(t, err)

	plain := make([]byte, 64)
	for i := range plain {
		plain[i] = byte(i)
	}
	cipherText := make([]byte, 64)
	copy(cipherText, plain)
	for off := 0; off < 64; off += 16 {
		block.Encrypt(cipherText[off:off+16], plain[off:off+16])
	}
	trailer := []byte("0123456789abcdef")
	window := append(append([]byte(nil), cipherText...), trailer...)

	out, err := DecryptVideo6480(key, window)
	require.NoError(t, err)
	require.Equal(t, plain, out[:64])
	require.Equal(t, trailer, out[64:80])
}

func TestDecryptVideo6480ShortPassThrough(t *testing.T) {
	key := DeriveKey(7)
	short := []byte("too short to decrypt")

	out, err := DecryptVideo6480(key, short)
	require.NoError(t, err)
	require.Equal(t, short, out)
}

func TestDecryptAudioFullBlocksWithTrailer(t *testing.T) {
	key := DeriveKey(99)
	block, err := newBlock(key)
	require.NoError(t, err)

	plain := []byte("0123456789ABCDEF0123456789ABCDEF")
	cipherText := make([]byte, 32)
	for off := 0; off < 32; off += 16 {
		block.Encrypt(cipherText[off:off+16], plain[off:off+16])
	}
	trailer := []byte("xyz")
	data := append(append([]byte(nil), cipherText...), trailer...)

	out, err := DecryptAudio(key, data)
	require.NoError(t, err)
	require.Equal(t, plain, out[:32])
	require.Equal(t, trailer, out[32:])
}

func unpad(t *testing.T, data []byte) []byte {
	t.Helper()
	require.NotEmpty(t, data)
	padLen := int(data[len(data)-1])
	require.True(t, padLen > 0 && padLen <= len(data))
	return data[:len(data)-padLen]
}
