// Package crypto implements the V380 camera's key derivation and
// password obfuscation scheme, plus the selective AES-ECB decrypt
// patterns used on the video and audio elementary streams.
//
// AES-ECB has no chaining state, so every function here is a pure
// function of its inputs: there is no long-lived cipher "object"
// reused across calls the way the camera's own client keeps one.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/ethan/v380-relay/pkg/v380err"
)

// Key derivation constants (§3 of the spec): fixed magic values the
// camera's firmware embeds verbatim in every derived key.
const (
	magicA uint64 = 0x618123462C14795C
	magicB uint32 = 0x82800DF0
)

// staticPasswordKey is the inner AES-ECB key used for the first layer
// of password obfuscation. It is fixed across every V380 device.
const staticPasswordKey = "macrovideo+*#!^@"

const randomKeyAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Key is the 16-byte AES-ECB key derived from a session handle.
type Key [16]byte

// DeriveKey derives the per-session AES key from a server-assigned
// handle: bytes 0..4 are the handle (little-endian u32), bytes 4..12
// are magicA (little-endian u64), bytes 12..16 are magicB
// (little-endian u32). Two clients with the same handle always derive
// the same key.
func DeriveKey(handle uint32) Key {
	var k Key
	binary.LittleEndian.PutUint32(k[0:4], handle)
	binary.LittleEndian.PutUint64(k[4:12], magicA)
	binary.LittleEndian.PutUint32(k[12:16], magicB)
	return k
}

// GenerateRandomKey returns a fresh 16-character ASCII alphanumeric
// key, used as the outer AES-ECB key of the two-layer password
// obfuscation. It is generated per login.
func GenerateRandomKey() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", v380err.Cryptof("generate_random_key", err)
	}
	out := make([]byte, 16)
	for i, b := range buf {
		out[i] = randomKeyAlphabet[int(b)%len(randomKeyAlphabet)]
	}
	return string(out), nil
}

// EncryptPassword implements the two-layer obfuscation V380 expects
// at login: outer(pkcs7(inner(pkcs7(password)))), base64-encoded.
// The inner key is the fixed staticPasswordKey; the outer key is a
// freshly generated per-login randomKey.
func EncryptPassword(password, randomKey string) (string, error) {
	inner, err := ecbEncrypt([]byte(staticPasswordKey), pkcs7Pad([]byte(password), aes.BlockSize))
	if err != nil {
		return "", v380err.Cryptof("encrypt_password.inner", err)
	}
	outer, err := ecbEncrypt([]byte(randomKey), pkcs7Pad(inner, aes.BlockSize))
	if err != nil {
		return "", v380err.Cryptof("encrypt_password.outer", err)
	}
	return base64.StdEncoding.EncodeToString(outer), nil
}

// ecbEncrypt encrypts data (which must already be a multiple of the
// block size) block-by-block under ECB mode. crypto/cipher
// deliberately ships no NewECBEncrypter (ECB is considered unsafe for
// general use, and golang.org/x/crypto omits it for the same reason),
// so this loop is the idiomatic way to get ECB out of crypto/aes.
func ecbEncrypt(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("ecb encrypt: input %d not a multiple of block size %d", len(data), block.BlockSize())
	}
	out := make([]byte, len(data))
	bs := block.BlockSize()
	for off := 0; off < len(data); off += bs {
		block.Encrypt(out[off:off+bs], data[off:off+bs])
	}
	return out, nil
}

// ecbDecrypt decrypts data (which must already be a multiple of the
// block size) block-by-block under ECB mode.
func ecbDecrypt(block cipher.Block, data []byte) {
	bs := block.BlockSize()
	for off := 0; off+bs <= len(data); off += bs {
		block.Decrypt(data[off:off+bs], data[off:off+bs])
	}
}

// pkcs7Pad pads data to a multiple of blockSize using PKCS#7, as
// crypto/cipher has no padding helpers of its own.
func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	out := make([]byte, len(data)+padLen)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(padLen)
	}
	return out
}

// newBlock constructs an AES cipher.Block from a Key, returning a
// CryptoError-kind failure on the only way this can fail: a malformed
// key length, which given the fixed-size Key type is unreachable.
func newBlock(key Key) (cipher.Block, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, v380err.Cryptof("new_block", err)
	}
	return block, nil
}
