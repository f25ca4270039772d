package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"runtime"
)

// AlgorithmTag identifies the encryption strategy used for a given
// ciphertext, persisted alongside it so old entries remain decryptable
// even if the default strategy changes (spec §3 SecretEntry.algorithm).
const AlgorithmTag = "aes-256-cbc-derived-v1"

const (
	keySize   = 32 // AES-256
	blockSize = aes.BlockSize
)

// deriveMachineKey derives a 256-bit key from a stable per-machine
// composite (host identity, OS, user identity, a fixed salt), per spec
// §4.3's fallback strategy when no OS-scoped secret-protection primitive
// is available. Secrets encrypted this way are NOT portable across
// machines - that is an explicit, documented tradeoff, not a bug.
func deriveMachineKey() ([]byte, error) {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown-host"
	}
	user := os.Getenv("USER")
	if user == "" {
		user = os.Getenv("USERNAME")
	}
	composite := fmt.Sprintf("pdk-secret-store|%s|%s|%s|%s", host, runtime.GOOS, user, "pdk-fixed-salt-v1")
	sum := sha256.Sum256([]byte(composite))
	return sum[:], nil
}

// encrypt applies PKCS#7 padding, then AES-256-CBC with a random 16-byte
// IV prepended to the ciphertext.
func encrypt(plaintext []byte) ([]byte, error) {
	key, err := deriveMachineKey()
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	padded := pkcs7Pad(plaintext, blockSize)

	iv := make([]byte, blockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, err
	}

	ciphertext := make([]byte, len(padded))
	mode := cipher.NewCBCEncrypter(block, iv)
	mode.CryptBlocks(ciphertext, padded)

	return append(iv, ciphertext...), nil
}

// decrypt reverses encrypt. Callers should zero the returned plaintext
// once done with it (spec §4.3 "plaintext buffers are zeroed on all exit
// paths").
func decrypt(data []byte) ([]byte, error) {
	if len(data) < blockSize || (len(data)-blockSize)%blockSize != 0 {
		return nil, fmt.Errorf("secret: malformed ciphertext")
	}
	key, err := deriveMachineKey()
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	iv, ciphertext := data[:blockSize], data[blockSize:]
	plaintext := make([]byte, len(ciphertext))
	mode := cipher.NewCBCDecrypter(block, iv)
	mode.CryptBlocks(plaintext, ciphertext)

	return pkcs7Unpad(plaintext)
}

func pkcs7Pad(data []byte, size int) []byte {
	padLen := size - len(data)%size
	padding := make([]byte, padLen)
	for i := range padding {
		padding[i] = byte(padLen)
	}
	return append(append([]byte{}, data...), padding...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("secret: empty plaintext")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) || padLen > blockSize {
		return nil, fmt.Errorf("secret: invalid padding")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("secret: invalid padding")
		}
	}
	return data[:len(data)-padLen], nil
}

// zero overwrites a byte slice's backing array in place.
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
