// Package payload synthesizes the obfuscated request arguments the game
// client sends for login and analytics calls.
package payload

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"fmt"
	"strconv"

	"golang.org/x/text/encoding/charmap"
)

const blockSize = aes.BlockSize

// EncryptPassword encrypts the password with AES-CBC. The key is the raw
// Latin-1 bytes of characterKey (16, 24 or 32 bytes); the IV is the decimal
// seed PKCS#7-padded and cut to one block. The result is base64.
func EncryptPassword(password, characterKey string, seed int32) (string, error) {
	key, err := latin1(characterKey)
	if err != nil {
		return "", fmt.Errorf("character key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("character key of %d bytes: %w", len(key), err)
	}

	plain := passwordBytes(password)
	padded := pkcs7Pad(plain, blockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, makeIV(strconv.FormatInt(int64(seed), 10))).CryptBlocks(out, padded)

	return base64.StdEncoding.EncodeToString(out), nil
}

// makeIV pads the seed text with PKCS#7 bytes and keeps exactly one block.
func makeIV(seed string) []byte {
	iv := pkcs7Pad([]byte(seed), blockSize)
	return iv[:blockSize]
}

func pkcs7Pad(data []byte, size int) []byte {
	n := size - len(data)%size
	return append(append(make([]byte, 0, len(data)+n), data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func latin1(s string) ([]byte, error) {
	return charmap.ISO8859_1.NewEncoder().Bytes([]byte(s))
}

// passwordBytes returns the Latin-1 form of the password, or its UTF-8
// bytes when it has characters outside Latin-1.
func passwordBytes(password string) []byte {
	if b, err := latin1(password); err == nil {
		return b
	}
	return []byte(password)
}
