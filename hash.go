package sealbase

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"github.com/zeebo/blake3"
)

// DefaultAlgo is the digest algorithm used when a caller doesn't pick one.
const DefaultAlgo = "blake3"

// newHash returns a streaming hash engine for algo.
func newHash(algo string) (h hash.Hash, err error) {
	switch algo {
	case "sha256":
		h = sha256.New()
	case "sha512":
		h = sha512.New()
	case "blake3":
		h = blake3.New()
	default:
		err = fmt.Errorf("unknown hash algorithm: %s", algo)
	}
	return
}

// Hash returns the binary digest of buf under algo.
func Hash(algo string, buf []byte) (binhash []byte, err error) {
	h, err := newHash(algo)
	if err != nil {
		return
	}
	h.Write(buf)
	binhash = h.Sum(nil)
	return
}

// DigestSize returns the digest length in bytes for algo.
func DigestSize(algo string) (n int, err error) {
	h, err := newHash(algo)
	if err != nil {
		return
	}
	n = h.Size()
	return
}

func bin2hex(binhash []byte) string {
	return hex.EncodeToString(binhash)
}

// FormatSeal renders a binary digest as the self-describing
// "<algo>:<hex>" form stored in content_hash and id attributes.
func FormatSeal(algo string, binhash []byte) string {
	return algo + ":" + bin2hex(binhash)
}

// ParseSeal splits a "<algo>:<hex>" seal string and checks that both
// parts are plausible.  The hex payload is returned in binary form.
func ParseSeal(seal string) (algo string, binhash []byte, err error) {
	i := strings.IndexByte(seal, ':')
	if i < 1 {
		err = fmt.Errorf("malformed seal: %q", seal)
		return
	}
	algo = seal[:i]
	binhash, err = hex.DecodeString(seal[i+1:])
	if err != nil {
		return
	}
	var size int
	size, err = DigestSize(algo)
	if err != nil {
		return
	}
	if len(binhash) != size {
		err = fmt.Errorf("seal %q: digest is %d bytes, want %d", seal, len(binhash), size)
	}
	return
}
