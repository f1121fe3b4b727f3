// AES-CCM as defined in NIST 800-38C and RFC 3610.
//
// Neither the standard library nor golang.org/x/crypto ships CCM, so the
// mode is built here on top of crypto/aes. PTM215B telegrams use:
//   - Key length: 128 bits (16 bytes)
//   - Nonce length: 13 bytes (L = 2)
//   - Tag length: 4 bytes

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"
	"errors"
)

// AES-CCM parameter limits.
const (
	// CCMKeySize is the AES-128 key size in bytes.
	CCMKeySize = 16

	// CCMMaxTagSize is the largest tag CCM can produce (one AES block).
	CCMMaxTagSize = 16

	aesBlockSize = 16
)

// Errors
var (
	ErrCCMInvalidKeySize     = errors.New("aesccm: invalid key size, must be 16 bytes")
	ErrCCMInvalidNonceSize   = errors.New("aesccm: invalid nonce size")
	ErrCCMInvalidTagSize     = errors.New("aesccm: invalid tag size, must be 4, 6, 8, 10, 12, 14, or 16")
	ErrCCMPlaintextTooLong   = errors.New("aesccm: plaintext too long")
	ErrCCMCiphertextTooShort = errors.New("aesccm: ciphertext too short")
	ErrCCMAuthFailed         = errors.New("aesccm: message authentication failed")
)

// CCM is an AES-128-CCM cipher with fixed nonce and tag sizes.
// It holds no per-message state and is safe for concurrent use.
type CCM struct {
	block   cipher.Block
	tagSize int // M
	lenSize int // L = 15 - nonce size
}

// NewCCM creates an AES-128-CCM cipher.
//
// Parameters:
//   - key: 16-byte AES-128 key
//   - nonceSize: nonce length in bytes (7-13)
//   - tagSize: tag length in bytes (4, 6, 8, 10, 12, 14, or 16)
func NewCCM(key []byte, nonceSize, tagSize int) (*CCM, error) {
	if len(key) != CCMKeySize {
		return nil, ErrCCMInvalidKeySize
	}

	lenSize := 15 - nonceSize
	if lenSize < 2 || lenSize > 8 {
		return nil, ErrCCMInvalidNonceSize
	}

	if tagSize < 4 || tagSize > CCMMaxTagSize || tagSize%2 != 0 {
		return nil, ErrCCMInvalidTagSize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	return &CCM{
		block:   block,
		tagSize: tagSize,
		lenSize: lenSize,
	}, nil
}

// NonceSize returns the nonce size in bytes.
func (c *CCM) NonceSize() int {
	return 15 - c.lenSize
}

// TagSize returns the tag size in bytes.
func (c *CCM) TagSize() int {
	return c.tagSize
}

// Seal encrypts plaintext and authenticates it together with aad.
// Returns ciphertext || tag.
func (c *CCM) Seal(nonce, plaintext, aad []byte) ([]byte, error) {
	if len(nonce) != c.NonceSize() {
		return nil, ErrCCMInvalidNonceSize
	}
	if c.lenSize < 8 && uint64(len(plaintext)) >= uint64(1)<<(8*c.lenSize) {
		return nil, ErrCCMPlaintextTooLong
	}

	tag := c.mac(nonce, plaintext, aad)

	out := make([]byte, len(plaintext)+c.tagSize)
	c.ctr(nonce, out[:len(plaintext)], plaintext)

	s0 := c.keystream0(nonce)
	subtle.XORBytes(out[len(plaintext):], tag[:c.tagSize], s0[:c.tagSize])

	return out, nil
}

// Open decrypts ciphertext || tag and verifies it against aad.
// Returns ErrCCMAuthFailed when the tag does not match.
func (c *CCM) Open(nonce, ciphertext, aad []byte) ([]byte, error) {
	if len(nonce) != c.NonceSize() {
		return nil, ErrCCMInvalidNonceSize
	}
	if len(ciphertext) < c.tagSize {
		return nil, ErrCCMCiphertextTooShort
	}

	body := ciphertext[:len(ciphertext)-c.tagSize]
	sealedTag := ciphertext[len(ciphertext)-c.tagSize:]

	plaintext := make([]byte, len(body))
	c.ctr(nonce, plaintext, body)

	expected := c.mac(nonce, plaintext, aad)
	s0 := c.keystream0(nonce)
	subtle.XORBytes(expected[:c.tagSize], expected[:c.tagSize], s0[:c.tagSize])

	if subtle.ConstantTimeCompare(sealedTag, expected[:c.tagSize]) != 1 {
		return nil, ErrCCMAuthFailed
	}

	return plaintext, nil
}

// mac computes the unencrypted CBC-MAC over B_0, the encoded aad and the
// plaintext (NIST 800-38C Section 6.1).
func (c *CCM) mac(nonce, plaintext, aad []byte) [aesBlockSize]byte {
	var b0 [aesBlockSize]byte
	if len(aad) > 0 {
		b0[0] |= 1 << 6 // Adata
	}
	b0[0] |= byte((c.tagSize-2)/2) << 3 // M'
	b0[0] |= byte(c.lenSize - 1)        // L'
	copy(b0[1:], nonce)
	putLength(b0[1+c.NonceSize():], uint64(len(plaintext)))

	var mac [aesBlockSize]byte
	c.block.Encrypt(mac[:], b0[:])

	if len(aad) > 0 {
		c.cbc(&mac, encodeAADLength(len(aad)), aad)
	}
	c.cbc(&mac, nil, plaintext)

	return mac
}

// cbc folds prefix || data, zero padded to the block size, into mac.
func (c *CCM) cbc(mac *[aesBlockSize]byte, prefix, data []byte) {
	var blk [aesBlockSize]byte
	n := copy(blk[:], prefix)
	for {
		m := copy(blk[n:], data)
		data = data[m:]
		n += m
		if n == 0 {
			return
		}
		subtle.XORBytes(mac[:], mac[:], blk[:])
		c.block.Encrypt(mac[:], mac[:])
		if len(data) == 0 {
			return
		}
		blk = [aesBlockSize]byte{}
		n = 0
	}
}

// counterBlock builds A_i with counter i in the last L bytes.
func (c *CCM) counterBlock(nonce []byte, i uint64) [aesBlockSize]byte {
	var a [aesBlockSize]byte
	a[0] = byte(c.lenSize - 1)
	copy(a[1:], nonce)
	putLength(a[1+c.NonceSize():], i)
	return a
}

// keystream0 returns S_0 = E(K, A_0), used to encrypt the tag.
func (c *CCM) keystream0(nonce []byte) [aesBlockSize]byte {
	a0 := c.counterBlock(nonce, 0)
	var s0 [aesBlockSize]byte
	c.block.Encrypt(s0[:], a0[:])
	return s0
}

// ctr encrypts src into dst with counters starting at 1.
func (c *CCM) ctr(nonce []byte, dst, src []byte) {
	var ks [aesBlockSize]byte
	for i, off := uint64(1), 0; off < len(src); i, off = i+1, off+aesBlockSize {
		a := c.counterBlock(nonce, i)
		c.block.Encrypt(ks[:], a[:])
		end := off + aesBlockSize
		if end > len(src) {
			end = len(src)
		}
		subtle.XORBytes(dst[off:end], src[off:end], ks[:end-off])
	}
}

// encodeAADLength returns the l(a) prefix from RFC 3610 Section 2.2.
func encodeAADLength(n int) []byte {
	switch {
	case n < (1<<16)-(1<<8):
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, uint16(n))
		return b
	case uint64(n) < 1<<32:
		b := make([]byte, 6)
		b[0], b[1] = 0xFF, 0xFE
		binary.BigEndian.PutUint32(b[2:], uint32(n))
		return b
	default:
		b := make([]byte, 10)
		b[0], b[1] = 0xFF, 0xFF
		binary.BigEndian.PutUint64(b[2:], uint64(n))
		return b
	}
}

// putLength writes v big-endian into all of dst.
func putLength(dst []byte, v uint64) {
	for i := len(dst) - 1; i >= 0; i-- {
		dst[i] = byte(v)
		v >>= 8
	}
}
