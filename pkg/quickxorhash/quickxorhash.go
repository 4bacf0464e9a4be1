// Package quickxorhash implements QuickXorHash, the content hash OneDrive
// reports for every file in the "file.hashes.quickXorHash" facet.
//
// Each input byte is XORed into a 160-bit circular buffer at a bit offset
// that advances by 11 per byte. The digest is the buffer in little-endian
// byte order with the total input length XORed into its last 8 bytes.
//
// Reference: https://learn.microsoft.com/en-us/onedrive/developer/code-snippets/quickxorhash
package quickxorhash

import (
	"encoding/base64"
	"encoding/binary"
	"hash"
)

const (
	// Size is the length, in bytes, of a QuickXorHash digest.
	Size = 20

	// BlockSize is the preferred input block size for the hash, in bytes.
	BlockSize = 64

	shift       = 11
	widthInBits = Size * 8
)

type digest struct {
	buf    [Size]byte
	offset int // bit offset of the next input byte, in [0, widthInBits)
	length uint64
}

// New returns a new hash.Hash computing the QuickXorHash checksum.
func New() hash.Hash {
	return &digest{}
}

// Write absorbs more data into the running hash. It never fails.
func (d *digest) Write(p []byte) (int, error) {
	for _, b := range p {
		idx := d.offset / 8
		v := uint16(b) << (d.offset % 8)

		d.buf[idx] ^= byte(v)
		d.buf[(idx+1)%Size] ^= byte(v >> 8)

		d.offset = (d.offset + shift) % widthInBits
	}

	d.length += uint64(len(p))

	return len(p), nil
}

// Sum appends the current hash to b without changing the hash state.
func (d *digest) Sum(b []byte) []byte {
	out := d.buf

	var lengthBytes [8]byte
	binary.LittleEndian.PutUint64(lengthBytes[:], d.length)

	for i, lb := range lengthBytes {
		out[Size-len(lengthBytes)+i] ^= lb
	}

	return append(b, out[:]...)
}

func (d *digest) Reset() {
	*d = digest{}
}

func (d *digest) Size() int {
	return Size
}

func (d *digest) BlockSize() int {
	return BlockSize
}

// Encode returns the base64 form of a digest, as used by the Graph API.
func Encode(sum []byte) string {
	return base64.StdEncoding.EncodeToString(sum)
}
