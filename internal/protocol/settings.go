package protocol

import "encoding/binary"

// SettingsBlock is the fixed 40-byte structure embedded in the 0x04
// handshake frame: ten little-endian 32-bit fields. Kept as an opaque byte
// constant rather than a struct — the field-level semantics beyond
// aes_key_bits and fast_encrypt_key_bits are unknown, and a byte array
// eliminates the risk of a refactor silently changing the wire image.
var SettingsBlock = buildSettingsBlock()

func buildSettingsBlock() []byte {
	fields := []uint32{
		0x00000000, // flags
		0x01000000, // version
		0x27C00001, // unknown1
		0x00010009, // unknown2
		0x0000003C, // timeout (60 seconds)
		0x00000080, // aes_key_bits (128)
		0x00000200, // fast_encrypt_key_bits (512)
		0x00000001, // flag1
		0x00000001, // flag2
		0x02000000, // unknown3
	}
	out := make([]byte, 0, 40)
	for _, f := range fields {
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, f)
		out = append(out, b...)
	}
	return out
}
