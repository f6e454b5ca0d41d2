package layout

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
)

const (
	// FirmwareMagic identifies a valid firmware blob header.
	FirmwareMagic uint32 = 0x4E465A31

	// FirmwareHeaderSize is the fixed width of the header, in bytes.
	FirmwareHeaderSize = 256

	nameFieldSize        = 32
	descriptionFieldSize = 128
)

// FirmwareHeader is the decoded form of the first 256 bytes of a firmware
// blob.
type FirmwareHeader struct {
	Magic          uint32
	Version        uint32
	FirmwareSize   uint32
	CRC32          uint32
	Name           string
	Description    string
	BuildTimestamp uint64
}

// EncodeFirmwareHeader packs h into a 256-byte header. Name and Description
// are truncated to their field widths minus the trailing NUL if they would
// otherwise overflow.
func EncodeFirmwareHeader(h FirmwareHeader) []byte {
	buf := make([]byte, FirmwareHeaderSize)

	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.FirmwareSize)
	binary.LittleEndian.PutUint32(buf[12:16], h.CRC32)

	putCString(buf[16:16+nameFieldSize], h.Name)
	putCString(buf[16+nameFieldSize:16+nameFieldSize+descriptionFieldSize], h.Description)

	binary.LittleEndian.PutUint64(buf[176:184], h.BuildTimestamp)
	// bytes 184:256 reserved, left zero.

	return buf
}

// DecodeFirmwareHeader unpacks the first 256 bytes of blob into a
// FirmwareHeader, failing if the blob is short or the magic doesn't match.
func DecodeFirmwareHeader(blob []byte) (FirmwareHeader, error) {
	if len(blob) < FirmwareHeaderSize {
		return FirmwareHeader{}, ErrHeaderTooShort
	}

	h := FirmwareHeader{
		Magic:          binary.LittleEndian.Uint32(blob[0:4]),
		Version:        binary.LittleEndian.Uint32(blob[4:8]),
		FirmwareSize:   binary.LittleEndian.Uint32(blob[8:12]),
		CRC32:          binary.LittleEndian.Uint32(blob[12:16]),
		Name:           getCString(blob[16 : 16+nameFieldSize]),
		Description:    getCString(blob[16+nameFieldSize : 16+nameFieldSize+descriptionFieldSize]),
		BuildTimestamp: binary.LittleEndian.Uint64(blob[176:184]),
	}

	if h.Magic != FirmwareMagic {
		return h, ErrMagicMismatch
	}

	return h, nil
}

// VerifyChecksum recomputes the CRC-32 of payload (the blob bytes following
// the header) and compares it against the header's recorded checksum. It is
// deliberately separate from DecodeFirmwareHeader since loading firmware
// does not itself verify the checksum; callers that want verification opt
// in explicitly.
func VerifyChecksum(h FirmwareHeader, payload []byte) bool {
	return crc32.ChecksumIEEE(payload) == h.CRC32
}

func putCString(dst []byte, s string) {
	max := len(dst) - 1
	if len(s) > max {
		s = s[:max]
	}
	copy(dst, s)
	// dst[len(s):] is already zero from make([]byte, ...).
}

func getCString(src []byte) string {
	if i := bytes.IndexByte(src, 0); i >= 0 {
		return string(src[:i])
	}
	return string(src)
}
