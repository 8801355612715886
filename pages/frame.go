package pages

import (
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/pkg/errors"
)

// Page file layout: [Magic(4)][Version(2)][Length(4)][CRC32(4)][Payload(N)], little endian.
const (
	pageMagic   = "SLPG"
	pageVersion = 1
	headerSize  = 14
)

var (
	// ErrInvalidMagic means the file is not a page file.
	ErrInvalidMagic = errors.New("invalid page magic")
	// ErrChecksumMismatch means the page payload is corrupt.
	ErrChecksumMismatch = errors.New("page crc32 checksum mismatch")
	// ErrIncompleteFrame means the page file ended early.
	ErrIncompleteFrame = errors.New("incomplete page frame")
)

func writeFrame(w io.Writer, payload []byte) error {
	header := make([]byte, headerSize)
	copy(header[0:4], pageMagic)
	binary.LittleEndian.PutUint16(header[4:6], pageVersion)
	binary.LittleEndian.PutUint32(header[6:10], uint32(len(payload)))
	binary.LittleEndian.PutUint32(header[10:14], crc32.ChecksumIEEE(payload))

	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, ErrIncompleteFrame
	}
	if string(header[0:4]) != pageMagic {
		return nil, ErrInvalidMagic
	}
	if v := binary.LittleEndian.Uint16(header[4:6]); v != pageVersion {
		return nil, errors.Errorf("unsupported page version %d", v)
	}
	length := binary.LittleEndian.Uint32(header[6:10])
	expectedCRC := binary.LittleEndian.Uint32(header[10:14])

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, ErrIncompleteFrame
	}
	if crc32.ChecksumIEEE(payload) != expectedCRC {
		return nil, ErrChecksumMismatch
	}
	return payload, nil
}
