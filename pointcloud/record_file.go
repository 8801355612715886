package pointcloud

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

const (
	recordFileVersion = "1"
	recordFields      = "id x y z vx vy vz hasvel absmag appmag size rgba tag epoch names"
	recordHeaderLines = 4
	recordCommentChar = "#"
	// fixed-size part of a binary record, names excluded.
	recordFixedSize = 8 + 3*8 + 3*8 + 1 + 3*8 + 4 + 4 + 8 + 2
	maxNameLen      = math.MaxUint16
	maxNames        = math.MaxUint16
)

// maxPreallocRecords caps the slice preallocated from a POINTS field.
const maxPreallocRecords = 1 << 16

// WriteRecords writes records in the starlod record format: a short ASCII header followed by
// little-endian binary records.
func WriteRecords(out io.Writer, recs []*Record) error {
	w := bufio.NewWriter(out)
	if _, err := fmt.Fprintf(w, "VERSION %s\nFIELDS %s\nPOINTS %d\nDATA binary\n",
		recordFileVersion, recordFields, len(recs)); err != nil {
		return err
	}

	buf := make([]byte, recordFixedSize)
	for _, r := range recs {
		if len(r.Names) > maxNames {
			return errors.Errorf("record %d: more than %d names", r.ID, maxNames)
		}
		encodeFixed(buf, r)
		if _, err := w.Write(buf); err != nil {
			return err
		}
		for _, name := range r.Names {
			if len(name) > maxNameLen {
				return errors.Errorf("record %d: name longer than %d bytes", r.ID, maxNameLen)
			}
			var lenBuf [2]byte
			binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(name)))
			if _, err := w.Write(lenBuf[:]); err != nil {
				return err
			}
			if _, err := w.WriteString(name); err != nil {
				return err
			}
		}
	}
	return w.Flush()
}

func encodeFixed(buf []byte, r *Record) {
	le := binary.LittleEndian
	off := 0
	putF := func(v float64) {
		le.PutUint64(buf[off:], math.Float64bits(v))
		off += 8
	}
	le.PutUint64(buf[off:], r.ID)
	off += 8
	putF(r.Pos.X)
	putF(r.Pos.Y)
	putF(r.Pos.Z)
	putF(r.Vel.X)
	putF(r.Vel.Y)
	putF(r.Vel.Z)
	if r.HasVel {
		buf[off] = 1
	} else {
		buf[off] = 0
	}
	off++
	putF(r.AbsMag)
	putF(r.AppMag)
	putF(r.Size)
	buf[off], buf[off+1], buf[off+2], buf[off+3] = r.Color.R, r.Color.G, r.Color.B, r.Color.A
	off += 4
	le.PutUint32(buf[off:], r.Tag)
	off += 4
	putF(r.Epoch)
	le.PutUint16(buf[off:], uint16(len(r.Names)))
}

type recordHeader struct {
	version string
	fields  string
	points  uint64
	binary  bool
}

func parseRecordHeaderLine(line string, header *recordHeader) error {
	key, value, _ := strings.Cut(line, " ")
	switch key {
	case "VERSION":
		if value != recordFileVersion {
			return errors.Errorf("unsupported record file version %q", value)
		}
		header.version = value
	case "FIELDS":
		if value != recordFields {
			return errors.Errorf("unexpected FIELDS %q", value)
		}
		header.fields = value
	case "POINTS":
		points, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid POINTS field %s", value)
		}
		header.points = points
	case "DATA":
		if value != "binary" {
			return errors.Errorf("unsupported DATA type %q", value)
		}
		header.binary = true
	default:
		return errors.Errorf("unexpected header line %q", line)
	}
	return nil
}

// ReadRecords reads records written by WriteRecords.
func ReadRecords(inRaw io.Reader) ([]*Record, error) {
	in := bufio.NewReader(inRaw)
	header := recordHeader{}
	headerLineCount := 0
	for headerLineCount < recordHeaderLines {
		line, err := in.ReadString('\n')
		if err != nil {
			return nil, errors.Wrapf(err, "error reading header line %d", headerLineCount)
		}
		line, _, _ = strings.Cut(line, recordCommentChar)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := parseRecordHeaderLine(line, &header); err != nil {
			return nil, err
		}
		headerLineCount++
	}
	if header.version == "" || header.fields == "" || !header.binary {
		return nil, errors.New("incomplete record file header")
	}

	// Readers that know their remaining length let an impossible POINTS fail early.
	if lr, ok := inRaw.(interface{ Len() int }); ok {
		remaining := uint64(in.Buffered() + lr.Len())
		if header.points > remaining/recordFixedSize {
			return nil, errors.Errorf("POINTS %d does not fit in the remaining %d bytes", header.points, remaining)
		}
	}

	recs := make([]*Record, 0, min(header.points, maxPreallocRecords))
	buf := make([]byte, recordFixedSize)
	for i := uint64(0); i < header.points; i++ {
		if _, err := io.ReadFull(in, buf); err != nil {
			return nil, errors.Wrapf(err, "reading record %d", i)
		}
		r, numNames := decodeFixed(buf)
		for n := 0; n < numNames; n++ {
			var lenBuf [2]byte
			if _, err := io.ReadFull(in, lenBuf[:]); err != nil {
				return nil, errors.Wrapf(err, "reading record %d name length", i)
			}
			name := make([]byte, binary.LittleEndian.Uint16(lenBuf[:]))
			if _, err := io.ReadFull(in, name); err != nil {
				return nil, errors.Wrapf(err, "reading record %d name", i)
			}
			r.Names = append(r.Names, string(name))
		}
		recs = append(recs, r)
	}
	return recs, nil
}

func decodeFixed(buf []byte) (*Record, int) {
	le := binary.LittleEndian
	off := 0
	getF := func() float64 {
		v := math.Float64frombits(le.Uint64(buf[off:]))
		off += 8
		return v
	}
	r := &Record{Opacity: 1}
	r.ID = le.Uint64(buf[off:])
	off += 8
	r.Pos = r3.Vector{X: getF(), Y: getF(), Z: getF()}
	r.Vel = r3.Vector{X: getF(), Y: getF(), Z: getF()}
	r.HasVel = buf[off] == 1
	off++
	r.AbsMag = getF()
	r.AppMag = getF()
	r.Size = getF()
	r.Color.R, r.Color.G, r.Color.B, r.Color.A = buf[off], buf[off+1], buf[off+2], buf[off+3]
	off += 4
	r.Tag = le.Uint32(buf[off:])
	off += 4
	r.Epoch = getF()
	numNames := int(le.Uint16(buf[off:]))
	r.RenderPos = r.Pos
	return r, numNames
}
