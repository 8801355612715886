package pointcloud

import (
	"bytes"
	"image/color"
	"io"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestRecordFileRoundTrip(t *testing.T) {
	a := NewRecord(7, r3.Vector{X: 1.25, Y: -3e15, Z: 42}, -1.46)
	a.Names = []string{"Sirius", "α CMa"}
	a.HasVel = true
	a.Vel = r3.Vector{X: 1e-9, Y: 2e-9, Z: -3e-9}
	a.Color = color.NRGBA{R: 200, G: 210, B: 255, A: 255}
	a.Tag = 0b101
	a.Epoch = 2457389.0
	b := NewRecord(8, r3.Vector{}, 11)

	var buf bytes.Buffer
	test.That(t, WriteRecords(&buf, []*Record{a, b}), test.ShouldBeNil)
	test.That(t, buf.String(), test.ShouldStartWith, "VERSION 1\n")

	read, err := ReadRecords(&buf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(read), test.ShouldEqual, 2)
	test.That(t, read[0], test.ShouldResemble, a)
	test.That(t, read[1].ID, test.ShouldEqual, uint64(8))
	test.That(t, read[1].Names, test.ShouldBeNil)
	test.That(t, read[1].HasVel, test.ShouldBeFalse)
}

func TestRecordFileErrors(t *testing.T) {
	_, err := ReadRecords(strings.NewReader("VERSION 9\n"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "version")

	header := func(points string) string {
		return "VERSION 1\nFIELDS " + recordFields + "\nPOINTS " + points + "\nDATA binary\n"
	}
	_, err = ReadRecords(strings.NewReader(header("2")))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "does not fit")

	// Without a known length the body runs out instead.
	_, err = ReadRecords(io.MultiReader(strings.NewReader(header("2"))))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "reading record 0")

	_, err = ReadRecords(strings.NewReader(header("4611686018427387904")))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "does not fit")
	_, err = ReadRecords(io.MultiReader(strings.NewReader(header("4611686018427387904"))))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "reading record 0")

	_, err = ReadRecords(strings.NewReader("VERSION 1\nFIELDS x y z\n"))
	test.That(t, err, test.ShouldNotBeNil)

	// Comments and blank lines are allowed in the header.
	in := "# written by a test\nVERSION 1\n\nFIELDS " + recordFields + "\nPOINTS 0\nDATA binary\n"
	recs, err := ReadRecords(strings.NewReader(in))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(recs), test.ShouldEqual, 0)

	var out bytes.Buffer
	crowded := &Record{ID: 3, Names: make([]string, maxNames+1)}
	err = WriteRecords(&out, []*Record{crowded})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "names")
}
