package pak

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/Faultbox/meshforge/pkg/encoding"
)

// Writer builds an archive in memory and writes it out on Close.
type Writer struct {
	w       io.Writer
	data    bytes.Buffer
	entries []Entry
	seen    map[string]bool
}

// NewWriter creates a writer that emits the archive to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, seen: make(map[string]bool)}
}

// Add stores a file. Payloads are compressed when that makes them smaller.
func (w *Writer) Add(path string, content []byte) error {
	name := encoding.NormalizePath(path)
	if w.seen[name] {
		return fmt.Errorf("duplicate entry: %s", name)
	}
	w.seen[name] = true

	var zbuf bytes.Buffer
	zw := zlib.NewWriter(&zbuf)
	if _, err := zw.Write(content); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}

	e := Entry{
		Name:             name,
		UncompressedSize: uint32(len(content)),
		Flags:            FlagFile,
		Offset:           uint32(headerSize + w.data.Len()),
	}
	payload := content
	if zbuf.Len() < len(content) {
		payload = zbuf.Bytes()
		e.Flags |= FlagCompressed
	}
	e.CompressedSize = uint32(len(payload))
	w.data.Write(payload)
	w.entries = append(w.entries, e)
	return nil
}

// Close writes the header, payloads and file table.
func (w *Writer) Close() error {
	var table bytes.Buffer
	var field [4]byte
	for _, e := range w.entries {
		table.WriteString(e.Name)
		table.WriteByte(0)
		binary.LittleEndian.PutUint32(field[:], e.CompressedSize)
		table.Write(field[:])
		binary.LittleEndian.PutUint32(field[:], e.UncompressedSize)
		table.Write(field[:])
		table.WriteByte(e.Flags)
		binary.LittleEndian.PutUint32(field[:], e.Offset)
		table.Write(field[:])
	}

	var ztable bytes.Buffer
	zw := zlib.NewWriter(&ztable)
	if _, err := zw.Write(table.Bytes()); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}

	h := Header{
		Version:     version,
		TableOffset: uint32(headerSize + w.data.Len()),
		FileCount:   uint32(len(w.entries)),
	}
	copy(h.Magic[:], magic)

	if err := binary.Write(w.w, binary.LittleEndian, &h); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if _, err := w.w.Write(w.data.Bytes()); err != nil {
		return fmt.Errorf("writing data: %w", err)
	}
	sizes := []uint32{uint32(ztable.Len()), uint32(table.Len())}
	if err := binary.Write(w.w, binary.LittleEndian, sizes); err != nil {
		return fmt.Errorf("writing table: %w", err)
	}
	if _, err := w.w.Write(ztable.Bytes()); err != nil {
		return fmt.Errorf("writing table: %w", err)
	}
	return nil
}
