// Package pak reads and writes MPAK asset archives.
//
// Layout (little-endian):
//
//	header: magic "MESHPAK\x00", version u32, table offset u32, file count u32
//	data:   entry payloads, zlib-compressed when that saves space
//	table:  compressed size u32, uncompressed size u32, zlib(entries)
//	entry:  name NUL, compressed u32, uncompressed u32, flags u8, offset u32
package pak

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/Faultbox/meshforge/pkg/encoding"
)

const (
	magic      = "MESHPAK\x00"
	version    = 0x100
	headerSize = 20
	entrySize  = 13
)

// Entry flags.
const (
	FlagFile       uint8 = 0x01
	FlagCompressed uint8 = 0x02
)

var (
	ErrInvalidMagic       = errors.New("invalid MPAK magic")
	ErrUnsupportedVersion = errors.New("unsupported MPAK version")
	ErrCorruptTable       = errors.New("corrupt MPAK file table")
	ErrNotFound           = errors.New("file not found")
)

// Header is the fixed archive header.
type Header struct {
	Magic       [8]byte
	Version     uint32
	TableOffset uint32
	FileCount   uint32
}

// Entry describes one stored file.
type Entry struct {
	Name             string
	CompressedSize   uint32
	UncompressedSize uint32
	Flags            uint8
	Offset           uint32
}

// Compressed reports whether the payload is zlib data.
func (e *Entry) Compressed() bool {
	return e.Flags&FlagCompressed != 0
}

// Archive is an opened MPAK archive. Reads are safe for concurrent use.
type Archive struct {
	r       io.ReaderAt
	closer  io.Closer
	header  Header
	entries map[string]*Entry
}

// Open opens an archive file.
func Open(path string) (*Archive, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	a, err := NewReader(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	a.closer = file
	return a, nil
}

// NewReader reads the header and file table from r.
func NewReader(r io.ReaderAt) (*Archive, error) {
	a := &Archive{r: r, entries: make(map[string]*Entry)}
	if err := a.readHeader(); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if err := a.readFileTable(); err != nil {
		return nil, fmt.Errorf("reading file table: %w", err)
	}
	return a, nil
}

// Close closes the underlying file, if any.
func (a *Archive) Close() error {
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}

func (a *Archive) readHeader() error {
	sr := io.NewSectionReader(a.r, 0, headerSize)
	if err := binary.Read(sr, binary.LittleEndian, &a.header); err != nil {
		return err
	}
	if string(a.header.Magic[:]) != magic {
		return ErrInvalidMagic
	}
	if a.header.Version != version {
		return fmt.Errorf("%w: 0x%x", ErrUnsupportedVersion, a.header.Version)
	}
	return nil
}

func (a *Archive) readFileTable() error {
	var sizes [8]byte
	if _, err := a.r.ReadAt(sizes[:], int64(a.header.TableOffset)); err != nil {
		return err
	}
	compressedSize := binary.LittleEndian.Uint32(sizes[:4])
	uncompressedSize := binary.LittleEndian.Uint32(sizes[4:])

	zr, err := zlib.NewReader(io.NewSectionReader(a.r, int64(a.header.TableOffset)+8, int64(compressedSize)))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptTable, err)
	}
	defer zr.Close()

	table := make([]byte, uncompressedSize)
	if _, err := io.ReadFull(zr, table); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptTable, err)
	}

	offset := 0
	for i := uint32(0); i < a.header.FileCount; i++ {
		nameEnd := bytes.IndexByte(table[offset:], 0)
		if nameEnd < 0 || offset+nameEnd+1+entrySize > len(table) {
			return fmt.Errorf("%w: entry %d", ErrCorruptTable, i)
		}
		name := string(table[offset : offset+nameEnd])
		offset += nameEnd + 1

		e := &Entry{
			Name:             encoding.NormalizePath(name),
			CompressedSize:   binary.LittleEndian.Uint32(table[offset:]),
			UncompressedSize: binary.LittleEndian.Uint32(table[offset+4:]),
			Flags:            table[offset+8],
			Offset:           binary.LittleEndian.Uint32(table[offset+9:]),
		}
		offset += entrySize

		if e.Flags&FlagFile != 0 {
			a.entries[e.Name] = e
		}
	}
	return nil
}

// List returns all file paths in the archive, sorted.
func (a *Archive) List() []string {
	out := make([]string, 0, len(a.entries))
	for name := range a.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Stat returns the entry for path.
func (a *Archive) Stat(path string) (*Entry, bool) {
	e, ok := a.entries[encoding.NormalizePath(path)]
	return e, ok
}

// Contains checks if a file exists.
func (a *Archive) Contains(path string) bool {
	_, ok := a.Stat(path)
	return ok
}

// Read returns the uncompressed content of path.
func (a *Archive) Read(path string) ([]byte, error) {
	e, ok := a.Stat(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	sr := io.NewSectionReader(a.r, int64(e.Offset), int64(e.CompressedSize))
	if !e.Compressed() {
		data := make([]byte, e.UncompressedSize)
		if _, err := io.ReadFull(sr, data); err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		return data, nil
	}

	zr, err := zlib.NewReader(sr)
	if err != nil {
		return nil, fmt.Errorf("decompressing %s: %w", path, err)
	}
	defer zr.Close()

	data := make([]byte, e.UncompressedSize)
	if _, err := io.ReadFull(zr, data); err != nil {
		return nil, fmt.Errorf("decompressing %s: %w", path, err)
	}
	return data, nil
}
