package importer

import (
	"errors"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"

	"github.com/Faultbox/meshforge/pkg/formats"
)

// ErrUnknownFormat is returned when data matches no supported signature.
var ErrUnknownFormat = errors.New("unknown model format")

// Format identifies a model file format.
type Format int

const (
	FormatUnknown Format = iota
	FormatCollada
	FormatSMesh
)

func (f Format) String() string {
	switch f {
	case FormatCollada:
		return "collada"
	case FormatSMesh:
		return "smesh"
	default:
		return "unknown"
	}
}

var (
	smeshType   = filetype.NewType("smesh", "model/x-smesh")
	colladaType = filetype.NewType("dae", "model/vnd.collada+xml")
)

func init() {
	filetype.AddMatcher(smeshType, formats.IsSMesh)
	filetype.AddMatcher(colladaType, formats.IsCollada)
}

// Detect sniffs the format from the file signature.
func Detect(data []byte) Format {
	kind, err := filetype.Match(data)
	if err != nil {
		return FormatUnknown
	}
	return formatOf(kind)
}

func formatOf(kind types.Type) Format {
	switch kind.Extension {
	case smeshType.Extension:
		return FormatSMesh
	case colladaType.Extension:
		return FormatCollada
	default:
		return FormatUnknown
	}
}
