// Package importer runs the mesh import pipeline: parse, compose the node
// forest, assemble geometry, bind skins and flatten into a prefab.
package importer

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/meshforge/internal/config"
	"github.com/Faultbox/meshforge/internal/diag"
	"github.com/Faultbox/meshforge/internal/geometry"
	"github.com/Faultbox/meshforge/internal/prefab"
	"github.com/Faultbox/meshforge/internal/scenegraph"
	"github.com/Faultbox/meshforge/internal/skin"
	"github.com/Faultbox/meshforge/pkg/encoding"
	"github.com/Faultbox/meshforge/pkg/formats"
	"github.com/Faultbox/meshforge/pkg/scene"
)

// Loader supplies file bytes by asset path.
type Loader interface {
	Load(path string) ([]byte, error)
}

// Options control one importer.
type Options struct {
	LoadTexCoord2 bool
	LoadNormalMap bool
	FlipNormalMap bool
	GPUBonesCount int
	MaxUVTile     float32
	NameEncoding  string
}

// OptionsFromConfig maps the import section of the configuration.
func OptionsFromConfig(cfg config.ImportConfig) Options {
	return Options{
		LoadTexCoord2: cfg.LoadTexCoord2,
		LoadNormalMap: cfg.LoadNormalMap,
		FlipNormalMap: cfg.FlipNormalMap,
		GPUBonesCount: cfg.GPUBonesCount,
		MaxUVTile:     cfg.MaxUVTile,
		NameEncoding:  cfg.NameEncoding,
	}
}

// Importer turns model files into prefabs. It holds no per-import state and
// may be shared between goroutines.
type Importer struct {
	loader Loader
	opts   Options
	names  *encoding.NameDecoder
	log    *zap.Logger
}

// New creates an importer reading through loader.
func New(loader Loader, opts Options, log *zap.Logger) (*Importer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	names, err := encoding.NewNameDecoder(opts.NameEncoding)
	if err != nil {
		return nil, fmt.Errorf("name encoding: %w", err)
	}
	return &Importer{loader: loader, opts: opts, names: names, log: log}, nil
}

// Import loads path and builds its prefab. Recoverable problems are returned
// in the report; the error is set only when nothing usable was produced.
func (im *Importer) Import(path string) (*prefab.Prefab, *diag.Report, error) {
	data, err := im.loader.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return im.ImportBytes(ModelName(path), data)
}

// ImportBytes builds a prefab named name from file content.
func (im *Importer) ImportBytes(name string, data []byte) (*prefab.Prefab, *diag.Report, error) {
	report := diag.NewReport(im.log.Named("diag").With(zap.String("model", name)))

	doc, format, err := im.Parse(data)
	if err != nil {
		return nil, report, fmt.Errorf("parsing %s: %w", name, err)
	}
	for _, w := range doc.Warnings {
		report.Addf(diag.KindParse, name, "%s", w)
	}

	p, err := im.build(name, doc, report)
	if err != nil {
		return nil, report, err
	}

	im.log.Info("imported model",
		zap.String("model", name),
		zap.Stringer("format", format),
		zap.Int("entities", p.Len()),
		zap.Int("meshes", len(p.Meshes())),
		zap.Int("issues", report.Len()),
	)
	return p, report, nil
}

// Parse sniffs the format and parses data into a document.
func (im *Importer) Parse(data []byte) (*scene.Document, Format, error) {
	format := Detect(data)
	var (
		doc *scene.Document
		err error
	)
	switch format {
	case FormatCollada:
		doc, err = formats.ParseDAE(bytes.NewReader(data))
	case FormatSMesh:
		doc, err = formats.ParseSMesh(data, im.names)
	default:
		return nil, format, ErrUnknownFormat
	}
	return doc, format, err
}

func (im *Importer) build(name string, doc *scene.Document, report *diag.Report) (*prefab.Prefab, error) {
	forest := scenegraph.Build(doc, name, report)
	defer clearData(forest)

	assembler := geometry.NewAssembler(geometry.Options{
		Convention:       forest.Convention,
		UnitScale:        forest.UnitScale,
		MaxUVTile:        im.opts.MaxUVTile,
		LoadTexCoord2:    im.opts.LoadTexCoord2,
		GenerateTangents: im.opts.LoadNormalMap,
		FlipNormalMap:    im.opts.FlipNormalMap,
	}, im.log.Named("geometry"), report)

	binder := skin.NewBinder(skin.Options{
		ZUp:           forest.Convention.ZUp,
		GPUBonesCount: im.opts.GPUBonesCount,
	}, im.log.Named("skin"), report)

	factory := prefab.NewAssemblingFactory(assembler, binder, forest, report)
	p, err := prefab.NewBuilder(factory, im.log.Named("prefab")).Build(forest)
	if err != nil {
		return nil, fmt.Errorf("building %s: %w", name, err)
	}
	return p, nil
}

// clearData drops the intermediate node forest once the prefab owns
// everything it needs.
func clearData(forest *scenegraph.Forest) {
	forest.Release()
}

// ModelName derives the prefab name from an asset path: the base name
// without extension.
func ModelName(p string) string {
	base := path.Base(strings.ReplaceAll(p, "\\", "/"))
	return strings.TrimSuffix(base, path.Ext(base))
}
