package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Faultbox/meshforge/internal/assets"
	"github.com/Faultbox/meshforge/internal/config"
	"github.com/Faultbox/meshforge/internal/diag"
	"github.com/Faultbox/meshforge/internal/importer"
	"github.com/Faultbox/meshforge/internal/logger"
	"github.com/Faultbox/meshforge/internal/prefab"
	"github.com/Faultbox/meshforge/pkg/pak"
)

// session holds what a model command needs: configuration, logging and
// an importer over the configured sources.
type session struct {
	cfg      *config.Config
	assets   *assets.Manager
	importer *importer.Importer
	log      *zap.Logger
}

func newSession(name string, args []string) (*session, []string, error) {
	set := flag.NewFlagSet(name, flag.ContinueOnError)
	flags := config.BindFlags(set)
	if err := set.Parse(args); err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load(flags)
	if err != nil {
		return nil, nil, err
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	log := logger.Named(name)

	m, err := assets.FromConfig(cfg.Sources, cfg.Import.Cache, logger.Named("assets"))
	if err != nil {
		return nil, nil, err
	}
	im, err := importer.New(m, importer.OptionsFromConfig(cfg.Import), logger.Named("importer"))
	if err != nil {
		m.Close()
		return nil, nil, err
	}
	return &session{cfg: cfg, assets: m, importer: im, log: log}, set.Args(), nil
}

func (s *session) close() {
	if err := s.assets.Close(); err != nil {
		s.log.Warn("closing sources", zap.Error(err))
	}
	logger.Sync()
}

func (s *session) importModel(name string, args []string) (*prefab.Prefab, *diag.Report, error) {
	if len(args) < 1 {
		return nil, nil, fmt.Errorf("usage: meshtool %s [options] <model>", name)
	}
	return s.importer.Import(args[0])
}

func cmdInfo(args []string, w io.Writer) error {
	s, rest, err := newSession("info", args)
	if err != nil {
		return err
	}
	defer s.close()

	p, report, err := s.importModel("info", rest)
	if err != nil {
		return err
	}

	var vertices, triangles, skinned, software int
	meshes := p.Meshes()
	for _, m := range meshes {
		vertices += m.VertexCount()
		for _, b := range m.Buffers {
			triangles += b.TriangleCount()
		}
	}
	p.Each(func(i int) {
		if r, ok := p.Render(i); ok && r.Skinned {
			skinned++
			if r.SoftwareSkinning {
				software++
			}
		}
	})

	fmt.Fprintf(w, "Model:     %s\n", p.Name)
	fmt.Fprintf(w, "Entities:  %d\n", p.Len())
	fmt.Fprintf(w, "Joints:    %d\n", p.Joints().Len())
	fmt.Fprintf(w, "Meshes:    %d (%d skinned, %d software)\n", len(meshes), skinned, software)
	fmt.Fprintf(w, "Vertices:  %d\n", vertices)
	fmt.Fprintf(w, "Triangles: %d\n", triangles)

	if report.Len() > 0 {
		fmt.Fprintf(w, "\nIssues (%d):\n", report.Len())
		for _, issue := range report.Issues() {
			fmt.Fprintf(w, "  %v\n", issue)
		}
	}
	return nil
}

func cmdTree(args []string, w io.Writer) error {
	s, rest, err := newSession("tree", args)
	if err != nil {
		return err
	}
	defer s.close()

	p, _, err := s.importModel("tree", rest)
	if err != nil {
		return err
	}

	p.Each(func(i int) {
		depth := 0
		if t, ok := p.Transform(i); ok {
			depth = t.Depth
		}
		line := strings.Repeat("  ", depth) + p.EntityName(i)
		if j, ok := p.Joint(i); ok {
			line += fmt.Sprintf(" [joint %s]", j.SID)
		}
		if r, ok := p.Render(i); ok && r.Mesh != nil {
			kind := "mesh"
			if r.Skinned {
				kind = "skin"
			}
			line += fmt.Sprintf(" [%s %s, %d buffers]", kind, r.Mesh.Name, len(r.Mesh.Buffers))
		}
		fmt.Fprintln(w, line)
	})
	return nil
}

func cmdJoints(args []string, w io.Writer) error {
	s, rest, err := newSession("joints", args)
	if err != nil {
		return err
	}
	defer s.close()

	p, _, err := s.importModel("joints", rest)
	if err != nil {
		return err
	}

	for _, m := range p.Meshes() {
		if m.Skin == nil {
			continue
		}
		mode := "gpu"
		if m.Skin.SoftwareSkinning {
			mode = "software"
		}
		fmt.Fprintf(w, "%s (%d joints, %s skinning)\n", m.Skin.Controller, len(m.Skin.Joints), mode)
		for i, j := range m.Skin.Joints {
			if j.Resolved() {
				fmt.Fprintf(w, "  %3d %-24s entity %d\n", i, j.Name, j.EntityIndex)
			} else {
				fmt.Fprintf(w, "  %3d %-24s unresolved\n", i, j.Name)
			}
		}
	}
	return nil
}

func cmdConfig(args []string, w io.Writer) error {
	set := flag.NewFlagSet("config", flag.ContinueOnError)
	flags := config.BindFlags(set)
	save := set.Bool("save", false, "Write the effective config to the user config directory")
	if err := set.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(flags)
	if err != nil {
		return err
	}
	if *save {
		if err := cfg.Save(); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}
		fmt.Fprintf(w, "# saved to %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func cmdPakList(args []string, w io.Writer) error {
	set := flag.NewFlagSet("pak-list", flag.ContinueOnError)
	limit := set.Int("n", 0, "Limit output to N files (0 = all)")
	if err := set.Parse(args); err != nil {
		return err
	}
	if set.NArg() < 1 {
		return errors.New("usage: meshtool pak-list <file.mpak> [pattern]")
	}

	archive, err := pak.Open(set.Arg(0))
	if err != nil {
		return err
	}
	defer archive.Close()

	pattern := ""
	if set.NArg() > 1 {
		pattern = strings.ToLower(set.Arg(1))
	}

	count := 0
	for _, f := range archive.List() {
		if pattern != "" {
			matched, _ := filepath.Match(pattern, filepath.Base(f))
			if !matched && !strings.Contains(f, pattern) {
				continue
			}
		}
		e, _ := archive.Stat(f)
		fmt.Fprintf(w, "%10d  %s\n", e.UncompressedSize, f)
		count++
		if *limit > 0 && count >= *limit {
			break
		}
	}
	return nil
}

func cmdPakCreate(args []string, w io.Writer) error {
	if len(args) < 2 {
		return errors.New("usage: meshtool pak-create <file.mpak> <dir>")
	}
	out, root := args[0], args[1]

	var paths []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return err
	}
	sort.Strings(paths)

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()

	pw := pak.NewWriter(f)
	for _, p := range paths {
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		if err := pw.Add(filepath.ToSlash(rel), data); err != nil {
			return err
		}
	}
	if err := pw.Close(); err != nil {
		return err
	}

	fmt.Fprintf(w, "Packed %d files into %s\n", len(paths), out)
	return f.Close()
}
