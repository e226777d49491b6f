package config

import (
	"flag"
	"strings"
)

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string {
	return strings.Join(*s, ",")
}

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// Flags holds command-line overrides bound to a flag set.
type Flags struct {
	Config    string
	Debug     bool
	TexCoord2 bool
	NormalMap bool
	FlipNMap  bool
	GPUBones  int
	Encoding  string
	NoCache   bool
	Dirs      stringList
	Paks      stringList
}

// BindFlags registers the config flags on fs.
func BindFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}
	fs.StringVar(&f.Config, "config", "", "Path to config file")
	fs.BoolVar(&f.Debug, "debug", false, "Enable debug logging")
	fs.BoolVar(&f.TexCoord2, "texcoord2", false, "Load the second texcoord set")
	fs.BoolVar(&f.NormalMap, "normal-map", false, "Generate tangent frames for normal mapping")
	fs.BoolVar(&f.FlipNMap, "flip-normal-map", false, "Invert the tangent frame handedness")
	fs.IntVar(&f.GPUBones, "gpu-bones", 0, "Joint count that forces software skinning")
	fs.StringVar(&f.Encoding, "encoding", "", "Name encoding for binary meshes (e.g. euc-kr)")
	fs.BoolVar(&f.NoCache, "no-cache", false, "Disable the prefab cache")
	fs.Var(&f.Dirs, "dir", "Asset directory (repeatable)")
	fs.Var(&f.Paks, "pak", "MPAK archive (repeatable)")
	return f
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config, f *Flags) {
	if f == nil {
		return
	}
	if f.Debug {
		cfg.Logging.Level = "debug"
	}
	if f.TexCoord2 {
		cfg.Import.LoadTexCoord2 = true
	}
	if f.NormalMap {
		cfg.Import.LoadNormalMap = true
	}
	if f.FlipNMap {
		cfg.Import.FlipNormalMap = true
	}
	if f.GPUBones > 0 {
		cfg.Import.GPUBonesCount = f.GPUBones
	}
	if f.Encoding != "" {
		cfg.Import.NameEncoding = f.Encoding
	}
	if f.NoCache {
		cfg.Import.Cache = false
	}
	cfg.Sources.Dirs = append(cfg.Sources.Dirs, f.Dirs...)
	cfg.Sources.Paks = append(cfg.Sources.Paks, f.Paks...)
}
