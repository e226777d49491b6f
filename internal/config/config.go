// Package config handles importer configuration loading and management.
package config

// Config holds all importer settings.
type Config struct {
	Import  ImportConfig  `yaml:"import"`
	Sources SourcesConfig `yaml:"sources"`
	Logging LoggingConfig `yaml:"logging"`
}

// ImportConfig holds mesh import settings.
type ImportConfig struct {
	LoadTexCoord2 bool    `yaml:"load_texcoord2"`  // read the second UV set
	LoadNormalMap bool    `yaml:"load_normal_map"` // generate tangent frames
	FlipNormalMap bool    `yaml:"flip_normal_map"` // invert tangent handedness
	GPUBonesCount int     `yaml:"gpu_bones_count"` // joints at which skinning falls back to software
	MaxUVTile     float32 `yaml:"max_uv_tile"`
	NameEncoding  string  `yaml:"name_encoding"` // charset of names in binary meshes
	Cache         bool    `yaml:"cache"`         // keep imported prefabs by path
}

// SourcesConfig holds where asset bytes come from. Later entries win.
type SourcesConfig struct {
	Dirs []string `yaml:"dirs"`
	Paks []string `yaml:"paks"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Import: ImportConfig{
			LoadTexCoord2: false,
			GPUBonesCount: 64,
			MaxUVTile:     16,
			NameEncoding:  "utf-8",
			Cache:         true,
		},
		Sources: SourcesConfig{
			Dirs: []string{"."},
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}
