// Package formats parses model files into scene documents.
//
// Supported formats:
//   - COLLADA 1.4 (.dae), see dae.go
//   - SMESH binary scene graph (.smesh), see smesh.go
//
// Parsers keep values as authored. Axis and unit conversion happen later in
// the import pipeline.
package formats
