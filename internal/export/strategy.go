// WaterWatch - Geotagged Water Quality Measurement Collection and Export
// Copyright 2026 R. Taormina (rtaormina)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rtaormina/waterwatch

package export

import (
	"io"
	"strings"
)

// Strategy renders a record stream into one wire format.
//
// Export writes records as they are pulled from the source, so handing it
// the HTTP response writer streams the export; handing it a buffer
// produces the fully-buffered variant. XML always buffers internally
// because pretty-printing needs the whole tree.
type Strategy interface {
	// Name is the canonical format token, e.g. "csv".
	Name() string
	// ContentType is the response Content-Type for this format.
	ContentType() string
	// Streaming reports whether the format supports incremental output.
	Streaming() bool
	// Export renders every record from source, injecting side data into
	// each, and returns the number of records written.
	Export(w io.Writer, source RecordSource, side *SideData) (int, error)
}

// ForFormat returns the strategy for a format token. Unrecognized tokens
// fall open to JSON rather than erroring.
func ForFormat(format string) Strategy {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv":
		return &CSVStrategy{}
	case "xml":
		return &XMLStrategy{}
	case "geojson":
		return &GeoJSONStrategy{}
	case "json":
		return &JSONStrategy{}
	default:
		return &JSONStrategy{}
	}
}

// KnownFormat reports whether the token names a supported format exactly.
func KnownFormat(format string) bool {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv", "json", "xml", "geojson":
		return true
	default:
		return false
	}
}
