package cache

import (
	"time"

	"github.com/dshills/gosight-mcp/pkg/types"
)

// Kind identifies one of the analysis payloads an entry can hold.
type Kind string

const (
	KindSymbols          Kind = "symbols"
	KindImports          Kind = "imports"
	KindTypeConformances Kind = "typeConformances"
	KindExtensions       Kind = "extensions"
	KindPropertyWrappers Kind = "propertyWrappers"
)

// AllKinds lists every payload kind.
var AllKinds = []Kind{
	KindSymbols,
	KindImports,
	KindTypeConformances,
	KindExtensions,
	KindPropertyWrappers,
}

// Entry holds the cached analysis of one file.
//
// A nil payload means the kind has not been computed; an empty slice is a
// computed, empty result. LastModified is the file's modification time when
// the payloads were stored; the entry is valid while the file's current
// mtime is not after it.
type Entry struct {
	FilePath     string    `json:"filePath"`
	LastModified time.Time `json:"lastModified"`
	LastAccessed time.Time `json:"lastAccessed"`

	Symbols          []types.SymbolData          `json:"symbols"`
	Imports          []types.ImportData          `json:"imports"`
	TypeConformances []types.TypeConformanceData `json:"typeConformances"`
	Extensions       []types.ExtensionData       `json:"extensions"`
	PropertyWrappers []types.PropertyWrapperData `json:"propertyWrappers"`
}

// Has reports whether the payload for kind is present.
func (e *Entry) Has(kind Kind) bool {
	switch kind {
	case KindSymbols:
		return e.Symbols != nil
	case KindImports:
		return e.Imports != nil
	case KindTypeConformances:
		return e.TypeConformances != nil
	case KindExtensions:
		return e.Extensions != nil
	case KindPropertyWrappers:
		return e.PropertyWrappers != nil
	}
	return false
}

// validAt reports whether the entry is still valid for a file with mtime.
func (e *Entry) validAt(mtime time.Time) bool {
	return !mtime.After(e.LastModified)
}

// clearPayloads drops every payload.
func (e *Entry) clearPayloads() {
	e.Symbols = nil
	e.Imports = nil
	e.TypeConformances = nil
	e.Extensions = nil
	e.PropertyWrappers = nil
}
