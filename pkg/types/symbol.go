package types

import "go/token"

// SymbolKind names the kind of a declared symbol
type SymbolKind string

const (
	KindFunction  SymbolKind = "function"
	KindMethod    SymbolKind = "method"
	KindStruct    SymbolKind = "struct"
	KindInterface SymbolKind = "interface"
	KindType      SymbolKind = "type"
	KindConst     SymbolKind = "const"
	KindVar       SymbolKind = "var"
	KindField     SymbolKind = "field"
)

// Valid reports whether k is one of the known kinds
func (k SymbolKind) Valid() bool {
	switch k {
	case KindFunction, KindMethod, KindStruct, KindInterface, KindType, KindConst, KindVar, KindField:
		return true
	}
	return false
}

// SymbolData is a declared symbol as stored in the file cache
type SymbolData struct {
	Name string     `json:"name"`
	Kind SymbolKind `json:"kind"`
	Line int        `json:"line"` // 1-based

	// Optional detail: signature for functions, receiver for methods and fields
	Detail   string `json:"detail,omitempty"`
	Receiver string `json:"receiver,omitempty"`
}

// Exported reports whether the symbol is visible outside its package
func (s SymbolData) Exported() bool {
	return token.IsExported(s.Name)
}

// Validate checks the record is complete enough to be cached
func (s SymbolData) Validate() error {
	if s.Name == "" {
		return ErrEmptySymbolName
	}
	if !s.Kind.Valid() {
		return ErrInvalidSymbolKind
	}
	if s.Line < 1 {
		return ErrInvalidLine
	}
	// Methods must have a receiver
	if s.Kind == KindMethod && s.Receiver == "" {
		return ErrMissingReceiver
	}
	return nil
}
