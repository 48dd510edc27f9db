package types

// ImportData is one import declaration of a file
type ImportData struct {
	Module string `json:"module"`
	// Kind is "alias", "dot" or "blank" for named imports, empty otherwise
	Kind  string `json:"kind,omitempty"`
	Alias string `json:"alias,omitempty"`
	Line  int    `json:"line"`
}

// TypeConformanceData describes a declared type and what it is built from.
// Superclass holds the named underlying type of a defined type
// (type Celsius float64 -> "float64"); Protocols holds embedded types.
type TypeConformanceData struct {
	TypeName   string     `json:"typeName"`
	TypeKind   SymbolKind `json:"typeKind"`
	Line       int        `json:"line"`
	Superclass string     `json:"superclass,omitempty"`
	Protocols  []string   `json:"protocols"`
}

// ExtensionData groups the methods declared on one receiver type within a file
type ExtensionData struct {
	ExtendedType string   `json:"extendedType"`
	Protocols    []string `json:"protocols"`
	Line         int      `json:"line"`
	MemberCount  int      `json:"memberCount"`
	Methods      []string `json:"methods,omitempty"`
}

// PropertyWrapperData is one struct tag key attached to a field
type PropertyWrapperData struct {
	PropertyName string `json:"propertyName"`
	WrapperType  string `json:"wrapperType"`
	TypeName     string `json:"typeName,omitempty"`
	Value        string `json:"value,omitempty"`
	Line         int    `json:"line"`
}

// AnalysisResult is everything extracted from a single source file
type AnalysisResult struct {
	FilePath    string
	PackageName string

	Symbols          []SymbolData
	Imports          []ImportData
	TypeConformances []TypeConformanceData
	Extensions       []ExtensionData
	PropertyWrappers []PropertyWrapperData

	// Errors encountered during parsing; results above may be partial
	Errors []ParseError
}

// ParseError represents an error that occurred during parsing
type ParseError struct {
	File    string
	Line    int
	Column  int
	Message string
}

// Error implements the error interface
func (pe *ParseError) Error() string {
	return pe.Message
}

// HasErrors returns true if any parsing errors occurred
func (r *AnalysisResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// AddError adds a parsing error to the result
func (r *AnalysisResult) AddError(file string, line, col int, msg string) {
	r.Errors = append(r.Errors, ParseError{
		File:    file,
		Line:    line,
		Column:  col,
		Message: msg,
	})
}

// Analyzer extracts structural information from one source file.
// Implementations must be safe for concurrent use.
type Analyzer interface {
	Analyze(path string) (*AnalysisResult, error)
}
