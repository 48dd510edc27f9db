package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSymbolDataValidate(t *testing.T) {
	tests := []struct {
		name    string
		sym     SymbolData
		wantErr error
	}{
		{"valid function", SymbolData{Name: "Run", Kind: KindFunction, Line: 3}, nil},
		{"valid method", SymbolData{Name: "Run", Kind: KindMethod, Line: 3, Receiver: "Server"}, nil},
		{"missing name", SymbolData{Kind: KindVar, Line: 1}, ErrEmptySymbolName},
		{"unknown kind", SymbolData{Name: "x", Kind: "macro", Line: 1}, ErrInvalidSymbolKind},
		{"zero line", SymbolData{Name: "x", Kind: KindConst}, ErrInvalidLine},
		{"method without receiver", SymbolData{Name: "Run", Kind: KindMethod, Line: 2}, ErrMissingReceiver},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sym.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSymbolDataExported(t *testing.T) {
	assert.True(t, SymbolData{Name: "Server"}.Exported())
	assert.False(t, SymbolData{Name: "server"}.Exported())
}

func TestAnalysisResultErrors(t *testing.T) {
	var r AnalysisResult
	assert.False(t, r.HasErrors())

	r.AddError("a.go", 3, 1, "expected declaration")
	assert.True(t, r.HasErrors())
	assert.Equal(t, "expected declaration", r.Errors[0].Error())
}
