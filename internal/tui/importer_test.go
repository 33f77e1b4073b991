package tui

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsGenericCSV(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		data string
		want bool
	}{
		{"header", "Date,Description,Amount\n2025-01-01,X,-1\n", true},
		{"iso rows", "2025-01-01,X,-1\n", true},
		{"anz rows", "3/01/2025,-12.50,COFFEE\n", false},
		{"empty", "", true},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, isGenericCSV([]byte(tc.data)), tc.name)
	}
}
