package normalize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColumnNames(t *testing.T) {
	cases := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "lowercased and sanitized",
			in:   []string{"Full Name", "E-Mail Address"},
			want: []string{"full_name", "e_mail_address"},
		},
		{
			name: "duplicates suffixed",
			in:   []string{"name", "Name", "NAME"},
			want: []string{"name", "name_1", "name_2"},
		},
		{
			name: "reserved prefixed",
			in:   []string{"ctid", "xmin"},
			want: []string{"_ctid", "_xmin"},
		},
		{
			name: "leading digit prefixed",
			in:   []string{"2020_sales"},
			want: []string{"_2020_sales"},
		},
		{
			name: "empty becomes untitled",
			in:   []string{"", "!!!"},
			want: []string{"untitled_column", "untitled_column_1"},
		},
		{
			name: "greek transliterated",
			in:   []string{"Οδός", "Πόλη"},
			want: []string{"odos", "poli"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ColumnNames(tc.in))
		})
	}
}

func TestColumnNames_Truncation(t *testing.T) {
	long := strings.Repeat("a", 80)
	got := ColumnNames([]string{long, long})

	assert.Len(t, got[0], IdentifierMaxLength)
	assert.Equal(t, strings.Repeat("a", IdentifierMaxLength), got[0])
	assert.Len(t, got[1], IdentifierMaxLength)
	assert.Equal(t, strings.Repeat("a", IdentifierMaxLength-2)+"_1", got[1])
}
