package vision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReading(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    float64
		wantErr error
	}{
		{name: "plain decimal", text: "1234.5", want: 1234.5},
		{name: "surrounding whitespace", text: "  00821.07\n", want: 821.07},
		{name: "comma decimal", text: "1234,5", want: 1234.5},
		{name: "sentence with one number", text: "The meter shows 4521.", want: 4521},
		{name: "code fence", text: "```\n98.25\n```", want: 98.25},
		{name: "unreadable", text: "cannot read", wantErr: ErrNoNumber},
		{name: "sentinel answer", text: "UNREADABLE", wantErr: ErrNoNumber},
		{name: "empty", text: "   ", wantErr: ErrNoNumber},
		{name: "two numbers", text: "either 12 or 13", wantErr: ErrAmbiguousNumber},
		{name: "negative", text: "-12.5", wantErr: ErrNegativeNumber},
		{name: "cubic metres suffix", text: "01234 m3", want: 1234},
		{name: "attached unit", text: "0123.45m3", want: 123.45},
		{name: "superscript unit", text: "4521 m³", want: 4521},
		{name: "caret unit", text: "88.5 M^3", want: 88.5},
		{name: "cubic feet", text: "Reading: 00077 ft3.", want: 77},
		{name: "unit before value", text: "m3: 310", want: 310},
		{name: "two numbers with unit", text: "12 m3 or 13 m3", wantErr: ErrAmbiguousNumber},
		{name: "digit inside a word is kept", text: "item3 shows 40", wantErr: ErrAmbiguousNumber},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseReading(tt.text)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
