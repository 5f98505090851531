package validation

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSymbol(t *testing.T) {
	for _, s := range []string{"AAPL", "BRK.B", "KO 11/15/2024 66.00 P", "RDS-A"} {
		assert.NoError(t, ValidateSymbol(s), s)
	}
	for _, s := range []string{"", "aapl", "<b>X</b>", "$AAPL", strings.Repeat("A", MaxSymbolLength+1)} {
		assert.ErrorIs(t, ValidateSymbol(s), ErrValidationFailed, s)
	}
}

func TestValidateCurrencyCode(t *testing.T) {
	assert.NoError(t, ValidateCurrencyCode(""))
	assert.NoError(t, ValidateCurrencyCode("usd"))
	assert.ErrorIs(t, ValidateCurrencyCode("US"), ErrValidationFailed)
	assert.ErrorIs(t, ValidateCurrencyCode("EURO"), ErrValidationFailed)
}

func TestValidatePortfolioName(t *testing.T) {
	assert.NoError(t, ValidatePortfolioName("Retirement 2045"))
	assert.NoError(t, ValidatePortfolioName("Reforma_ação"))
	assert.ErrorIs(t, ValidatePortfolioName("   "), ErrValidationFailed)
	assert.ErrorIs(t, ValidatePortfolioName("a<b>"), ErrValidationFailed)
}

func TestValidateDateString(t *testing.T) {
	d, err := ValidateDateString(" 2024-02-29 ", "date")
	require.NoError(t, err)
	assert.Equal(t, 29, d.Day())

	_, err = ValidateDateString("2023-02-29", "date")
	assert.ErrorIs(t, err, ErrValidationFailed)
	_, err = ValidateDateString("02/01/2024", "date")
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "AT&T dividend", CleanText("  <b>AT&T</b> dividend\x00 "))
	assert.Equal(t, "'=SUM(A1)", SanitizeForFormulaInjection("=SUM(A1)"))
	assert.Equal(t, "plain", SanitizeForFormulaInjection("plain"))
}

func TestCheckXSSPatterns(t *testing.T) {
	assert.NoError(t, CheckXSSPatterns("Long-term holdings", "description", "test"))
	assert.ErrorIs(t, CheckXSSPatterns(`<script>alert(1)</script>`, "description", "test"), ErrValidationFailed)
	assert.ErrorIs(t, CheckXSSPatterns(`javascript:void(0)`, "description", "test"), ErrValidationFailed)
}

func TestValidateClientContentType(t *testing.T) {
	for _, ct := range []string{"text/csv", "text/csv; charset=utf-8", "application/vnd.ms-excel", "TEXT/PLAIN"} {
		assert.NoError(t, ValidateClientContentType(ct), ct)
	}
	for _, ct := range []string{"application/octet-stream", "image/png", ""} {
		assert.ErrorIs(t, ValidateClientContentType(ct), ErrValidationFailed, ct)
	}
}

func TestValidateFileContentByMagicBytes(t *testing.T) {
	r := bytes.NewReader([]byte("Date,Action,Symbol\n01/02/2024,Buy,VTI\n"))
	detected, err := ValidateFileContentByMagicBytes(r)
	require.NoError(t, err)
	assert.Equal(t, "text/plain", detected)

	rest, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(rest, []byte("Date,")), "reader is rewound")

	_, err = ValidateFileContentByMagicBytes(bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrValidationFailed)

	_, err = ValidateFileContentByMagicBytes(bytes.NewReader([]byte("PK\x03\x04\x14\x00\x00\x00")))
	assert.ErrorIs(t, err, ErrValidationFailed)
}
