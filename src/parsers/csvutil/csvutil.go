// backend/src/parsers/csvutil/csvutil.go
package csvutil

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OptionMultiplier is the number of shares one listed equity option contract covers.
const OptionMultiplier = 100

var ErrHeaderNotFound = errors.New("header row not found")

// NewReader returns a csv.Reader tolerant of broker quirks: ragged rows, stray quotes
// and padding after separators.
func NewReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	return reader
}

// Header maps normalized column names to their index.
type Header map[string]int

func normalizeColumn(name string) string {
	name = strings.TrimPrefix(name, "\ufeff")
	return strings.ToLower(strings.TrimSpace(strings.Trim(name, `"`)))
}

// NewHeader indexes a header record.
func NewHeader(record []string) Header {
	h := make(Header, len(record))
	for i, name := range record {
		h[normalizeColumn(name)] = i
	}
	return h
}

// Get returns the trimmed value of column name, or "" when the column or cell is missing.
func (h Header) Get(record []string, name string) string {
	i, ok := h[normalizeColumn(name)]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// Has reports whether every named column is present.
func (h Header) Has(names ...string) bool {
	for _, name := range names {
		if _, ok := h[normalizeColumn(name)]; !ok {
			return false
		}
	}
	return true
}

// Row is a data record with its 1-based position among the file's data rows.
type Row struct {
	Number int
	Fields []string
}

// Raw joins the fields back into a single line for hashing and auditing.
func (r Row) Raw() string {
	return strings.Join(r.Fields, ",")
}

// ReadTable skips preamble lines until a record whose first column equals firstColumn,
// then returns the header and the data rows that follow. stop, when non-nil, ends the
// table at the first record it matches (footers and disclaimers).
func ReadTable(r io.Reader, firstColumn string, stop func([]string) bool) (Header, []Row, error) {
	reader := NewReader(r)
	want := normalizeColumn(firstColumn)

	var header Header
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return nil, nil, fmt.Errorf("%w: expected a %q column", ErrHeaderNotFound, firstColumn)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read CSV header: %w", err)
		}
		if len(record) > 0 && normalizeColumn(record[0]) == want {
			header = NewHeader(record)
			break
		}
	}

	var rows []Row
	n := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read CSV record: %w", err)
		}
		if isBlank(record) {
			continue
		}
		if stop != nil && stop(record) {
			break
		}
		n++
		rows = append(rows, Row{Number: n, Fields: record})
	}
	return header, rows, nil
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// Reverse flips rows in place. Broker exports are newest-first.
func Reverse(rows []Row) {
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
}

// ParseAmount parses a money or quantity cell such as "$1,234.50", "-$16.19" or "(3.00)".
// Empty cells and "--" yield 0.
func ParseAmount(s string) (float64, error) {
	cleaned := strings.TrimSpace(strings.Trim(s, `"`))
	if cleaned == "" || cleaned == "--" {
		return 0, nil
	}
	negative := false
	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		negative = true
		cleaned = strings.TrimSuffix(strings.TrimPrefix(cleaned, "("), ")")
	}
	if strings.HasPrefix(cleaned, "-") {
		negative = !negative
		cleaned = strings.TrimPrefix(cleaned, "-")
	}
	cleaned = strings.TrimPrefix(cleaned, "+")
	cleaned = strings.ReplaceAll(cleaned, "$", "")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimSpace(cleaned)

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	if negative {
		d = d.Neg()
	}
	return d.InexactFloat64(), nil
}

// ParseDate tries each layout in turn. Schwab style " as of MM/DD/YYYY" suffixes are dropped.
func ParseDate(s string, layouts ...string) (time.Time, error) {
	cleaned := strings.TrimSpace(s)
	if i := strings.Index(cleaned, " as of"); i >= 0 {
		cleaned = strings.TrimSpace(cleaned[:i])
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

var cashEquivalents = map[string]bool{
	"SWVXX": true, "SNVXX": true, "SNSXX": true, "SNOXX": true,
	"SPAXX": true, "SPRXX": true, "FDRXX": true, "FZFXX": true,
	"VMFXX": true, "CORE": true,
}

// IsCashEquivalent reports whether a symbol is a sweep or money market fund.
func IsCashEquivalent(symbol, description string) bool {
	if cashEquivalents[strings.ToUpper(strings.TrimSpace(symbol))] {
		return true
	}
	desc := strings.ToUpper(description)
	return strings.Contains(desc, "MONEY MARKET") || strings.Contains(desc, "VALUE ADVANTAGE MONEY")
}

// OptionContract is the decoded form of a broker option symbol.
type OptionContract struct {
	Underlying string
	Expiry     time.Time
	Strike     float64
	Type       string // "call" or "put"
}

// Symbol renders the contract in the "UND MM/DD/YYYY STRIKE C|P" form used as ledger symbol.
func (c OptionContract) Symbol() string {
	letter := "C"
	if c.Type == "put" {
		letter = "P"
	}
	return fmt.Sprintf("%s %s %s %s", c.Underlying, c.Expiry.Format("01/02/2006"),
		decimal.NewFromFloat(c.Strike).StringFixed(2), letter)
}

var (
	// KO 11/15/2024 66.00 P
	slashOptionRe = regexp.MustCompile(`^([A-Z][A-Z0-9.]*)\s+(\d{2}/\d{2}/\d{4})\s+([\d.]+)\s+([CP])$`)
	// -KO241115P66 or KO241115P66.5
	occOptionRe = regexp.MustCompile(`^-?([A-Z][A-Z0-9.]*?)(\d{6})([CP])([\d.]+)$`)
	// COF Mar 21 '25 $210 Call
	textOptionRe = regexp.MustCompile(`(?i)^([A-Z][A-Z0-9.]*)\s+([A-Za-z]{3})\s+(\d{1,2})\s+'(\d{2})\s+\$([\d.]+)\s+(call|put)\b`)
)

func optionType(letter string) string {
	if strings.HasPrefix(strings.ToUpper(letter), "P") {
		return "put"
	}
	return "call"
}

// ParseOptionSymbol decodes the option symbol spellings used by Schwab, Fidelity and E-Trade.
func ParseOptionSymbol(s string) (OptionContract, bool) {
	cleaned := strings.TrimSpace(s)
	upper := strings.ToUpper(cleaned)

	if m := slashOptionRe.FindStringSubmatch(upper); m != nil {
		expiry, err := time.Parse("01/02/2006", m[2])
		strike, serr := ParseAmount(m[3])
		if err == nil && serr == nil {
			return OptionContract{Underlying: m[1], Expiry: expiry, Strike: strike, Type: optionType(m[4])}, true
		}
	}
	if m := occOptionRe.FindStringSubmatch(upper); m != nil {
		expiry, err := time.Parse("060102", m[2])
		strike, serr := ParseAmount(m[4])
		if err == nil && serr == nil {
			return OptionContract{Underlying: m[1], Expiry: expiry, Strike: strike, Type: optionType(m[3])}, true
		}
	}
	if m := textOptionRe.FindStringSubmatch(cleaned); m != nil {
		expiry, err := time.Parse("Jan 2 06", fmt.Sprintf("%s%s %s %s", strings.ToUpper(m[2][:1]), strings.ToLower(m[2][1:]), m[3], m[4]))
		strike, serr := ParseAmount(m[5])
		if err == nil && serr == nil {
			return OptionContract{Underlying: strings.ToUpper(m[1]), Expiry: expiry, Strike: strike, Type: optionType(m[6])}, true
		}
	}
	return OptionContract{}, false
}
