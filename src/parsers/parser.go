// backend/src/parsers/parser.go
package parsers

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/username/folioledger/backend/src/models"
	"github.com/username/folioledger/backend/src/parsers/etrade"
	"github.com/username/folioledger/backend/src/parsers/fidelity"
	"github.com/username/folioledger/backend/src/parsers/generic"
	"github.com/username/folioledger/backend/src/parsers/schwab"
)

// Parser turns one broker export into canonical transactions. Parsers only decode the
// file; validation and expansion happen in processors.TransactionProcessor.
type Parser interface {
	Parse(file io.Reader) ([]models.CanonicalTransaction, error)
}

var registry = map[string]func() Parser{
	schwab.Source:   func() Parser { return schwab.NewParser() },
	etrade.Source:   func() Parser { return etrade.NewParser() },
	fidelity.Source: func() Parser { return fidelity.NewParser() },
	generic.Source:  func() Parser { return generic.NewParser() },
}

// GetParser resolves a source name ("schwab", "etrade", "fidelity", "generic").
// Matching is case-insensitive and ignores "-" so "E-Trade" works too.
func GetParser(source string) (Parser, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(source)), "-", "")
	newParser, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("unsupported source %q (supported: %s)", source, strings.Join(Sources(), ", "))
	}
	return newParser(), nil
}

// Sources lists the registered source names in alphabetical order.
func Sources() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
