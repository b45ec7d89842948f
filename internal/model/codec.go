package model

import (
	"errors"
	"fmt"
)

// ErrInvalidModel is returned for a model symbol or index outside the codec domain.
var ErrInvalidModel = errors.New("invalid model")

// Symbol identifies an exam model: '0', 'A'..'Z', or Unknown.
type Symbol byte

// Unknown is the model of an exam whose fingerprint could not be read.
const Unknown Symbol = 0

// MaxIndex is the index of model 'Z'.
const MaxIndex = 26

// Index returns the integer index of the symbol: '0' is 0, 'A'..'Z' are 1..26
// and Unknown is -1.
func (s Symbol) Index() (int, error) {
	switch {
	case s == Unknown:
		return -1, nil
	case s == '0':
		return 0, nil
	case s >= 'A' && s <= 'Z':
		return int(s-'A') + 1, nil
	}
	return 0, fmt.Errorf("%w: symbol %q", ErrInvalidModel, rune(s))
}

// SymbolFromIndex is the inverse of Symbol.Index.
func SymbolFromIndex(i int) (Symbol, error) {
	switch {
	case i == -1:
		return Unknown, nil
	case i == 0:
		return '0', nil
	case i >= 1 && i <= MaxIndex:
		return Symbol('A' + i - 1), nil
	}
	return Unknown, fmt.Errorf("%w: index %d", ErrInvalidModel, i)
}

// ParseSymbol reads a model as stored in a session or typed by a user.
// The empty string and "?" denote Unknown.
func ParseSymbol(s string) (Symbol, error) {
	switch {
	case s == "" || s == "?":
		return Unknown, nil
	case len(s) == 1:
		sym := Symbol(s[0])
		if _, err := sym.Index(); err != nil {
			return Unknown, err
		}
		return sym, nil
	}
	return Unknown, fmt.Errorf("%w: %q", ErrInvalidModel, s)
}

// String returns the symbol as a one-letter string, or "?" for Unknown.
func (s Symbol) String() string {
	if s == Unknown {
		return "?"
	}
	return string(rune(s))
}

// Valid reports whether the symbol is inside the codec domain.
func (s Symbol) Valid() bool {
	_, err := s.Index()
	return err == nil
}
