package layout

import (
	"errors"
	"fmt"

	"github.com/pavelanni/omrgrade/internal/model"
)

var (
	// ErrEncodingOverflow is returned when a model index needs more bits than the sheet has.
	ErrEncodingOverflow = errors.New("model index does not fit in the fingerprint")
	// ErrAmbiguousFingerprint is returned when both rows of a column look the same.
	ErrAmbiguousFingerprint = errors.New("ambiguous fingerprint column")
	ErrFingerprintSize      = errors.New("wrong number of fingerprint columns")
)

// EncodeBits returns the tables*choices bits of index, ordered by table and
// then by choice column. Bit b is (index >> b) & 1.
func EncodeBits(index, tables, choices int) ([]bool, error) {
	if index < 0 {
		return nil, fmt.Errorf("%w: index %d", model.ErrInvalidModel, index)
	}
	n := tables * choices
	if n < 63 && index >= 1<<n {
		return nil, fmt.Errorf("%w: index %d, %d bits", ErrEncodingOverflow, index, n)
	}
	bits := make([]bool, n)
	for b := range bits {
		bits[b] = b < 63 && (index>>b)&1 == 1
	}
	return bits, nil
}

// DecodeBits is the inverse of EncodeBits.
func DecodeBits(bits []bool) int {
	index := 0
	for b, bit := range bits {
		if bit {
			index |= 1 << b
		}
	}
	return index
}

// Fits reports whether a model can be printed on a sheet with the given tables and choices.
func Fits(sym model.Symbol, tables, choices int) bool {
	idx, err := sym.Index()
	if err != nil || idx < 0 {
		return false
	}
	_, err = EncodeBits(idx, tables, choices)
	return err == nil
}

// Marks returns, for each fingerprint row, which columns carry a mark.
// Exactly one of the two rows is marked per column: row 1 for a 1 bit,
// row 0 for a 0 bit.
func Marks(bits []bool) [2][]bool {
	var marks [2][]bool
	for row := range marks {
		marks[row] = make([]bool, len(bits))
		for b, bit := range bits {
			marks[row][b] = (row == 1) != !bit
		}
	}
	return marks
}

// MarkPair is the measured darkness of the two fingerprint cells of one column.
type MarkPair struct {
	Row0 float64 `json:"row0"`
	Row1 float64 `json:"row1"`
}

// PairsFromMarks turns rendered marks into fully dark or fully light pairs.
func PairsFromMarks(marks [2][]bool) []MarkPair {
	pairs := make([]MarkPair, len(marks[0]))
	for i := range pairs {
		if marks[0][i] {
			pairs[i].Row0 = 1
		}
		if marks[1][i] {
			pairs[i].Row1 = 1
		}
	}
	return pairs
}

// DecodeIndex recovers the model index from the fingerprint columns of a
// capture. Each bit is decided by which of its two cells is darker.
func DecodeIndex(pairs []MarkPair, tables, choices int) (int, error) {
	if len(pairs) != tables*choices {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrFingerprintSize, len(pairs), tables*choices)
	}
	bits := make([]bool, len(pairs))
	for i, p := range pairs {
		if p.Row0 == p.Row1 {
			return 0, fmt.Errorf("%w: column %d", ErrAmbiguousFingerprint, i)
		}
		bits[i] = p.Row1 > p.Row0
	}
	return DecodeBits(bits), nil
}

// DecodeFingerprint recovers the model symbol from the fingerprint columns of a capture.
func DecodeFingerprint(pairs []MarkPair, tables, choices int) (model.Symbol, error) {
	idx, err := DecodeIndex(pairs, tables, choices)
	if err != nil {
		return model.Unknown, err
	}
	return model.SymbolFromIndex(idx)
}
