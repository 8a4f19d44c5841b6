package domain

import (
	"strconv"

	dErrors "poe/pkg/domain-errors"
)

// MaxAccountIDLength bounds account identifiers accepted at trust boundaries.
const MaxAccountIDLength = 128

// AccountID identifies an authenticated ledger participant (the verified
// signer of an operation). It is opaque to the registry; equality is
// byte-wise.
type AccountID string

// ParseAccountID validates an account identifier at a trust boundary.
// Accepted characters are ASCII letters, digits and ". _ - : @". Surrounding
// whitespace is not trimmed, so " alice" and "alice" are never confused.
func ParseAccountID(s string) (AccountID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "account id is required")
	}
	if len(s) > MaxAccountIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "account id exceeds "+strconv.Itoa(MaxAccountIDLength)+" bytes")
	}
	for i := 0; i < len(s); i++ {
		if !isAccountChar(s[i]) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "account id contains invalid character")
		}
	}
	return AccountID(s), nil
}

func isAccountChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '.', c == '_', c == '-', c == ':', c == '@':
		return true
	}
	return false
}

func (a AccountID) String() string { return string(a) }

// IsNil reports whether the account id is empty.
func (a AccountID) IsNil() bool { return a == "" }

// BlockNumber is the ledger height: a monotonically non-decreasing counter
// supplied by the host.
type BlockNumber uint64

func (b BlockNumber) String() string { return strconv.FormatUint(uint64(b), 10) }

// ParseBlockNumber parses a decimal block height.
func ParseBlockNumber(s string) (BlockNumber, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid block number")
	}
	return BlockNumber(n), nil
}
