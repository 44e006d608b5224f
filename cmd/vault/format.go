package main

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

const (
	lamportsPerSOL = 1_000_000_000
	solDecimals    = 9
)

var printer = message.NewPrinter(language.English)

// formatSOL renders lamports as a grouped SOL amount, e.g. "1,234.5 SOL".
func formatSOL(lamports uint64) string {
	sol := float64(lamports) / lamportsPerSOL
	return printer.Sprint(number.Decimal(sol, number.MaxFractionDigits(solDecimals))) + " SOL"
}

// formatLamports renders lamports with grouping, e.g. "890,880 lamports".
func formatLamports(lamports uint64) string {
	return printer.Sprintf("%d lamports", lamports)
}

func formatBalance(lamports uint64) string {
	return formatSOL(lamports) + " (" + formatLamports(lamports) + ")"
}

// parseSOL converts a decimal SOL amount, such as "2" or "0.25", to lamports
// without going through floating point.
func parseSOL(value string) (uint64, error) {
	whole, frac, hasFrac := strings.Cut(strings.TrimSpace(value), ".")
	if len(whole) == 0 && len(frac) == 0 {
		return 0, errors.Errorf("invalid amount %q", value)
	}
	if hasFrac && len(frac) > solDecimals {
		return 0, errors.Errorf("amount %q has more than %d decimals", value, solDecimals)
	}

	var wholeValue uint64
	if len(whole) > 0 {
		var err error
		wholeValue, err = strconv.ParseUint(whole, 10, 64)
		if err != nil {
			return 0, errors.Errorf("invalid amount %q", value)
		}
		if wholeValue > math.MaxUint64/lamportsPerSOL {
			return 0, errors.Errorf("amount %q is too large", value)
		}
	}

	var fracValue uint64
	if len(frac) > 0 {
		padded := frac + strings.Repeat("0", solDecimals-len(frac))
		var err error
		fracValue, err = strconv.ParseUint(padded, 10, 64)
		if err != nil {
			return 0, errors.Errorf("invalid amount %q", value)
		}
	}

	lamports := wholeValue * lamportsPerSOL
	if lamports > math.MaxUint64-fracValue {
		return 0, errors.Errorf("amount %q is too large", value)
	}
	return lamports + fracValue, nil
}
