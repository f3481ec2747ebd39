package csvio

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/roach88/payflow/internal/ledger"
)

// amountPlaces is the number of decimal places in rendered balances.
// Input amounts carry at most four places, so this formatting is exact.
const amountPlaces = 4

// WriteBalances renders final account balances as CSV with the header
// `client,available,held,total,locked`. Rows are written in the order
// given; callers wanting deterministic output should pass a sorted slice
// (ledger.Processor.Balances already sorts by client id).
func WriteBalances(w io.Writer, balances []ledger.Balance) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"client", "available", "held", "total", "locked"}); err != nil {
		return err
	}
	for _, b := range balances {
		row := []string{
			strconv.FormatUint(uint64(b.Client), 10),
			b.Available.StringFixed(amountPlaces),
			b.Held.StringFixed(amountPlaces),
			b.Total.StringFixed(amountPlaces),
			strconv.FormatBool(b.Locked),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
