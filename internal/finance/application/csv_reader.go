package application

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	financeErrors "github.com/sebuszqo/ClaritySpend/internal/finance/errors"
	"github.com/shopspring/decimal"
)

// Row is one usable line of an uploaded statement.
type Row struct {
	Line        int
	Description string
	Amount      decimal.Decimal
}

// ReadRows parses "description,amount[,...]" records. Records with fewer
// than two fields are skipped and fields after the amount are ignored. The
// first amount that is not a decimal number fails the whole read.
func ReadRows(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows []Row
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if len(record) < 2 {
			continue
		}

		line, _ := reader.FieldPos(0)
		amountText := strings.TrimSpace(record[1])
		amount, err := decimal.NewFromString(amountText)
		if err != nil {
			return nil, &financeErrors.MalformedUploadError{Line: line, Value: amountText, Err: err}
		}
		rows = append(rows, Row{
			Line:        line,
			Description: record[0],
			Amount:      amount,
		})
	}
	return rows, nil
}
