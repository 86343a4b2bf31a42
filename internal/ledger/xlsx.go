package ledger

import (
	"io"

	"github.com/opensource-finance/bonusledger/internal/domain"
	"github.com/xuri/excelize/v2"
)

// readXLSX returns the rows of the first worksheet. Raw cell values are
// used so that number formatting in the workbook cannot alter values.
func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &domain.MalformedInputError{Reason: "unreadable xlsx: " + err.Error()}
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, &domain.MalformedInputError{Reason: "workbook has no sheets"}
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, &domain.MalformedInputError{Reason: "unreadable sheet " + sheet + ": " + err.Error()}
	}
	return rows, nil
}
