package ledger

import (
	"encoding/csv"
	"fmt"
	"io"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var amountPrinter = message.NewPrinter(language.English)

func formatAmount(v float64) string {
	return amountPrinter.Sprintf("%.2f", v)
}

// WriteStatementCSV streams the statement as CSV, one row per transaction
// framed by opening and closing balance rows.
func WriteStatementCSV(w io.Writer, stmt *Statement) error {
	cw := csv.NewWriter(w)

	header := []string{"Date", "Type", "Reference", "Description", "Debit", "Credit", "Balance"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("ledger: write csv header: %w", err)
	}

	opening := []string{
		stmt.PeriodStart.Format("2006-01-02"), "", "", "Opening Balance",
		"", "", formatAmount(stmt.OpeningBalance),
	}
	if err := cw.Write(opening); err != nil {
		return fmt.Errorf("ledger: write csv opening row: %w", err)
	}

	for _, tx := range stmt.Transactions {
		row := []string{
			tx.Date.Format("2006-01-02"),
			string(tx.Type),
			tx.Reference,
			tx.Description,
			formatAmount(tx.Debit),
			formatAmount(tx.Credit),
			formatAmount(tx.Balance),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("ledger: write csv row: %w", err)
		}
	}

	closing := []string{
		stmt.PeriodEnd.Format("2006-01-02"), "", "", "Closing Balance",
		formatAmount(stmt.TotalDebits),
		formatAmount(stmt.TotalCredits),
		formatAmount(stmt.ClosingBalance),
	}
	if err := cw.Write(closing); err != nil {
		return fmt.Errorf("ledger: write csv closing row: %w", err)
	}

	cw.Flush()
	return cw.Error()
}
