package engine

import (
	"encoding/csv"
	"fmt"
	"fundbuilder/types"
	"io"
	"os"
	"path/filepath"
)

// CSVReportWriter renders finished asset reports as CSV files, one per
// valuation date, in Dir.
type CSVReportWriter struct {
	Dir string
}

func (c *CSVReportWriter) WriteAssetReport(report *types.AssetReport) error {
	name := fmt.Sprintf("assets_%s_%s.csv", report.AccountName.Name, report.ValuationDate.Format("2006-01-02"))
	f, err := os.Create(filepath.Join(c.Dir, name))
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	defer f.Close()

	return writeAssetReportCSV(f, report)
}

// writeAssetReportCSV writes a report to any io.Writer as CSV.
// You can pass os.Stdout for debugging, or a file.
func writeAssetReportCSV(w io.Writer, report *types.AssetReport) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{
		"name",
		"quantity",
		"average_price",
		"total_cost",
		"share_price",
		"net_selling_value",
		"month_change",
		"month_change_ratio",
		"dividend",
		"profit_loss",
		"total_return",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, pos := range report.Assets {
		record := []string{
			pos.Name,
			pos.Quantity.String(),
			pos.AveragePrice.String(),
			pos.TotalCost.String(),
			pos.SharePrice.String(),
			pos.NetSellingValue.String(),
			pos.MonthChange.String(),
			pos.MonthChangeRatio.String(),
			pos.Dividend.String(),
			pos.ProfitLoss.String(),
			pos.TotalReturn.String(),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}

	summary := [][]string{
		{"bank_balance", report.BankBalance.String()},
		{"total_assets", report.TotalAssets.String()},
		{"total_liabilities", report.TotalLiabilities.String()},
		{"net_assets", report.NetAssets.String()},
		{"issued_units", report.IssuedUnits.String()},
		{"unit_price", report.UnitPrice.String()},
		{"monthly_pnl", report.MonthlyPnL.String()},
		{"ytd_performance", report.YearToDatePerformance.String()},
	}
	for _, row := range summary {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write summary row: %w", err)
		}
	}

	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
