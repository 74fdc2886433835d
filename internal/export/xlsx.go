// Package export renders aggregated opportunities as spreadsheet workbooks
// for hand-off to analysts.
package export

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/vantdge/evidence-cli/internal/model"
)

var opportunityHeader = []string{
	"Rank", "Drug", "Disease", "Aggregate Score", "Total Patients",
	"Studies", "Avg Response Rate", "Consistency", "Evidence Level",
	"Signal", "Best Paper", "Paper IDs",
}

// Workbook builds one sheet per drug, rows ordered by rank. An empty
// opportunity set yields a single empty "Opportunities" sheet rather than
// an invalid workbook.
func Workbook(opps []model.Opportunity) (*xlsx.File, error) {
	f := xlsx.NewFile()

	byDrug := make(map[string][]model.Opportunity)
	var drugs []string
	for _, opp := range opps {
		if _, seen := byDrug[opp.DrugKey]; !seen {
			drugs = append(drugs, opp.DrugKey)
		}
		byDrug[opp.DrugKey] = append(byDrug[opp.DrugKey], opp)
	}
	sort.Strings(drugs)

	if len(drugs) == 0 {
		if _, err := f.AddSheet("Opportunities"); err != nil {
			return nil, eris.Wrap(err, "export: add sheet")
		}
		return f, nil
	}

	for _, drug := range drugs {
		sheet, err := f.AddSheet(sheetName(drug))
		if err != nil {
			return nil, eris.Wrap(err, fmt.Sprintf("export: add sheet %s", drug))
		}

		header := sheet.AddRow()
		for _, h := range opportunityHeader {
			header.AddCell().SetString(h)
		}

		rows := byDrug[drug]
		sort.Slice(rows, func(i, j int) bool { return rows[i].Rank < rows[j].Rank })
		for _, opp := range rows {
			writeRow(sheet.AddRow(), opp)
		}
	}
	return f, nil
}

func writeRow(row *xlsx.Row, opp model.Opportunity) {
	row.AddCell().SetInt(opp.Rank)
	row.AddCell().SetString(opp.DrugKey)
	row.AddCell().SetString(opp.Disease)
	row.AddCell().SetFloatWithFormat(opp.AggregateScore, "0.00")
	row.AddCell().SetInt(opp.TotalPatients)
	row.AddCell().SetInt(opp.StudyCount)
	if opp.AvgResponseRate != nil {
		row.AddCell().SetFloatWithFormat(*opp.AvgResponseRate, "0.0")
	} else {
		row.AddCell().SetString("")
	}
	row.AddCell().SetString(string(opp.Consistency))
	row.AddCell().SetString(opp.EvidenceLevel)
	row.AddCell().SetString(string(opp.Signal))
	row.AddCell().SetString(opp.BestPaperID)
	row.AddCell().SetString(strings.Join(opp.PaperIDs, ", "))
}

// sheetName truncates to the 31-character limit xlsx imposes.
func sheetName(drug string) string {
	if len(drug) > 31 {
		return drug[:31]
	}
	return drug
}
