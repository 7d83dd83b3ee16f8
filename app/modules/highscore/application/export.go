package highscoreservice

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

// LeaderboardSheet is the sheet name used by leaderboard exports.
const LeaderboardSheet = "Leaderboard"

var leaderboardHeader = []any{"Rank", "Player", "Address", "Score", "Created", "Updated"}

// ExportLeaderboardXLSX writes records, best first, to a single-sheet workbook.
func ExportLeaderboardXLSX(ledgerID string, generatedAt time.Time, records []ScoreRecordView) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), LeaderboardSheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	if err := f.SetDocProps(&excelize.DocProperties{
		Title:       "Highscore leaderboard",
		Subject:     ledgerID,
		Created:     generatedAt.UTC().Format(time.RFC3339),
		Description: fmt.Sprintf("Top %d records of ledger %s", len(records), ledgerID),
	}); err != nil {
		return nil, fmt.Errorf("failed to set document properties: %w", err)
	}

	if err := f.SetSheetRow(LeaderboardSheet, "A1", &leaderboardHeader); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}
	if err := f.SetCellStyle(LeaderboardSheet, "A1", "F1", bold); err != nil {
		return nil, fmt.Errorf("failed to style header: %w", err)
	}

	for i, rec := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := []any{
			i + 1,
			rec.Owner.String(),
			rec.Address.String(),
			int64(rec.Score),
			rec.CreatedAt.UTC().Format(time.RFC3339),
			rec.UpdatedAt.UTC().Format(time.RFC3339),
		}
		if err := f.SetSheetRow(LeaderboardSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	if err := f.SetColWidth(LeaderboardSheet, "B", "C", 60); err != nil {
		return nil, fmt.Errorf("failed to size columns: %w", err)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
