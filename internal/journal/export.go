package journal

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/zombor/kassir/internal/draft"
)

const exportSheet = "Чеки"

var exportHeaders = []any{"Дата", "Тип операции", "Запрос", "Сумма", "Статус", "UUID", "Ссылка", "Ошибка"}

// ExportXLSX writes all of a user's receipts as a spreadsheet
func (j *Journal) ExportXLSX(ctx context.Context, userID string, w io.Writer) error {
	var entries []Entry
	err := j.db.SelectContext(ctx, &entries, `SELECT id, user_id, external_id, uuid, permalink, operation_type,
            user_message, total, success, error_message, payload, created_at
        FROM receipts WHERE user_id = ?
        ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return fmt.Errorf("listing receipts: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()
	f.SetSheetName("Sheet1", exportSheet)

	if err := f.SetSheetRow(exportSheet, "A1", &exportHeaders); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating style: %w", err)
	}
	f.SetCellStyle(exportSheet, "A1", "H1", bold)

	failed, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Color: "9A0511"}})
	if err != nil {
		return fmt.Errorf("creating style: %w", err)
	}

	for i, e := range entries {
		status := "Успешно"
		if !e.Success {
			status = "Ошибка"
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []any{
			e.CreatedAt().Format("2006-01-02 15:04:05"),
			draft.OperationType(e.OperationType).Label(),
			e.UserMessage,
			e.Total.InexactFloat64(),
			status,
			e.UUID,
			e.Permalink,
			e.ErrorMessage,
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
		if !e.Success {
			statusCell, _ := excelize.CoordinatesToCellName(5, i+2)
			f.SetCellStyle(exportSheet, statusCell, statusCell, failed)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing spreadsheet: %w", err)
	}
	return nil
}
