package bot

import (
	"bytes"
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"appealbot/internal/locales"
)

const (
	exportContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	sheetUsage = "Usage"
	sheetChats = "Chats"
)

// exportFileName names an export taken at now
func exportFileName(now time.Time) string {
	return fmt.Sprintf("appeals_%s.xlsx", now.Format("20060102_150405"))
}

// buildExport writes the usage log and the chat directory into a workbook
func (b *Bot) buildExport(ctx context.Context) (*bytes.Buffer, error) {
	usage, err := b.db.ListUsage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage: %w", err)
	}
	chats, err := b.db.ListChats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetUsage); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(sheetChats); err != nil {
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#25D366"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, err
	}

	usageRows := make([][]any, 0, len(usage))
	for i, entry := range usage {
		usageRows = append(usageRows, []any{i + 1, entry.UserID, entry.Timestamp.UTC().Format(time.RFC3339)})
	}
	if err := writeSheet(f, sheetUsage, headerStyle, []string{"No", "User ID", "Timestamp (UTC)"}, usageRows); err != nil {
		return nil, err
	}

	chatRows := make([][]any, 0, len(chats))
	for _, chat := range chats {
		chatRows = append(chatRows, []any{chat.ID, chat.Type, chat.Title})
	}
	if err := writeSheet(f, sheetChats, headerStyle, []string{"Chat ID", "Type", "Title"}, chatRows); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf, nil
}

func writeSheet(f *excelize.File, sheet string, headerStyle int, headers []string, rows [][]any) error {
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}

	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return err
	}

	for r, row := range rows {
		for c, value := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return err
			}
		}
	}

	lastCol, err := excelize.ColumnNumberToName(len(headers))
	if err != nil {
		return err
	}
	return f.SetColWidth(sheet, "A", lastCol, 22)
}

// handleOwnerExport sends the workbook as a document
func (b *Bot) handleOwnerExport(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if !b.requireOwner(ctx, query) {
		return
	}

	chatID := query.Message.Chat.ID
	buf, err := b.buildExport(ctx)
	if err != nil {
		b.reportError("Failed to build export", err, zap.Int64("user_id", query.From.ID))
		b.reply(chatID, b.text(query.From, locales.MsgExportFailed, nil))
		return
	}

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{
		Name:  exportFileName(time.Now()),
		Bytes: buf.Bytes(),
	})
	doc.Caption = b.text(query.From, locales.MsgExportCaption, nil)
	if _, err := b.send(doc); err != nil {
		b.reportError("Failed to send export", err, zap.Int64("user_id", query.From.ID))
	}
}
