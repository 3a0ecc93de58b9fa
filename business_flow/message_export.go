package businessflow

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/dto"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/models"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/utils"
	"github.com/xuri/excelize/v2"
)

const (
	exportSheetName = "messages"
	exportBatchSize = 500
	exportMaxRows   = 50000
)

var exportHeader = []string{
	"id", "uuid", "channel", "status", "recipient_type", "recipient_id", "recipient_email", "recipient_phone",
	"template_id", "subject", "external_id", "retry_count", "created_at", "sent_at", "delivered_at", "read_at", "failed_at",
}

// ExportMessages writes the filtered messages to an xlsx workbook, newest first
func (f *MessageFlowImpl) ExportMessages(ctx context.Context, req *dto.ListMessagesRequest) (string, []byte, error) {
	filter, err := messageFilter(req)
	if err != nil {
		return "", nil, err
	}

	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()
	xl.SetSheetName(xl.GetSheetName(0), exportSheetName)
	if err := xl.SetSheetRow(exportSheetName, "A1", &exportHeader); err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel header", err)
	}

	row := 2
	for offset := 0; offset < exportMaxRows; offset += exportBatchSize {
		batch, err := f.messageRepo.ByFilter(ctx, filter, "created_at DESC, id DESC", exportBatchSize, offset)
		if err != nil {
			return "", nil, NewBusinessError("EXPORT_MESSAGES_FAILED", "Failed to fetch messages", err)
		}
		for _, m := range batch {
			cell, _ := excelize.CoordinatesToCellName(1, row)
			record := exportRecord(m)
			if err := xl.SetSheetRow(exportSheetName, cell, &record); err != nil {
				return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel row", err)
			}
			row++
		}
		if len(batch) < exportBatchSize {
			break
		}
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel file", err)
	}
	filename := fmt.Sprintf("messages_%d_%s.xlsx", req.TenantID, f.now().Format("20060102T150405Z"))
	return filename, buf.Bytes(), nil
}

func exportRecord(m *models.MessageLog) []string {
	templateID := ""
	if m.TemplateID != nil {
		templateID = strconv.FormatUint(uint64(*m.TemplateID), 10)
	}
	return []string{
		strconv.FormatUint(uint64(m.ID), 10),
		m.UUID.String(),
		string(m.Channel),
		string(m.Status),
		string(m.RecipientType),
		m.RecipientID,
		utils.Deref(m.RecipientEmail),
		utils.Deref(m.RecipientPhone),
		templateID,
		utils.Deref(m.Subject),
		utils.Deref(m.ExternalID),
		strconv.Itoa(m.RetryCount),
		formatExportTime(&m.CreatedAt),
		formatExportTime(m.SentAt),
		formatExportTime(m.DeliveredAt),
		formatExportTime(m.ReadAt),
		formatExportTime(m.FailedAt),
	}
}

func formatExportTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
