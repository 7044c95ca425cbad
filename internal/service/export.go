package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"trekbook/internal/models"
)

const archiveSheet = "Failed Bookings"

// ExportFailedBookings writes the filtered archive to an xlsx file under
// exportPath and returns the file path.
func (s *ArchiveService) ExportFailedBookings(ctx context.Context, exportPath string, filter models.ArchiveFilter) (string, error) {
	if err := os.MkdirAll(exportPath, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %v", err)
	}

	failed, err := s.repo.ListFailedBookings(ctx, filter)
	if err != nil {
		return "", fmt.Errorf("error listing failed bookings: %v", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(archiveSheet)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	headers := []string{
		"Archive ID", "Booking ID", "User ID", "Trek ID", "Batch ID",
		"Participants", "Contact", "Phone", "Total (paise)", "Payment Mode",
		"Order Ref", "Attempts", "Failure Reason", "Created", "Archived", "Archived By",
	}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(archiveSheet, cell, header)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	lastHeader, _ := excelize.CoordinatesToCellName(len(headers), 1)
	_ = f.SetCellStyle(archiveSheet, "A1", lastHeader, headerStyle)

	for i, fb := range failed {
		row := i + 2
		values := []any{
			fb.ID, fb.OriginalBookingID, fb.UserID, fb.TrekID, fb.BatchID,
			fb.Participants, fb.ContactName, fb.ContactPhone, fb.TotalPrice, fb.PaymentMode,
			fb.Payment.OrderRef, fb.Session.PaymentAttempts, fb.FailureReason,
			fb.OriginalCreatedAt.Format("02.01.2006 15:04"),
			fb.ArchivedAt.Format("02.01.2006 15:04"),
			fb.ArchivedBy,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(archiveSheet, cell, v)
		}
	}

	_ = f.SetColWidth(archiveSheet, "A", "E", 12)
	_ = f.SetColWidth(archiveSheet, "F", "P", 18)
	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("failed_bookings_%s.xlsx", time.Now().Format("2006-01-02_15-04-05"))
	filePath := filepath.Join(exportPath, fileName)

	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %v", err)
	}

	s.logger.Info().Str("file_path", filePath).Int("rows", len(failed)).Msg("archive export created")
	return filePath, nil
}
