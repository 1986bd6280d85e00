package service

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

func ReceiptPrefix(year int) string {
	return fmt.Sprintf("RCP%04d", year)
}

// NextReceiptNumber allocates the next RCP<year><seq> inside tx. The counter
// row for the prefix stays locked until tx ends, so concurrent recorders
// serialize here and never share a number. A missing counter is seeded from
// the receipts already issued under the prefix.
func NextReceiptNumber(ctx context.Context, tx *gorm.DB, year int) (string, error) {
	prefix := ReceiptPrefix(year)
	var next int64
	err := tx.WithContext(ctx).Raw(`
INSERT INTO receipt_sequences (receipt_sequence_prefix, receipt_sequence_last_value)
VALUES (?, (SELECT COUNT(*) FROM payments WHERE payment_receipt_number LIKE ?) + 1)
ON CONFLICT (receipt_sequence_prefix)
DO UPDATE SET receipt_sequence_last_value = receipt_sequences.receipt_sequence_last_value + 1
RETURNING receipt_sequence_last_value`, prefix, prefix+"%").Scan(&next).Error
	if err != nil {
		return "", err
	}
	if next <= 0 {
		return "", fmt.Errorf("receipt counter for %s returned %d", prefix, next)
	}
	return fmt.Sprintf("%s%05d", prefix, next), nil
}
