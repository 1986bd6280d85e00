package model

// ReceiptSequenceModel is the per-prefix counter behind receipt numbers.
type ReceiptSequenceModel struct {
	ReceiptSequencePrefix    string `gorm:"column:receipt_sequence_prefix;size:20;primaryKey" json:"receipt_sequence_prefix"`
	ReceiptSequenceLastValue int64  `gorm:"column:receipt_sequence_last_value;not null" json:"receipt_sequence_last_value"`
}

func (ReceiptSequenceModel) TableName() string {
	return "receipt_sequences"
}
