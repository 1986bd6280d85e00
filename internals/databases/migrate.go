package database

import (
	"fmt"

	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	feeModel "schoolfinance_backend/internals/features/finance/fees/model"
	ledgerModel "schoolfinance_backend/internals/features/finance/ledger/model"
	paymentModel "schoolfinance_backend/internals/features/finance/payments/model"
)

// Migrate creates or updates the finance tables.
func Migrate(db *gorm.DB) error {
	models := []any{
		&feeModel.StudentModel{},
		&feeModel.FeeStructureModel{},
		&feeModel.BursaryModel{},
		&ledgerModel.StudentAccountModel{},
		&ledgerModel.LedgerTransactionModel{},
		&paymentModel.ReceiptSequenceModel{},
		&paymentModel.PaymentModel{},
		&paymentModel.GatewayTransactionModel{},
		&paymentModel.PaymentGatewayEventModel{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// OpenMigratedSQLite opens a sqlite database (":memory:" works) with the
// finance schema in place. Used by tests and local runs.
func OpenMigratedSQLite(dsn string) (*gorm.DB, error) {
	db, err := OpenSQLite(dsn, &gorm.Config{Logger: gormLogger.Default.LogMode(gormLogger.Silent)})
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
