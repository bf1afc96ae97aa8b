package server

import "github.com/cardroom/tablesrv/pkg/server/internal/db"

// Database is the persistence surface the server needs. *db.DB
// implements it; tests substitute an in-memory fake.
type Database interface {
	GetUser(serial int64) (db.User, error)
	GetBankroll(serial, currencySerial int64) (int64, error)
	CreditBankroll(serial, currencySerial, amount int64) error

	BuyIn(serial, tableSerial, currencySerial, amount int64) (int64, error)
	SeatRow(serial, tableSerial, currencySerial, amount, minimum int64) error
	TableMoney(serial, tableSerial int64) (int64, error)
	UpdateTableMoney(serial, tableSerial, delta int64) error
	SetTableMoney(serial, tableSerial, amount int64) error
	SettleLeave(serial, tableSerial, currencySerial int64) error
	BuyOut(serial, tableSerial, currencySerial, amount int64) error
	MoveTableMoney(serial, fromTable, toTable int64) (int64, error)
	UpdateRake(currencySerial, serial, amount int64) error
	Ladder(currencySerial, serial int64) (rank, percentile int, ok bool, err error)

	CreateHand(tableSerial, tourneySerial int64) (int64, error)
	SaveHand(handSerial int64, description []byte) error
	LoadHand(handSerial int64) ([]byte, error)

	UpdateTableStats(tableSerial int64, players, observers int) error
	DeleteTable(tableSerial int64) error
	ArchiveChat(serial, tableSerial int64, message string) error
	InsertMonitorEvent(event string, param1, param2, param3 int64) error

	Close() error
}

var _ Database = (*db.DB)(nil)
