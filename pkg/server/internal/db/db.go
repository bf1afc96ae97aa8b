// Package db is the sqlite store behind the server: users and their
// bankrolls, per-table money rows, rake accumulators, archived hands,
// table stats and the chat archive.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the sqlite connection.
type DB struct {
	*sql.DB
}

// User is one row of the users table.
type User struct {
	Serial    int64
	Name      string
	URL       string
	Outfit    string
	Temporary bool
}

// NewDB opens (and creates, if needed) the database at dbPath. Use
// ":memory:" for tests.
func NewDB(dbPath string) (*DB, error) {
	sdb, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if err := createTables(sdb); err != nil {
		sdb.Close()
		return nil, err
	}
	return &DB{sdb}, nil
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			serial INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			url TEXT NOT NULL DEFAULT '',
			outfit TEXT NOT NULL DEFAULT '',
			temporary INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS user2money (
			user_serial INTEGER NOT NULL,
			currency_serial INTEGER NOT NULL,
			amount INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (user_serial, currency_serial)
		)`,
		`CREATE TABLE IF NOT EXISTS user2table (
			user_serial INTEGER NOT NULL,
			table_serial INTEGER NOT NULL,
			money INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (user_serial, table_serial)
		)`,
		`CREATE TABLE IF NOT EXISTS rake (
			currency_serial INTEGER NOT NULL,
			user_serial INTEGER NOT NULL,
			amount INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (currency_serial, user_serial)
		)`,
		`CREATE TABLE IF NOT EXISTS ladder (
			currency_serial INTEGER NOT NULL,
			user_serial INTEGER NOT NULL,
			rank INTEGER NOT NULL DEFAULT 0,
			percentile INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (currency_serial, user_serial)
		)`,
		`CREATE TABLE IF NOT EXISTS hands (
			serial INTEGER PRIMARY KEY AUTOINCREMENT,
			table_serial INTEGER NOT NULL,
			tourney_serial INTEGER NOT NULL DEFAULT 0,
			description BLOB,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS tables (
			serial INTEGER PRIMARY KEY,
			players INTEGER NOT NULL DEFAULT 0,
			observers INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS chat_archive (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_serial INTEGER NOT NULL,
			table_serial INTEGER NOT NULL,
			message TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS monitor_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event TEXT NOT NULL,
			param1 INTEGER NOT NULL DEFAULT 0,
			param2 INTEGER NOT NULL DEFAULT 0,
			param3 INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// CreateUser inserts a user and returns its serial.
func (db *DB) CreateUser(name string, temporary bool) (int64, error) {
	res, err := db.Exec(`INSERT INTO users (name, temporary) VALUES (?, ?)`,
		name, temporary)
	if err != nil {
		return 0, fmt.Errorf("create user %q: %w", name, err)
	}
	return res.LastInsertId()
}

// GetUser returns the user row for serial.
func (db *DB) GetUser(serial int64) (User, error) {
	u := User{Serial: serial}
	err := db.QueryRow(
		`SELECT name, url, outfit, temporary FROM users WHERE serial = ?`,
		serial).Scan(&u.Name, &u.URL, &u.Outfit, &u.Temporary)
	if err == sql.ErrNoRows {
		return User{}, fmt.Errorf("no user %d", serial)
	}
	if err != nil {
		return User{}, fmt.Errorf("get user %d: %w", serial, err)
	}
	return u, nil
}

// GetBankroll returns the user's bankroll in the given currency. A
// missing row is an empty bankroll.
func (db *DB) GetBankroll(serial, currencySerial int64) (int64, error) {
	var amount int64
	err := db.QueryRow(
		`SELECT amount FROM user2money WHERE user_serial = ? AND currency_serial = ?`,
		serial, currencySerial).Scan(&amount)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("bankroll of user %d: %w", serial, err)
	}
	return amount, nil
}

// CreditBankroll adds amount to the user's bankroll, creating the row
// when missing.
func (db *DB) CreditBankroll(serial, currencySerial, amount int64) error {
	_, err := db.Exec(`
		INSERT INTO user2money (user_serial, currency_serial, amount)
		VALUES (?, ?, ?)
		ON CONFLICT(user_serial, currency_serial) DO UPDATE SET amount = amount + ?
	`, serial, currencySerial, amount, amount)
	if err != nil {
		return fmt.Errorf("credit bankroll of user %d: %w", serial, err)
	}
	return nil
}

// BuyIn moves up to amount from the user's bankroll to their table row
// and returns what actually moved. Zero means the bankroll is empty.
func (db *DB) BuyIn(serial, tableSerial, currencySerial, amount int64) (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var bankroll int64
	err = tx.QueryRow(
		`SELECT amount FROM user2money WHERE user_serial = ? AND currency_serial = ?`,
		serial, currencySerial).Scan(&bankroll)
	if err == sql.ErrNoRows {
		bankroll = 0
	} else if err != nil {
		return 0, fmt.Errorf("buy-in bankroll read for user %d: %w", serial, err)
	}
	paid := amount
	if paid > bankroll {
		paid = bankroll
	}
	if paid <= 0 {
		return 0, nil
	}
	if _, err := tx.Exec(
		`UPDATE user2money SET amount = amount - ?
		 WHERE user_serial = ? AND currency_serial = ?`,
		paid, serial, currencySerial); err != nil {
		return 0, fmt.Errorf("buy-in debit for user %d: %w", serial, err)
	}
	if _, err := tx.Exec(`
		INSERT INTO user2table (user_serial, table_serial, money)
		VALUES (?, ?, ?)
		ON CONFLICT(user_serial, table_serial) DO UPDATE SET money = money + ?
	`, serial, tableSerial, paid, paid); err != nil {
		return 0, fmt.Errorf("buy-in credit for user %d: %w", serial, err)
	}
	return paid, tx.Commit()
}

// SeatRow creates the user's table money row if it does not exist,
// refusing when the bankroll is below minimum.
func (db *DB) SeatRow(serial, tableSerial, currencySerial, amount, minimum int64) error {
	bankroll, err := db.GetBankroll(serial, currencySerial)
	if err != nil {
		return err
	}
	if bankroll < minimum {
		return fmt.Errorf("user %d bankroll %d below table minimum %d",
			serial, bankroll, minimum)
	}
	_, err = db.Exec(`
		INSERT INTO user2table (user_serial, table_serial, money)
		VALUES (?, ?, ?)
		ON CONFLICT(user_serial, table_serial) DO NOTHING
	`, serial, tableSerial, amount)
	if err != nil {
		return fmt.Errorf("seat row for user %d: %w", serial, err)
	}
	return nil
}

// TableMoney returns the user's money at the table.
func (db *DB) TableMoney(serial, tableSerial int64) (int64, error) {
	var money int64
	err := db.QueryRow(
		`SELECT money FROM user2table WHERE user_serial = ? AND table_serial = ?`,
		serial, tableSerial).Scan(&money)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("table money of user %d: %w", serial, err)
	}
	return money, nil
}

// UpdateTableMoney adds delta to the user's table money row.
func (db *DB) UpdateTableMoney(serial, tableSerial, delta int64) error {
	_, err := db.Exec(`
		INSERT INTO user2table (user_serial, table_serial, money)
		VALUES (?, ?, ?)
		ON CONFLICT(user_serial, table_serial) DO UPDATE SET money = money + ?
	`, serial, tableSerial, delta, delta)
	if err != nil {
		return fmt.Errorf("table money update %+d for user %d: %w", delta, serial, err)
	}
	return nil
}

// SetTableMoney overwrites the user's table money row.
func (db *DB) SetTableMoney(serial, tableSerial, amount int64) error {
	_, err := db.Exec(`
		INSERT INTO user2table (user_serial, table_serial, money)
		VALUES (?, ?, ?)
		ON CONFLICT(user_serial, table_serial) DO UPDATE SET money = ?
	`, serial, tableSerial, amount, amount)
	if err != nil {
		return fmt.Errorf("table money set for user %d: %w", serial, err)
	}
	return nil
}

// SettleLeave moves whatever the user has at the table back to their
// bankroll and removes the table row.
func (db *DB) SettleLeave(serial, tableSerial, currencySerial int64) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var money int64
	err = tx.QueryRow(
		`SELECT money FROM user2table WHERE user_serial = ? AND table_serial = ?`,
		serial, tableSerial).Scan(&money)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("leave settle read for user %d: %w", serial, err)
	}
	if _, err := tx.Exec(`
		INSERT INTO user2money (user_serial, currency_serial, amount)
		VALUES (?, ?, ?)
		ON CONFLICT(user_serial, currency_serial) DO UPDATE SET amount = amount + ?
	`, serial, currencySerial, money, money); err != nil {
		return fmt.Errorf("leave settle credit for user %d: %w", serial, err)
	}
	if _, err := tx.Exec(
		`DELETE FROM user2table WHERE user_serial = ? AND table_serial = ?`,
		serial, tableSerial); err != nil {
		return fmt.Errorf("leave settle delete for user %d: %w", serial, err)
	}
	return tx.Commit()
}

// BuyOut moves up to amount from the user's table row back to their
// bankroll, keeping the row.
func (db *DB) BuyOut(serial, tableSerial, currencySerial, amount int64) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var money int64
	err = tx.QueryRow(
		`SELECT money FROM user2table WHERE user_serial = ? AND table_serial = ?`,
		serial, tableSerial).Scan(&money)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("buy-out read for user %d: %w", serial, err)
	}
	if amount > money {
		amount = money
	}
	if amount <= 0 {
		return tx.Commit()
	}
	if _, err := tx.Exec(
		`UPDATE user2table SET money = money - ?
		 WHERE user_serial = ? AND table_serial = ?`,
		amount, serial, tableSerial); err != nil {
		return fmt.Errorf("buy-out debit for user %d: %w", serial, err)
	}
	if _, err := tx.Exec(`
		INSERT INTO user2money (user_serial, currency_serial, amount)
		VALUES (?, ?, ?)
		ON CONFLICT(user_serial, currency_serial) DO UPDATE SET amount = amount + ?
	`, serial, currencySerial, amount, amount); err != nil {
		return fmt.Errorf("buy-out credit for user %d: %w", serial, err)
	}
	return tx.Commit()
}

// MoveTableMoney transfers the user's table money between tables and
// returns the balance at the destination.
func (db *DB) MoveTableMoney(serial, fromTable, toTable int64) (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var money int64
	err = tx.QueryRow(
		`SELECT money FROM user2table WHERE user_serial = ? AND table_serial = ?`,
		serial, fromTable).Scan(&money)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("move read for user %d: %w", serial, err)
	}
	if _, err := tx.Exec(
		`DELETE FROM user2table WHERE user_serial = ? AND table_serial = ?`,
		serial, fromTable); err != nil {
		return 0, fmt.Errorf("move delete for user %d: %w", serial, err)
	}
	if _, err := tx.Exec(`
		INSERT INTO user2table (user_serial, table_serial, money)
		VALUES (?, ?, ?)
		ON CONFLICT(user_serial, table_serial) DO UPDATE SET money = money + ?
	`, serial, toTable, money, money); err != nil {
		return 0, fmt.Errorf("move credit for user %d: %w", serial, err)
	}
	var balance int64
	if err := tx.QueryRow(
		`SELECT money FROM user2table WHERE user_serial = ? AND table_serial = ?`,
		serial, toTable).Scan(&balance); err != nil {
		return 0, fmt.Errorf("move balance read for user %d: %w", serial, err)
	}
	return balance, tx.Commit()
}

// UpdateRake accumulates rake taken from a user in a currency.
func (db *DB) UpdateRake(currencySerial, serial, amount int64) error {
	_, err := db.Exec(`
		INSERT INTO rake (currency_serial, user_serial, amount)
		VALUES (?, ?, ?)
		ON CONFLICT(currency_serial, user_serial) DO UPDATE SET amount = amount + ?
	`, currencySerial, serial, amount, amount)
	if err != nil {
		return fmt.Errorf("rake update for user %d: %w", serial, err)
	}
	return nil
}

// GetRake returns the accumulated rake for a user in a currency.
func (db *DB) GetRake(currencySerial, serial int64) (int64, error) {
	var amount int64
	err := db.QueryRow(
		`SELECT amount FROM rake WHERE currency_serial = ? AND user_serial = ?`,
		currencySerial, serial).Scan(&amount)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("rake of user %d: %w", serial, err)
	}
	return amount, nil
}

// SetLadder upserts a user's standing on a currency's ladder. Rankings
// are computed offline; this only stores the result.
func (db *DB) SetLadder(currencySerial, serial int64, rank, percentile int) error {
	_, err := db.Exec(`
		INSERT INTO ladder (currency_serial, user_serial, rank, percentile)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(currency_serial, user_serial) DO UPDATE SET rank = ?, percentile = ?
	`, currencySerial, serial, rank, percentile, rank, percentile)
	if err != nil {
		return fmt.Errorf("ladder update for user %d: %w", serial, err)
	}
	return nil
}

// Ladder returns a user's standing on a currency's ladder. The bool is
// false for an unranked user.
func (db *DB) Ladder(currencySerial, serial int64) (rank, percentile int, ok bool, err error) {
	err = db.QueryRow(
		`SELECT rank, percentile FROM ladder WHERE currency_serial = ? AND user_serial = ?`,
		currencySerial, serial).Scan(&rank, &percentile)
	if err == sql.ErrNoRows {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, fmt.Errorf("ladder of user %d: %w", serial, err)
	}
	return rank, percentile, true, nil
}

// CreateHand allocates a hand serial for a table.
func (db *DB) CreateHand(tableSerial, tourneySerial int64) (int64, error) {
	res, err := db.Exec(
		`INSERT INTO hands (table_serial, tourney_serial) VALUES (?, ?)`,
		tableSerial, tourneySerial)
	if err != nil {
		return 0, fmt.Errorf("create hand for table %d: %w", tableSerial, err)
	}
	return res.LastInsertId()
}

// SaveHand stores the hand's description blob.
func (db *DB) SaveHand(handSerial int64, description []byte) error {
	res, err := db.Exec(
		`UPDATE hands SET description = ? WHERE serial = ?`,
		description, handSerial)
	if err != nil {
		return fmt.Errorf("save hand %d: %w", handSerial, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("save hand %d: no such hand", handSerial)
	}
	return nil
}

// LoadHand returns the hand's description blob.
func (db *DB) LoadHand(handSerial int64) ([]byte, error) {
	var description []byte
	err := db.QueryRow(
		`SELECT description FROM hands WHERE serial = ?`,
		handSerial).Scan(&description)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no hand %d", handSerial)
	}
	if err != nil {
		return nil, fmt.Errorf("load hand %d: %w", handSerial, err)
	}
	if len(description) == 0 {
		return nil, fmt.Errorf("hand %d has no description", handSerial)
	}
	return description, nil
}

// UpdateTableStats refreshes the table's player and observer counts.
func (db *DB) UpdateTableStats(tableSerial int64, players, observers int) error {
	_, err := db.Exec(`
		INSERT INTO tables (serial, players, observers, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(serial) DO UPDATE
		SET players = ?, observers = ?, updated_at = CURRENT_TIMESTAMP
	`, tableSerial, players, observers, players, observers)
	if err != nil {
		return fmt.Errorf("stats for table %d: %w", tableSerial, err)
	}
	return nil
}

// DeleteTable drops the table's stats row and any stray money rows.
// Money rows are normally settled player by player before this runs.
func (db *DB) DeleteTable(tableSerial int64) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM tables WHERE serial = ?`, tableSerial); err != nil {
		return fmt.Errorf("delete table %d: %w", tableSerial, err)
	}
	if _, err := tx.Exec(`DELETE FROM user2table WHERE table_serial = ?`, tableSerial); err != nil {
		return fmt.Errorf("delete table %d money rows: %w", tableSerial, err)
	}
	return tx.Commit()
}

// ArchiveChat stores one chat line.
func (db *DB) ArchiveChat(serial, tableSerial int64, message string) error {
	_, err := db.Exec(
		`INSERT INTO chat_archive (user_serial, table_serial, message) VALUES (?, ?, ?)`,
		serial, tableSerial, message)
	if err != nil {
		return fmt.Errorf("archive chat from user %d: %w", serial, err)
	}
	return nil
}

// InsertMonitorEvent records a monitor event for external consumers.
func (db *DB) InsertMonitorEvent(event string, param1, param2, param3 int64) error {
	_, err := db.Exec(
		`INSERT INTO monitor_events (event, param1, param2, param3) VALUES (?, ?, ?, ?)`,
		event, param1, param2, param3)
	if err != nil {
		return fmt.Errorf("monitor event %q: %w", event, err)
	}
	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}
