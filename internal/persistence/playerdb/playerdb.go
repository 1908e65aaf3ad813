package playerdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"emberhold.gg/internal/game/trade"
)

// DB is the durable player store: one row per player, one row per occupied
// inventory slot. It implements trade.InventoryStore and trade.CurrencyStore.
// A single mutex serializes mutations; sqlite has no cross-statement
// transaction shared with the gold table from the trade core's point of view,
// which is exactly the collaborator contract the executor is written against.
type DB struct {
	mu       sync.Mutex
	db       *sql.DB
	maxSlots int
}

const DefaultMaxSlots = 30

func Open(path string, maxSlots int) (*DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if maxSlots <= 0 {
		maxSlots = DefaultMaxSlots
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{db: db, maxSlots: maxSlots}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS players (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			gold INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS inventory (
			player_id TEXT NOT NULL,
			slot INTEGER NOT NULL,
			item_id TEXT NOT NULL,
			qty INTEGER NOT NULL,
			PRIMARY KEY (player_id, slot)
		);`,
		`CREATE INDEX IF NOT EXISTS inventory_by_item ON inventory (player_id, item_id);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Login finds a player by name, creating the row on first sight.
func (d *DB) Login(name string) (userID string, created bool, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var id string
	err = d.db.QueryRow(`SELECT id FROM players WHERE name = ?`, name).Scan(&id)
	if err == nil {
		return id, false, nil
	}
	if err != sql.ErrNoRows {
		return "", false, fmt.Errorf("login %q: %w", name, err)
	}
	id = newPlayerID()
	if _, err := d.db.Exec(`INSERT INTO players (id, name, gold) VALUES (?, ?, 0)`, id, name); err != nil {
		return "", false, fmt.Errorf("create player %q: %w", name, err)
	}
	return id, true, nil
}

func (d *DB) DisplayName(userID string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var name string
	if err := d.db.QueryRow(`SELECT name FROM players WHERE id = ?`, userID).Scan(&name); err != nil {
		return userID
	}
	return name
}

// Empty reports whether any player exists yet; cmd/server seeds demo players
// into a fresh database.
func (d *DB) Empty() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var n int
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM players`).Scan(&n); err != nil {
		return false, err
	}
	return n == 0, nil
}

// SetSlot force-writes a slot (seeding and admin tooling). qty 0 clears it.
func (d *DB) SetSlot(userID string, slot int, itemID string, qty int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if qty <= 0 {
		_, err := d.db.Exec(`DELETE FROM inventory WHERE player_id = ? AND slot = ?`, userID, slot)
		return err
	}
	_, err := d.db.Exec(
		`INSERT INTO inventory (player_id, slot, item_id, qty) VALUES (?, ?, ?, ?)
		 ON CONFLICT (player_id, slot) DO UPDATE SET item_id = excluded.item_id, qty = excluded.qty`,
		userID, slot, itemID, qty)
	return err
}

// --- trade.InventoryStore ---

func (d *DB) Slot(userID string, slot int) (string, int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var itemID string
	var qty int
	err := d.db.QueryRow(`SELECT item_id, qty FROM inventory WHERE player_id = ? AND slot = ?`, userID, slot).Scan(&itemID, &qty)
	if err != nil {
		return "", 0, false
	}
	return itemID, qty, true
}

func (d *DB) RemoveItem(userID string, slot, qty int) bool {
	if qty <= 0 {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var have int
	if err := d.db.QueryRow(`SELECT qty FROM inventory WHERE player_id = ? AND slot = ?`, userID, slot).Scan(&have); err != nil {
		return false
	}
	if have < qty {
		return false
	}
	var err error
	if have == qty {
		_, err = d.db.Exec(`DELETE FROM inventory WHERE player_id = ? AND slot = ?`, userID, slot)
	} else {
		_, err = d.db.Exec(`UPDATE inventory SET qty = qty - ? WHERE player_id = ? AND slot = ?`, qty, userID, slot)
	}
	return err == nil
}

func (d *DB) AddItem(userID string, itemID string, qty int) []trade.SlotChange {
	if qty <= 0 || itemID == "" {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	// Stack onto an existing slot of the same item first.
	var slot, have int
	err := d.db.QueryRow(
		`SELECT slot, qty FROM inventory WHERE player_id = ? AND item_id = ? ORDER BY slot LIMIT 1`,
		userID, itemID).Scan(&slot, &have)
	if err == nil {
		if _, uerr := d.db.Exec(`UPDATE inventory SET qty = qty + ? WHERE player_id = ? AND slot = ?`, qty, userID, slot); uerr != nil {
			return nil
		}
		return []trade.SlotChange{{Slot: slot, Qty: have + qty}}
	}
	if err != sql.ErrNoRows {
		return nil
	}

	free, ok := d.freeSlotLocked(userID)
	if !ok {
		// Inventory full.
		return nil
	}
	if _, err := d.db.Exec(`INSERT INTO inventory (player_id, slot, item_id, qty) VALUES (?, ?, ?, ?)`, userID, free, itemID, qty); err != nil {
		return nil
	}
	return []trade.SlotChange{{Slot: free, Qty: qty}}
}

func (d *DB) RemoveItemByID(userID string, itemID string, qty int) bool {
	if qty <= 0 {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	rows, err := d.db.Query(
		`SELECT slot, qty FROM inventory WHERE player_id = ? AND item_id = ? ORDER BY slot`,
		userID, itemID)
	if err != nil {
		return false
	}
	type stack struct{ slot, qty int }
	var stacks []stack
	total := 0
	for rows.Next() {
		var st stack
		if err := rows.Scan(&st.slot, &st.qty); err != nil {
			_ = rows.Close()
			return false
		}
		stacks = append(stacks, st)
		total += st.qty
	}
	_ = rows.Close()
	if total < qty {
		return false
	}

	left := qty
	for _, st := range stacks {
		if left == 0 {
			break
		}
		take := st.qty
		if take > left {
			take = left
		}
		if take == st.qty {
			if _, err := d.db.Exec(`DELETE FROM inventory WHERE player_id = ? AND slot = ?`, userID, st.slot); err != nil {
				return false
			}
		} else {
			if _, err := d.db.Exec(`UPDATE inventory SET qty = qty - ? WHERE player_id = ? AND slot = ?`, take, userID, st.slot); err != nil {
				return false
			}
		}
		left -= take
	}
	return left == 0
}

// freeSlotLocked returns the lowest unoccupied slot below the cap.
func (d *DB) freeSlotLocked(userID string) (int, bool) {
	rows, err := d.db.Query(`SELECT slot FROM inventory WHERE player_id = ? ORDER BY slot`, userID)
	if err != nil {
		return 0, false
	}
	defer rows.Close()
	used := map[int]bool{}
	for rows.Next() {
		var s int
		if err := rows.Scan(&s); err != nil {
			return 0, false
		}
		used[s] = true
	}
	for s := 1; s <= d.maxSlots; s++ {
		if !used[s] {
			return s, true
		}
	}
	return 0, false
}

// --- trade.CurrencyStore ---

func (d *DB) Gold(userID string) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	var g int64
	if err := d.db.QueryRow(`SELECT gold FROM players WHERE id = ?`, userID).Scan(&g); err != nil {
		return 0
	}
	return g
}

func (d *DB) RemoveGold(userID string, amount int64) bool {
	if amount <= 0 {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	res, err := d.db.Exec(`UPDATE players SET gold = gold - ? WHERE id = ? AND gold >= ?`, amount, userID, amount)
	if err != nil {
		return false
	}
	n, err := res.RowsAffected()
	return err == nil && n == 1
}

func (d *DB) AddGold(userID string, amount int64) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if amount > 0 {
		if _, err := d.db.Exec(`UPDATE players SET gold = gold + ? WHERE id = ?`, amount, userID); err != nil {
			return 0
		}
	}
	var g int64
	if err := d.db.QueryRow(`SELECT gold FROM players WHERE id = ?`, userID).Scan(&g); err != nil {
		return 0
	}
	return g
}
