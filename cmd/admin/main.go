package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite"

	"emberhold.gg/internal/persistence/playerdb"
)

// Operator tooling for a running or offline server: inspect players, stock
// accounts for testing, and read the compressed audit streams.
func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "inventory":
			inventoryCmd(os.Args[2:])
			return
		case "grant":
			grantCmd(os.Args[2:])
			return
		case "audit":
			auditCmd(os.Args[2:], "trades")
			return
		case "reconcile":
			auditCmd(os.Args[2:], "reconcile")
			return
		}
	}
	playersCmd(os.Args[1:])
}

func playersCmd(args []string) {
	fs := flag.NewFlagSet("players", flag.ExitOnError)
	dbPath := fs.String("db", "./data/players.db", "sqlite db path")
	limit := fs.Int("limit", 50, "result limit")
	_ = fs.Parse(args)

	db := openDB(*dbPath)
	defer db.Close()

	rows, err := db.Query(
		`SELECT p.id, p.name, p.gold, COUNT(i.slot)
		 FROM players p LEFT JOIN inventory i ON i.player_id = p.id
		 GROUP BY p.id ORDER BY p.name LIMIT ?`, *limit)
	if err != nil {
		fatal("query:", err)
	}
	defer rows.Close()
	for rows.Next() {
		var r struct {
			ID    string `json:"id"`
			Name  string `json:"name"`
			Gold  int64  `json:"gold"`
			Slots int    `json:"slots"`
		}
		if err := rows.Scan(&r.ID, &r.Name, &r.Gold, &r.Slots); err != nil {
			fatal("scan:", err)
		}
		printJSON(r)
	}
	if err := rows.Err(); err != nil {
		fatal("rows:", err)
	}
}

func inventoryCmd(args []string) {
	fs := flag.NewFlagSet("inventory", flag.ExitOnError)
	dbPath := fs.String("db", "./data/players.db", "sqlite db path")
	name := fs.String("name", "", "player name (required)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*name) == "" {
		fatal("missing -name", nil)
	}

	db := openDB(*dbPath)
	defer db.Close()

	var id string
	var gold int64
	if err := db.QueryRow(`SELECT id, gold FROM players WHERE name = ?`, *name).Scan(&id, &gold); err != nil {
		fatal("player:", err)
	}

	rows, err := db.Query(`SELECT slot, item_id, qty FROM inventory WHERE player_id = ? ORDER BY slot`, id)
	if err != nil {
		fatal("query:", err)
	}
	defer rows.Close()
	fmt.Printf("%s id=%s gold=%d\n", *name, id, gold)
	for rows.Next() {
		var r struct {
			Slot   int    `json:"slot"`
			ItemID string `json:"item_id"`
			Qty    int    `json:"qty"`
		}
		if err := rows.Scan(&r.Slot, &r.ItemID, &r.Qty); err != nil {
			fatal("scan:", err)
		}
		printJSON(r)
	}
	if err := rows.Err(); err != nil {
		fatal("rows:", err)
	}
}

// grant goes through the playerdb package so stacking and slot assignment
// behave exactly as they do for a live trade delivery.
func grantCmd(args []string) {
	fs := flag.NewFlagSet("grant", flag.ExitOnError)
	dbPath := fs.String("db", "./data/players.db", "sqlite db path")
	name := fs.String("name", "", "player name (required; created if absent)")
	gold := fs.Int64("gold", 0, "gold to add")
	item := fs.String("item", "", "item id to add")
	qty := fs.Int("qty", 0, "units of -item to add")
	_ = fs.Parse(args)

	if strings.TrimSpace(*name) == "" {
		fatal("missing -name", nil)
	}

	db, err := playerdb.Open(*dbPath, playerdb.DefaultMaxSlots)
	if err != nil {
		fatal("open:", err)
	}
	defer db.Close()

	id, created, err := db.Login(*name)
	if err != nil {
		fatal("login:", err)
	}
	if created {
		fmt.Printf("created player %s id=%s\n", *name, id)
	}
	if *gold > 0 {
		fmt.Printf("gold=%d\n", db.AddGold(id, *gold))
	}
	if *item != "" && *qty > 0 {
		changes := db.AddItem(id, *item, *qty)
		if len(changes) == 0 {
			fatal("inventory full", nil)
		}
		for _, c := range changes {
			fmt.Printf("slot %d -> %d\n", c.Slot, c.Qty)
		}
	}
}

func openDB(path string) *sql.DB {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		fatal("open:", err)
	}
	return db
}

func printJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		fatal("marshal:", err)
	}
	fmt.Println(string(b))
}

func fatal(msg string, err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, msg, err)
	} else {
		fmt.Fprintln(os.Stderr, msg)
	}
	os.Exit(1)
}
