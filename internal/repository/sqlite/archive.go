// Package sqlite archives headless simulator matches to a local SQLite file.
package sqlite

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/freeeve/hex-conquest/api/pkg/conquest"
)

// Match is one archived simulator run.
type Match struct {
	ID        int64     `db:"id"`
	Seed      int64     `db:"seed"`
	Nations   string    `db:"nations"` // comma separated
	Winner    string    `db:"winner"`
	Turns     int       `db:"turns"`
	StartedAt time.Time `db:"started_at"`
}

// TurnRow is one archived turn of a match.
type TurnRow struct {
	MatchID int64  `db:"match_id"`
	Turn    int    `db:"turn"`
	Result  string `db:"result_json"`
	State   string `db:"state_json"`
}

// NewsRow is one archived news line.
type NewsRow struct {
	Turn int    `db:"turn"`
	Kind string `db:"kind"`
	Text string `db:"text"`
}

// Archive wraps a SQLite connection.
type Archive struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite archive at the given path. Use ":memory:"
// for a throwaway archive.
func Open(path string) (*Archive, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}
	conn, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	// A second connection to ":memory:" would see an empty database.
	conn.SetMaxOpenConns(1)

	a := &Archive{conn: conn}
	if err := a.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return a, nil
}

// Close closes the database connection.
func (a *Archive) Close() error {
	return a.conn.Close()
}

func (a *Archive) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS matches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		seed INTEGER NOT NULL,
		nations TEXT NOT NULL,
		winner TEXT NOT NULL DEFAULT '',
		turns INTEGER NOT NULL DEFAULT 0,
		started_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS turns (
		match_id INTEGER NOT NULL REFERENCES matches(id),
		turn INTEGER NOT NULL,
		result_json TEXT NOT NULL,
		state_json TEXT NOT NULL,
		PRIMARY KEY (match_id, turn)
	);

	CREATE TABLE IF NOT EXISTS news (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		match_id INTEGER NOT NULL REFERENCES matches(id),
		turn INTEGER NOT NULL,
		kind TEXT NOT NULL,
		text TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_news_match ON news(match_id, turn);
	`
	_, err := a.conn.Exec(schema)
	return err
}

// StartMatch records a new match and returns its id.
func (a *Archive) StartMatch(seed int64, nations []string) (int64, error) {
	res, err := a.conn.Exec(
		"INSERT INTO matches (seed, nations, started_at) VALUES (?, ?, ?)",
		seed, strings.Join(nations, ","), time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert match: %w", err)
	}
	return res.LastInsertId()
}

// SaveTurn stores a resolved turn together with its news in one transaction.
func (a *Archive) SaveTurn(matchID int64, result *conquest.TurnResult, state *conquest.GameState) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tx, err := a.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO turns (match_id, turn, result_json, state_json) VALUES (?, ?, ?, ?)",
		matchID, result.Turn, string(resultJSON), string(stateJSON),
	); err != nil {
		return fmt.Errorf("insert turn %d: %w", result.Turn, err)
	}

	stmt, err := tx.Preparex("INSERT INTO news (match_id, turn, kind, text) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, n := range result.News {
		if _, err := stmt.Exec(matchID, n.Turn, string(n.Kind), n.Text); err != nil {
			return fmt.Errorf("insert news: %w", err)
		}
	}
	return tx.Commit()
}

// FinishMatch records the final turn count and winner.
func (a *Archive) FinishMatch(matchID int64, turns int, winner string) error {
	_, err := a.conn.Exec(
		"UPDATE matches SET turns = ?, winner = ? WHERE id = ?",
		turns, winner, matchID,
	)
	return err
}

// GetMatch returns a match by id.
func (a *Archive) GetMatch(matchID int64) (*Match, error) {
	var m Match
	if err := a.conn.Get(&m, "SELECT id, seed, nations, winner, turns, started_at FROM matches WHERE id = ?", matchID); err != nil {
		return nil, err
	}
	return &m, nil
}

// Turns returns the archived turns of a match in order.
func (a *Archive) Turns(matchID int64) ([]TurnRow, error) {
	var rows []TurnRow
	err := a.conn.Select(&rows,
		"SELECT match_id, turn, result_json, state_json FROM turns WHERE match_id = ? ORDER BY turn",
		matchID,
	)
	return rows, err
}

// RecentNews returns the most recent news of a match, newest first.
func (a *Archive) RecentNews(matchID int64, limit int) ([]NewsRow, error) {
	var rows []NewsRow
	err := a.conn.Select(&rows,
		"SELECT turn, kind, text FROM news WHERE match_id = ? ORDER BY id DESC LIMIT ?",
		matchID, limit,
	)
	return rows, err
}
