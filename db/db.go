package db

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/orientd/internal/iio"
)

type DB struct {
	*sql.DB
	path string
}

func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS transitions (
			transition_id TEXT PRIMARY KEY,
			kind TEXT,
			value TEXT,
			timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS readings (
			accel_x DOUBLE,
			accel_y DOUBLE,
			incl_x DOUBLE,
			incl_y DOUBLE,
			incl_z DOUBLE,
			timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{DB: db, path: path}, nil
}

// RecordTransition logs one applied state change. kind is "mode" or
// "orientation"; value is the state entered.
func (db *DB) RecordTransition(kind, value string) error {
	_, err := db.Exec("INSERT INTO transitions (transition_id, kind, value) VALUES (?, ?, ?)",
		uuid.NewString(), kind, value)
	return err
}

// RecordReading logs one sensor acquisition.
func (db *DB) RecordReading(r iio.Reading) error {
	_, err := db.Exec("INSERT INTO readings (accel_x, accel_y, incl_x, incl_y, incl_z) VALUES (?, ?, ?, ?, ?)",
		r.AccelX, r.AccelY, r.InclX, r.InclY, r.InclZ)
	return err
}

type Transition struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Value     string    `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

func (t *Transition) String() string {
	return fmt.Sprintf("%s: %s -> %s", t.Timestamp.Format(time.RFC3339), t.Kind, t.Value)
}

// Transitions returns the most recent applied transitions, newest first.
func (db *DB) Transitions(limit int) ([]Transition, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(
		"SELECT transition_id, kind, value, timestamp FROM transitions ORDER BY timestamp DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transitions []Transition
	for rows.Next() {
		var t Transition
		if err := rows.Scan(&t.ID, &t.Kind, &t.Value, &t.Timestamp); err != nil {
			return nil, err
		}
		transitions = append(transitions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return transitions, nil
}

func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://"+db.path, db.DB, &tailsql.DBOptions{
		Label: "Orientation DB",
	})

	// mount the tailSQL server on the debug /tailsql path
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		unixTime := time.Now().Unix()
		backupPath := fmt.Sprintf("backup-%d.db", unixTime)
		if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}

		// close the backup file after sending it
		// and remove it from the filesystem
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				log.Printf("Failed to remove backup file: %v", err)
			}
		}()

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()

		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			http.Error(w, fmt.Sprintf("Failed to write backup file: %v", err), http.StatusInternalServerError)
			return
		}
	}))
}
