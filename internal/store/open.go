package store

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// Config selects a local sqlite file or a remote libsql database when Url
// is set.
type Config struct {
	File      string `json:"file"`
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

// Open opens the database and applies the schema.
func (config Config) Open() (*sql.DB, error) {
	db, err := config.open()
	if err != nil {
		return nil, err
	}
	_, err = db.Exec(Schema)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}

func (config Config) open() (*sql.DB, error) {
	if config.Url != "" {
		values := url.Values{}
		if config.AuthToken != "" {
			values.Add("authToken", config.AuthToken)
		}
		return sql.Open("libsql", config.Url+"?"+values.Encode())
	}

	if config.File == "" {
		return nil, fmt.Errorf("a database file was not specified")
	}
	dbpath := config.File
	if dbpath != ":memory:" {
		abs, err := filepath.Abs(dbpath)
		if err != nil {
			return nil, err
		}
		dbpath = abs
		err = os.MkdirAll(filepath.Dir(dbpath), 0o755)
		if err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", dbpath)
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer, see
	// https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
	db.SetMaxOpenConns(1)
	if dbpath != ":memory:" {
		_, err = db.Exec("PRAGMA journal_mode=WAL")
		if err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}
