// IssuerDB is the issuer's journal: every published schedule, every
// acknowledgement received and the latest status per schedule.
// Only the schedule issuer writes to it.
package issuerdb

import (
	"database/sql"
	"embed"
	"fmt"
	"log"
	"sync"

	"github.com/NotCoffee418/dbmigrator"
	"github.com/NotCoffee418/battery_schedule_exchange/pkg/pathing"

	_ "modernc.org/sqlite"
)

var (
	db   *sql.DB
	once sync.Once

	migrateMu sync.Mutex
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// InitializeDatabase must be called manually on startup
func InitializeDatabase() {
	db := GetDB()
	if _, err := db.Exec("SELECT 1;"); err != nil {
		log.Printf("Warning: Could not create DB: %v", err)
	}
	migrate(db)
}

func GetDB() *sql.DB {
	once.Do(func() {
		var err error
		db, err = openDB(pathing.GetIssuerDbPath())
		if err != nil {
			log.Fatal(err)
		}
	})
	return db
}

// Open opens and migrates a journal at path, independent of the shared
// instance returned by GetDB.
func Open(path string) (*sql.DB, error) {
	conn, err := openDB(path)
	if err != nil {
		return nil, err
	}
	migrate(conn)
	return conn, nil
}

func openDB(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer, keep writes on one connection
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("open issuer db %s: %w", path, err)
	}
	return conn, nil
}

func migrate(conn *sql.DB) {
	migrateMu.Lock()
	defer migrateMu.Unlock()
	dbmigrator.SetDatabaseType(dbmigrator.SQLite)
	<-dbmigrator.MigrateUpCh(
		conn,
		migrationFS,
		"migrations",
	)
}
