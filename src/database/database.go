package database

import (
	"database/sql"
	stdlog "log"

	"github.com/username/finloader/backend/src/logger"
	_ "modernc.org/sqlite"
)

var DB *sql.DB

func InitDB(databasePath string) {
	db, err := sql.Open("sqlite", databasePath)
	if err != nil {
		stdlog.Fatalf("failed to open database at %s: %v", databasePath, err)
	}

	DB = db

	if logger.L != nil {
		logger.L.Info("Checking database migrations", "databasePath", databasePath)
	} else {
		stdlog.Println("Checking database migrations for:", databasePath)
	}
	migrateCorrectionQueue()

	createTableStatement := `
	CREATE TABLE IF NOT EXISTS companies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		markdown_filename TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		company_id INTEGER NOT NULL,
		statement_type TEXT NOT NULL,
		period TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		document TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(company_id) REFERENCES companies(id),
		UNIQUE(company_id, statement_type, period)
	);

	CREATE TABLE IF NOT EXISTS correction_queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		company_id INTEGER NOT NULL,
		period TEXT NOT NULL,
		statement_type TEXT NOT NULL,
		field TEXT NOT NULL,
		classified_value REAL,
		classifier_reasoning TEXT,
		corrected_value REAL NOT NULL,
		analyst_reasoning TEXT NOT NULL,
		tag TEXT NOT NULL,
		processed BOOLEAN DEFAULT FALSE,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(company_id) REFERENCES companies(id)
	);

	CREATE TABLE IF NOT EXISTS reviews (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		company_id INTEGER NOT NULL,
		period TEXT NOT NULL,
		document TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(company_id) REFERENCES companies(id),
		UNIQUE(company_id, period)
	);
	`

	_, err = DB.Exec(createTableStatement)
	if err != nil {
		if logger.L != nil {
			logger.L.Error("failed to create tables", "error", err)
		}
		stdlog.Fatalf("failed to create tables: %v", err)
	}
	if logger.L != nil {
		logger.L.Info("Database tables ensured/created.")
	} else {
		stdlog.Println("Database tables ensured/created.")
	}
}

func migrateCorrectionQueue() {
	var tableName string
	err := DB.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='correction_queue'").Scan(&tableName)
	if err != nil {
		if err == sql.ErrNoRows {
			if logger.L != nil {
				logger.L.Info("'correction_queue' table does not exist, no migration needed as table will be created.")
			} else {
				stdlog.Println("'correction_queue' table does not exist, no migration needed as table will be created.")
			}
			return
		}
		if logger.L != nil {
			logger.L.Error("Error checking for 'correction_queue' table", "error", err)
		} else {
			stdlog.Printf("Error checking for 'correction_queue' table: %v", err)
		}
		return
	}

	rows, err := DB.Query("PRAGMA table_info(correction_queue)")
	if err != nil {
		if logger.L != nil {
			logger.L.Error("Error querying table schema for 'correction_queue'", "error", err)
		} else {
			stdlog.Printf("Error querying table schema for 'correction_queue': %v", err)
		}
		return
	}
	defer rows.Close()

	columnExists := make(map[string]bool)
	for rows.Next() {
		var cid, pk int
		var name, dataType string
		var notnullVal int
		var dfltValue interface{}

		if err := rows.Scan(&cid, &name, &dataType, &notnullVal, &dfltValue, &pk); err != nil {
			if logger.L != nil {
				logger.L.Error("Error scanning column info for 'correction_queue'", "error", err)
			} else {
				stdlog.Printf("Error scanning column info for 'correction_queue': %v", err)
			}
			return
		}
		columnExists[name] = true
	}
	if err = rows.Err(); err != nil {
		if logger.L != nil {
			logger.L.Error("Error iterating over column info for 'correction_queue'", "error", err)
		} else {
			stdlog.Printf("Error iterating over column info for 'correction_queue': %v", err)
		}
		return
	}

	if _, ok := columnExists["processed"]; !ok {
		_, err := DB.Exec("ALTER TABLE correction_queue ADD COLUMN processed BOOLEAN DEFAULT FALSE")
		if err != nil {
			logger.L.Error("Error adding 'processed' column to 'correction_queue' table", "error", err)
		} else {
			logger.L.Info("Added 'processed' column to 'correction_queue' table")
		}
	}

	if _, ok := columnExists["tag"]; !ok {
		_, err := DB.Exec("ALTER TABLE correction_queue ADD COLUMN tag TEXT NOT NULL DEFAULT 'company_specific'")
		if err != nil {
			logger.L.Error("Error adding 'tag' column to 'correction_queue' table", "error", err)
		} else {
			logger.L.Info("Added 'tag' column to 'correction_queue' table")
		}
	}
}
