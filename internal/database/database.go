package database

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog/log"
	"github.com/xelth-com/eckpos/internal/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	embeddedDataPath = "./pos_data/pg"
	embeddedPort     = 5433
)

// DB wraps gorm.DB and includes a reference to an embedded process if active
type DB struct {
	*gorm.DB
	embedded *embeddedpostgres.EmbeddedPostgres
}

// Connect opens the terminal's local database.
// The default is a single SQLite file; postgres is used on back-office machines.
func Connect(cfg config.DatabaseConfig) (*DB, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return connectSQLite(cfg)
	case "postgres":
		return connectPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func gormConfig(cfg config.DatabaseConfig) *gorm.Config {
	logLevel := logger.Warn
	if cfg.LogSQL {
		logLevel = logger.Info
	}
	return &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func connectSQLite(cfg config.DatabaseConfig) (*DB, error) {
	path := cfg.Path
	if path == "" {
		path = "./pos_data/pos.db"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite has a single writer; one connection keeps transactions serialized.
	sqlDB, err := db.DB()
	if err == nil {
		sqlDB.SetMaxOpenConns(1)
	}

	log.Info().Str("path", path).Msg("📦 Mode: [SQLite] - local store opened")
	return &DB{DB: db}, nil
}

func connectPostgres(cfg config.DatabaseConfig) (*DB, error) {
	var embedded *embeddedpostgres.EmbeddedPostgres

	// Logic for Embedded Mode: Localhost and No Password
	isEmbedded := cfg.Host == "localhost" && cfg.Password == ""

	password := cfg.Password
	if isEmbedded {
		log.Info().Msg("📦 Mode: [Embedded PostgreSQL] - Initializing internal database...")

		removeStalePidFile(embeddedDataPath)
		if portInUse(embeddedPort) {
			return nil, fmt.Errorf("port %d is in use; is another embedded database still running?", embeddedPort)
		}

		embeddedCfg := embeddedpostgres.DefaultConfig().
			DataPath(embeddedDataPath).
			Port(uint32(embeddedPort)).
			Database(cfg.Database).
			Username(cfg.Username).
			Password("postgres")

		embedded = embeddedpostgres.NewDatabase(embeddedCfg)
		if err := embedded.Start(); err != nil {
			return nil, fmt.Errorf("failed to start embedded database: %w", err)
		}

		cfg.Port = strconv.Itoa(embeddedPort)
		password = "postgres"
		log.Info().Int("port", embeddedPort).Msg("✅ Embedded PostgreSQL process started")
	} else {
		log.Info().Str("host", cfg.Host).Str("port", cfg.Port).Msg("🌐 Mode: [External PostgreSQL]")
	}

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host,
		cfg.Port,
		cfg.Username,
		password,
		cfg.Database,
	)

	db, err := gorm.Open(postgres.Open(dsn), gormConfig(cfg))
	if err != nil {
		if embedded != nil {
			_ = embedded.Stop()
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err == nil {
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	log.Info().Msg("✅ Database connection established")
	return &DB{DB: db, embedded: embedded}, nil
}

// removeStalePidFile deletes postmaster.pid when the process it names is gone,
// which is what a power cut on the till leaves behind. A live process is left alone.
func removeStalePidFile(dataPath string) bool {
	pidFile := filepath.Join(dataPath, "postmaster.pid")
	data, err := os.ReadFile(pidFile)
	if err != nil {
		return false
	}

	firstLine, _, _ := strings.Cut(string(data), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(firstLine))
	if err == nil && pid > 0 {
		// On Unix FindProcess always succeeds; signal 0 tells whether it exists
		if process, err := os.FindProcess(pid); err == nil && process.Signal(syscall.Signal(0)) == nil {
			return false
		}
	}

	if err := os.Remove(pidFile); err != nil {
		log.Warn().Err(err).Msg("⚠️ Could not remove stale postmaster.pid")
		return false
	}
	log.Info().Int("pid", pid).Msg("🧹 Removed stale postmaster.pid")
	return true
}

func portInUse(port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Close ensures the database connection and embedded process are shut down
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	closeErr := sqlDB.Close()

	if db.embedded != nil {
		log.Info().Msg("🛑 Stopping Embedded PostgreSQL process...")
		_ = db.embedded.Stop()
	}
	return closeErr
}

// AutoMigrate triggers GORM schema synchronization
func (db *DB) AutoMigrate(models ...interface{}) error {
	return db.DB.AutoMigrate(models...)
}
