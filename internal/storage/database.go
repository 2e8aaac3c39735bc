package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// DriverNameSQLite is the only journal backend.
	DriverNameSQLite = "sqlite"

	// DefaultJournalDataSourceName keeps the journal in process memory.
	DefaultJournalDataSourceName = "file:pageshell-journal?mode=memory&cache=shared"

	// DefaultMaxOpenConnections serializes journal writes through one SQLite connection.
	DefaultMaxOpenConnections = 1

	errorMessageMissingJournalDriver = "storage: missing journal driver name"
	errorMessageUnsupportedDriver    = "storage: unsupported journal driver"
	errorMessageMissingJournalSource = "storage: missing journal data source name"
	errorMessageOpenJournalDatabase  = "storage: open journal database"
	errorMessageConfigureJournalPool = "storage: configure journal connection pool"
)

var (
	// ErrMissingDatabaseDriverName is returned when Config has no driver name.
	ErrMissingDatabaseDriverName = errors.New(errorMessageMissingJournalDriver)
	// ErrUnsupportedDatabaseDriver is returned for any driver other than sqlite.
	ErrUnsupportedDatabaseDriver = errors.New(errorMessageUnsupportedDriver)
	// ErrMissingDataSourceName is returned when Config has no data source name.
	ErrMissingDataSourceName = errors.New(errorMessageMissingJournalSource)
)

// Config describes where the navigation journal lives.
type Config struct {
	DriverName     string
	DataSourceName string
	// MaxOpenConnections bounds the pool; zero means DefaultMaxOpenConnections.
	MaxOpenConnections int
}

func (configuration Config) normalized() (Config, error) {
	driverName := strings.ToLower(strings.TrimSpace(configuration.DriverName))
	switch driverName {
	case "":
		return Config{}, ErrMissingDatabaseDriverName
	case DriverNameSQLite:
	default:
		return Config{}, fmt.Errorf("%w: %s", ErrUnsupportedDatabaseDriver, driverName)
	}
	dataSourceName := strings.TrimSpace(configuration.DataSourceName)
	if dataSourceName == "" {
		return Config{}, ErrMissingDataSourceName
	}
	maxOpenConnections := configuration.MaxOpenConnections
	if maxOpenConnections <= 0 {
		maxOpenConnections = DefaultMaxOpenConnections
	}
	return Config{DriverName: driverName, DataSourceName: dataSourceName, MaxOpenConnections: maxOpenConnections}, nil
}

// OpenDatabase opens the SQLite journal database. Timestamps gorm fills in are UTC.
func OpenDatabase(configuration Config) (*gorm.DB, error) {
	normalized, configErr := configuration.normalized()
	if configErr != nil {
		return nil, configErr
	}

	database, openErr := gorm.Open(sqlite.Open(normalized.DataSourceName), &gorm.Config{
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if openErr != nil {
		return nil, fmt.Errorf("%s: %w", errorMessageOpenJournalDatabase, openErr)
	}

	sqlDatabase, poolErr := database.DB()
	if poolErr != nil {
		return nil, fmt.Errorf("%s: %w", errorMessageConfigureJournalPool, poolErr)
	}
	sqlDatabase.SetMaxOpenConns(normalized.MaxOpenConnections)
	return database, nil
}

// NewID returns a random UUID string.
func NewID() string {
	return uuid.NewString()
}
