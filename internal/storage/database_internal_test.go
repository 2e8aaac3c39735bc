package storage

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigNormalization(testingT *testing.T) {
	testCases := []struct {
		name          string
		configuration Config
		expected      Config
	}{
		{
			name:          "trims and lowercases the driver",
			configuration: Config{DriverName: "  SQLite ", DataSourceName: " file:journal.db "},
			expected:      Config{DriverName: DriverNameSQLite, DataSourceName: "file:journal.db", MaxOpenConnections: DefaultMaxOpenConnections},
		},
		{
			name:          "keeps an explicit pool size",
			configuration: Config{DriverName: DriverNameSQLite, DataSourceName: DefaultJournalDataSourceName, MaxOpenConnections: 4},
			expected:      Config{DriverName: DriverNameSQLite, DataSourceName: DefaultJournalDataSourceName, MaxOpenConnections: 4},
		},
		{
			name:          "replaces a negative pool size",
			configuration: Config{DriverName: DriverNameSQLite, DataSourceName: DefaultJournalDataSourceName, MaxOpenConnections: -3},
			expected:      Config{DriverName: DriverNameSQLite, DataSourceName: DefaultJournalDataSourceName, MaxOpenConnections: DefaultMaxOpenConnections},
		},
	}

	for _, testCase := range testCases {
		testingT.Run(testCase.name, func(testingT *testing.T) {
			normalized, normalizeErr := testCase.configuration.normalized()
			require.NoError(testingT, normalizeErr)
			require.Equal(testingT, testCase.expected, normalized)
		})
	}
}

func TestOpenDatabaseReportsOpenError(testingT *testing.T) {
	missingDirectory := filepath.Join(testingT.TempDir(), "missing")
	dataSourceName := fmt.Sprintf("file:%s?mode=rwc", filepath.Join(missingDirectory, "journal.db"))

	_, openErr := OpenDatabase(Config{DriverName: DriverNameSQLite, DataSourceName: dataSourceName})
	require.Error(testingT, openErr)
	require.Contains(testingT, openErr.Error(), errorMessageOpenJournalDatabase)
}
