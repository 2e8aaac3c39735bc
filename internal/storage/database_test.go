package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/pageshell/internal/model"
	"github.com/MarkoPoloResearchLab/pageshell/internal/shell"
	"github.com/MarkoPoloResearchLab/pageshell/internal/storage"
	"github.com/MarkoPoloResearchLab/pageshell/internal/testutil"
)

const (
	testShellIdentifier              = "shell-journal"
	testOtherShellIdentifier         = "shell-other"
	testUnsupportedDriverName        = "unsupported-driver"
	testUnsupportedDriverDescription = "unsupported driver"
	testMissingDriverDescription     = "missing driver"
	testMissingDataSourceDescription = "missing data source"
)

func openTestJournal(testingT *testing.T) (*storage.Journal, *gorm.DB) {
	testingT.Helper()
	sqliteDatabase := testutil.NewSQLiteTestDatabase(testingT)

	database, openErr := storage.OpenDatabase(sqliteDatabase.Configuration())
	require.NoError(testingT, openErr)
	database = testutil.ConfigureDatabaseLogger(testingT, database)
	require.NoError(testingT, storage.AutoMigrate(database))

	journal, journalErr := storage.NewJournal(database)
	require.NoError(testingT, journalErr)
	return journal, database
}

func buildResult(pageID string, outcome shell.Outcome, startedAt time.Time) shell.Result {
	return shell.Result{
		NavigationID: storage.NewID(),
		PageID:       pageID,
		Outcome:      outcome,
		StartedAt:    startedAt,
		FinishedAt:   startedAt.Add(40 * time.Millisecond),
	}
}

func TestOpenDatabaseWithSQLiteConfiguration(testingT *testing.T) {
	journal, database := openTestJournal(testingT)

	startedAt := time.Now().UTC().Add(-time.Minute)
	result := buildResult("wallet", shell.OutcomeCompleted, startedAt)
	result.ControllerInitialized = true
	require.NoError(testingT, journal.RecordNavigation(context.Background(), testShellIdentifier, result))

	var stored model.NavigationRecord
	require.NoError(testingT, database.First(&stored, "navigation_id = ?", result.NavigationID).Error)
	require.Equal(testingT, "wallet", stored.PageID)
	require.Equal(testingT, model.NavigationOutcomeCompleted, stored.Outcome)
	require.True(testingT, stored.ControllerInitialized)
	require.Equal(testingT, 40*time.Millisecond, stored.Duration())
}

func TestOpenDatabaseLimitsConnectionPool(testingT *testing.T) {
	sqliteDatabase := testutil.NewSQLiteTestDatabase(testingT)

	database, openErr := storage.OpenDatabase(sqliteDatabase.Configuration())
	require.NoError(testingT, openErr)
	sqlDatabase, sqlErr := database.DB()
	require.NoError(testingT, sqlErr)
	testingT.Cleanup(func() {
		require.NoError(testingT, sqlDatabase.Close())
	})

	require.Equal(testingT, storage.DefaultMaxOpenConnections, sqlDatabase.Stats().MaxOpenConnections)
	require.Equal(testingT, time.UTC, database.NowFunc().Location())
}

func TestOpenDatabaseValidation(testingT *testing.T) {
	sqliteDatabase := testutil.NewSQLiteTestDatabase(testingT)

	testCases := []struct {
		name              string
		configuration     storage.Config
		expectedRootError error
	}{
		{
			name: testMissingDriverDescription,
			configuration: storage.Config{
				DriverName:     "",
				DataSourceName: sqliteDatabase.DataSourceName(),
			},
			expectedRootError: storage.ErrMissingDatabaseDriverName,
		},
		{
			name: testUnsupportedDriverDescription,
			configuration: storage.Config{
				DriverName:     testUnsupportedDriverName,
				DataSourceName: sqliteDatabase.DataSourceName(),
			},
			expectedRootError: storage.ErrUnsupportedDatabaseDriver,
		},
		{
			name: testMissingDataSourceDescription,
			configuration: storage.Config{
				DriverName:     storage.DriverNameSQLite,
				DataSourceName: "",
			},
			expectedRootError: storage.ErrMissingDataSourceName,
		},
	}

	for _, testCase := range testCases {
		testingT.Run(testCase.name, func(testingT *testing.T) {
			_, openErr := storage.OpenDatabase(testCase.configuration)
			require.Error(testingT, openErr)
			require.True(testingT, errors.Is(openErr, testCase.expectedRootError))
		})
	}
}

func TestNewJournalRequiresDatabase(testingT *testing.T) {
	journal, journalErr := storage.NewJournal(nil)
	require.ErrorIs(testingT, journalErr, storage.ErrMissingDatabase)
	require.Nil(testingT, journal)
}

func TestJournalListByShellOrdersNewestFirst(testingT *testing.T) {
	journal, _ := openTestJournal(testingT)
	ctx := context.Background()
	baseTime := time.Now().UTC().Add(-time.Hour)

	pageSequence := []string{"login", "client-home-page", "wallet", "shipments"}
	for index, pageID := range pageSequence {
		result := buildResult(pageID, shell.OutcomeCompleted, baseTime.Add(time.Duration(index)*time.Minute))
		require.NoError(testingT, journal.RecordNavigation(ctx, testShellIdentifier, result))
	}
	require.NoError(testingT, journal.RecordNavigation(ctx, testOtherShellIdentifier, buildResult("support", shell.OutcomeCompleted, baseTime)))

	records, listErr := journal.ListByShell(ctx, testShellIdentifier, 3)
	require.NoError(testingT, listErr)
	require.Len(testingT, records, 3)
	require.Equal(testingT, "shipments", records[0].PageID)
	require.Equal(testingT, "wallet", records[1].PageID)
	require.Equal(testingT, "client-home-page", records[2].PageID)

	allRecords, listErr := journal.ListByShell(ctx, testShellIdentifier, 0)
	require.NoError(testingT, listErr)
	require.Len(testingT, allRecords, len(pageSequence))
}

func TestJournalRecordsRejectionsAndCountsOutcomes(testingT *testing.T) {
	journal, _ := openTestJournal(testingT)
	ctx := context.Background()
	startedAt := time.Now().UTC()

	require.NoError(testingT, journal.RecordNavigation(ctx, testShellIdentifier, buildResult("wallet", shell.OutcomeCompleted, startedAt)))
	require.NoError(testingT, journal.RecordNavigation(ctx, testShellIdentifier, buildResult("", shell.OutcomeRejected, startedAt)))
	failed := buildResult("support", shell.OutcomeFailed, startedAt)
	failed.Detail = "templates: not found"
	require.NoError(testingT, journal.RecordNavigation(ctx, testShellIdentifier, failed))
	require.NoError(testingT, journal.RecordNavigation(ctx, testShellIdentifier, buildResult("support", shell.OutcomeFailed, startedAt)))

	counts, countErr := journal.CountOutcomes(ctx, testShellIdentifier)
	require.NoError(testingT, countErr)
	require.Equal(testingT, map[string]int64{
		model.NavigationOutcomeCompleted: 1,
		model.NavigationOutcomeRejected:  1,
		model.NavigationOutcomeFailed:    2,
	}, counts)
}

func TestJournalRejectsInvalidResults(testingT *testing.T) {
	journal, _ := openTestJournal(testingT)

	recordErr := journal.RecordNavigation(context.Background(), "", buildResult("wallet", shell.OutcomeCompleted, time.Now().UTC()))
	require.ErrorIs(testingT, recordErr, model.ErrInvalidNavigationShellID)

	recordErr = journal.RecordNavigation(context.Background(), testShellIdentifier, shell.Result{PageID: "wallet", Outcome: shell.OutcomeCompleted})
	require.ErrorIs(testingT, recordErr, model.ErrInvalidNavigationTiming)
}

func TestJournalPruneBefore(testingT *testing.T) {
	journal, _ := openTestJournal(testingT)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(testingT, journal.RecordNavigation(ctx, testShellIdentifier, buildResult("wallet", shell.OutcomeCompleted, now.Add(-48*time.Hour))))
	require.NoError(testingT, journal.RecordNavigation(ctx, testShellIdentifier, buildResult("shipments", shell.OutcomeCompleted, now)))

	removed, pruneErr := journal.PruneBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(testingT, pruneErr)
	require.Equal(testingT, int64(1), removed)

	records, listErr := journal.ListByShell(ctx, testShellIdentifier, 0)
	require.NoError(testingT, listErr)
	require.Len(testingT, records, 1)
	require.Equal(testingT, "shipments", records[0].PageID)
}

func TestJournalReportsErrorOnClosedDatabase(testingT *testing.T) {
	journal, database := openTestJournal(testingT)
	sqlDatabase, sqlErr := database.DB()
	require.NoError(testingT, sqlErr)
	require.NoError(testingT, sqlDatabase.Close())

	_, listErr := journal.ListByShell(context.Background(), testShellIdentifier, 10)
	require.Error(testingT, listErr)
	require.Error(testingT, storage.AutoMigrate(database))
}
