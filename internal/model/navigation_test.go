package model

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	testNavigationShellID = "shell-123"
	testNavigationPageID  = "wallet"
)

func TestNewNavigationRecordValidatesAndNormalizes(testingT *testing.T) {
	startedAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("AST", 3*60*60))
	record, err := NewNavigationRecord(NavigationRecordInput{
		ShellID:               "  " + testNavigationShellID + " ",
		NavigationID:          "nav-1",
		PageID:                " " + testNavigationPageID,
		Outcome:               NavigationOutcomeCompleted,
		Detail:                strings.Repeat("x", navigationDetailMaxLength+10),
		ControllerInitialized: true,
		StartedAt:             startedAt,
		FinishedAt:            startedAt.Add(120 * time.Millisecond),
	})
	require.NoError(testingT, err)

	require.NotEmpty(testingT, record.ID)
	require.Equal(testingT, testNavigationShellID, record.ShellID)
	require.Equal(testingT, "nav-1", record.NavigationID)
	require.Equal(testingT, testNavigationPageID, record.PageID)
	require.Len(testingT, record.Detail, navigationDetailMaxLength)
	require.True(testingT, record.ControllerInitialized)
	require.Equal(testingT, time.UTC, record.StartedAt.Location())
	require.Equal(testingT, 120*time.Millisecond, record.Duration())
}

func TestNewNavigationRecordRejectsInvalidInput(testingT *testing.T) {
	startedAt := time.Now().UTC()

	testCases := []struct {
		name          string
		input         NavigationRecordInput
		expectedError error
	}{
		{
			name:          "missing shell",
			input:         NavigationRecordInput{PageID: testNavigationPageID, Outcome: NavigationOutcomeCompleted, StartedAt: startedAt, FinishedAt: startedAt},
			expectedError: ErrInvalidNavigationShellID,
		},
		{
			name:          "unknown outcome",
			input:         NavigationRecordInput{ShellID: testNavigationShellID, PageID: testNavigationPageID, Outcome: "teleported", StartedAt: startedAt, FinishedAt: startedAt},
			expectedError: ErrInvalidNavigationOutcome,
		},
		{
			name:          "missing page",
			input:         NavigationRecordInput{ShellID: testNavigationShellID, Outcome: NavigationOutcomeFailed, StartedAt: startedAt, FinishedAt: startedAt},
			expectedError: ErrInvalidNavigationPageID,
		},
		{
			name:          "finished before start",
			input:         NavigationRecordInput{ShellID: testNavigationShellID, PageID: testNavigationPageID, Outcome: NavigationOutcomeCompleted, StartedAt: startedAt, FinishedAt: startedAt.Add(-time.Second)},
			expectedError: ErrInvalidNavigationTiming,
		},
	}

	for _, testCase := range testCases {
		testingT.Run(testCase.name, func(testingT *testing.T) {
			_, err := NewNavigationRecord(testCase.input)
			require.ErrorIs(testingT, err, testCase.expectedError)
		})
	}
}

func TestNewNavigationRecordAllowsEmptyPageForRejections(testingT *testing.T) {
	startedAt := time.Now().UTC()
	record, err := NewNavigationRecord(NavigationRecordInput{
		ShellID:    testNavigationShellID,
		Outcome:    NavigationOutcomeRejected,
		StartedAt:  startedAt,
		FinishedAt: startedAt,
	})
	require.NoError(testingT, err)
	require.Empty(testingT, record.PageID)
	require.NotEmpty(testingT, record.NavigationID)
}
