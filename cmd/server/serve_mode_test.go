package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseServeMode(testingT *testing.T) {
	testCases := []struct {
		name            string
		rawInput        string
		expectedMode    ServeMode
		expectedError   bool
		servesShells    bool
		servesTemplates bool
	}{
		{name: "empty defaults to monolith", rawInput: "", expectedMode: ServeModeMonolith, servesShells: true, servesTemplates: true},
		{name: "shell mode", rawInput: " Shell ", expectedMode: ServeModeShell, servesShells: true},
		{name: "templates mode", rawInput: "templates", expectedMode: ServeModeTemplates, servesTemplates: true},
		{name: "unknown mode", rawInput: "web", expectedError: true},
	}

	for _, testCase := range testCases {
		testingT.Run(testCase.name, func(testingT *testing.T) {
			mode, parseErr := ParseServeMode(testCase.rawInput)
			if testCase.expectedError {
				require.ErrorIs(testingT, parseErr, ErrInvalidServeMode)
				return
			}
			require.NoError(testingT, parseErr)
			require.Equal(testingT, testCase.expectedMode, mode)
			require.Equal(testingT, testCase.servesShells, mode.ServesShells())
			require.Equal(testingT, testCase.servesTemplates, mode.ServesTemplates())
		})
	}
}
