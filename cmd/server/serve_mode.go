package main

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidServeMode = errors.New("invalid serve mode")

// ServeMode selects which surfaces a server process exposes.
type ServeMode string

const (
	// ServeModeMonolith serves shells and the page templates they load.
	ServeModeMonolith ServeMode = "monolith"
	// ServeModeShell serves shells that fetch templates from a separate template host.
	ServeModeShell ServeMode = "shell"
	// ServeModeTemplates serves page templates only.
	ServeModeTemplates ServeMode = "templates"
)

func ParseServeMode(rawInput string) (ServeMode, error) {
	normalized := strings.ToLower(strings.TrimSpace(rawInput))
	if normalized == "" {
		return ServeModeMonolith, nil
	}

	mode := ServeMode(normalized)
	switch mode {
	case ServeModeMonolith, ServeModeShell, ServeModeTemplates:
		return mode, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidServeMode, rawInput)
	}
}

func (mode ServeMode) ServesShells() bool {
	return mode == ServeModeMonolith || mode == ServeModeShell
}

func (mode ServeMode) ServesTemplates() bool {
	return mode == ServeModeMonolith || mode == ServeModeTemplates
}
