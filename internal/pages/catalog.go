package pages

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	errorMessageUnknownPage      = "pages: unknown page"
	errorMessageDuplicatePage    = "pages: duplicate page"
	errorMessageEmptyCatalog     = "pages: catalog has no pages"
	errorMessageReadManifest     = "pages: read manifest"
	errorMessageParseManifest    = "pages: parse manifest"
	errorMessageManifestEntryFmt = "pages: manifest entry %d"
)

var (
	// ErrUnknownPage indicates a page identifier outside the catalog.
	ErrUnknownPage = errors.New(errorMessageUnknownPage)
	// ErrDuplicatePage indicates a page identifier listed twice.
	ErrDuplicatePage = errors.New(errorMessageDuplicatePage)
	// ErrEmptyCatalog indicates a manifest without entries.
	ErrEmptyCatalog = errors.New(errorMessageEmptyCatalog)
)

// Entry describes one page known to the shell.
type Entry struct {
	ID    ID     `yaml:"id"`
	Title string `yaml:"title"`
	Nav   bool   `yaml:"nav"`
}

type manifestDocument struct {
	DefaultPage string          `yaml:"default_page"`
	Pages       []manifestEntry `yaml:"pages"`
}

type manifestEntry struct {
	ID    string `yaml:"id"`
	Title string `yaml:"title"`
	Nav   bool   `yaml:"nav"`
}

// Catalog is the closed set of page identifiers the shell accepts.
type Catalog struct {
	entries     []Entry
	byID        map[ID]Entry
	defaultPage ID
}

// NewCatalog validates entries and builds a catalog. The first entry is the default page.
func NewCatalog(entries []Entry) (*Catalog, error) {
	if len(entries) == 0 {
		return nil, ErrEmptyCatalog
	}
	catalog := &Catalog{
		entries: make([]Entry, 0, len(entries)),
		byID:    make(map[ID]Entry, len(entries)),
	}
	for _, entry := range entries {
		parsedID, parseErr := ParseID(string(entry.ID))
		if parseErr != nil {
			return nil, parseErr
		}
		if _, exists := catalog.byID[parsedID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePage, parsedID)
		}
		entry.ID = parsedID
		entry.Title = strings.TrimSpace(entry.Title)
		catalog.entries = append(catalog.entries, entry)
		catalog.byID[parsedID] = entry
	}
	catalog.defaultPage = catalog.entries[0].ID
	return catalog, nil
}

// LoadManifest reads a YAML page manifest from disk.
func LoadManifest(path string) (*Catalog, error) {
	document, readErr := os.ReadFile(path)
	if readErr != nil {
		return nil, fmt.Errorf("%s %s: %w", errorMessageReadManifest, path, readErr)
	}
	return ParseManifest(document)
}

// ParseManifest decodes a YAML page manifest:
//
//	default_page: login
//	pages:
//	  - id: login
//	    title: تسجيل الدخول
//	  - id: wallet
//	    title: المحفظة
//	    nav: true
func ParseManifest(document []byte) (*Catalog, error) {
	var manifest manifestDocument
	decoder := yaml.NewDecoder(bytes.NewReader(document))
	decoder.KnownFields(true)
	if decodeErr := decoder.Decode(&manifest); decodeErr != nil {
		return nil, fmt.Errorf("%s: %w", errorMessageParseManifest, decodeErr)
	}

	entries := make([]Entry, 0, len(manifest.Pages))
	for index, rawEntry := range manifest.Pages {
		parsedID, parseErr := ParseID(rawEntry.ID)
		if parseErr != nil {
			return nil, fmt.Errorf(errorMessageManifestEntryFmt+": %w", index, parseErr)
		}
		entries = append(entries, Entry{ID: parsedID, Title: rawEntry.Title, Nav: rawEntry.Nav})
	}

	catalog, catalogErr := NewCatalog(entries)
	if catalogErr != nil {
		return nil, catalogErr
	}

	if strings.TrimSpace(manifest.DefaultPage) != "" {
		defaultPage, resolveErr := catalog.Resolve(manifest.DefaultPage)
		if resolveErr != nil {
			return nil, resolveErr
		}
		catalog.defaultPage = defaultPage
	}
	return catalog, nil
}

// Resolve validates a raw identifier against the catalog.
func (catalog *Catalog) Resolve(rawID string) (ID, error) {
	parsedID, parseErr := ParseID(rawID)
	if parseErr != nil {
		return "", parseErr
	}
	if _, known := catalog.byID[parsedID]; !known {
		return "", fmt.Errorf("%w: %s", ErrUnknownPage, parsedID)
	}
	return parsedID, nil
}

func (catalog *Catalog) Lookup(id ID) (Entry, bool) {
	entry, found := catalog.byID[id]
	return entry, found
}

func (catalog *Catalog) Contains(id ID) bool {
	_, found := catalog.byID[id]
	return found
}

// IDs returns page identifiers in manifest order.
func (catalog *Catalog) IDs() []ID {
	identifiers := make([]ID, 0, len(catalog.entries))
	for _, entry := range catalog.entries {
		identifiers = append(identifiers, entry.ID)
	}
	return identifiers
}

func (catalog *Catalog) Entries() []Entry {
	return append([]Entry(nil), catalog.entries...)
}

// NavEntries returns the pages that have a navigation affordance.
func (catalog *Catalog) NavEntries() []Entry {
	var navigation []Entry
	for _, entry := range catalog.entries {
		if entry.Nav {
			navigation = append(navigation, entry)
		}
	}
	return navigation
}

func (catalog *Catalog) DefaultPage() ID {
	return catalog.defaultPage
}
