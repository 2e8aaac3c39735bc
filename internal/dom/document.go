// Package dom holds the server-side shell document: a parsed HTML tree with a
// single mount point into which page fragments are injected.
package dom

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/MarkoPoloResearchLab/pageshell/internal/pages"
)

const (
	// DefaultMountPointID is the id attribute of the element pages are mounted into.
	DefaultMountPointID = "page-container"
	// AttributePageID tags a mounted page node with its page identifier.
	AttributePageID = "data-page-id"
	// AttributeNavigationTarget marks a navigation affordance and names the page it opens.
	AttributeNavigationTarget = "data-page"
	// AttributeRole names an element that a controller fills in.
	AttributeRole = "data-role"
	// ClassActive marks the active page node and the active navigation affordance.
	ClassActive = "active"
	// ClassPage is set on every mounted page node.
	ClassPage = "page"

	errorMessageParseDocument    = "dom: parse document"
	errorMessageParseFragment    = "dom: parse fragment"
	errorMessageRenderDocument   = "dom: render document"
	errorMessageMountPointNotSet = "dom: mount point not located"
	errorMessageMountPointAbsent = "dom: mount point missing"
	errorMessagePageNotMounted   = "dom: page not mounted"
)

var (
	// ErrMountPointMissing indicates the shell document has no element with the mount point id.
	ErrMountPointMissing = errors.New(errorMessageMountPointAbsent)
	// ErrMountPointNotLocated indicates LocateMountPoint has not succeeded yet.
	ErrMountPointNotLocated = errors.New(errorMessageMountPointNotSet)
	// ErrPageNotMounted indicates no node for the page exists under the mount point.
	ErrPageNotMounted = errors.New(errorMessagePageNotMounted)
)

// Document is safe for concurrent use; every method takes the document lock.
type Document struct {
	mutex        sync.RWMutex
	root         *html.Node
	mountPointID string
	mountPoint   *html.Node
}

// Parse builds a Document from a complete shell page.
func Parse(shellHTML string) (*Document, error) {
	root, parseErr := html.Parse(strings.NewReader(shellHTML))
	if parseErr != nil {
		return nil, fmt.Errorf("%s: %w", errorMessageParseDocument, parseErr)
	}
	return &Document{root: root}, nil
}

// LocateMountPoint finds and caches the element with the given id.
func (document *Document) LocateMountPoint(mountPointID string) error {
	document.mutex.Lock()
	defer document.mutex.Unlock()

	if mountPointID == "" {
		mountPointID = DefaultMountPointID
	}
	node := findFirst(document.root, func(candidate *html.Node) bool {
		return candidate.Type == html.ElementNode && attributeValue(candidate, "id") == mountPointID
	})
	if node == nil {
		return fmt.Errorf("%w: #%s", ErrMountPointMissing, mountPointID)
	}
	document.mountPointID = mountPointID
	document.mountPoint = node
	return nil
}

func (document *Document) MountPointID() string {
	document.mutex.RLock()
	defer document.mutex.RUnlock()
	return document.mountPointID
}

// ClearMountPoint removes every child of the mount point.
func (document *Document) ClearMountPoint() error {
	document.mutex.Lock()
	defer document.mutex.Unlock()

	if document.mountPoint == nil {
		return ErrMountPointNotLocated
	}
	removeChildren(document.mountPoint)
	return nil
}

// MountPage wraps the fragment in a page node tagged with the page identifier and
// appends it to the mount point.
func (document *Document) MountPage(pageID pages.ID, fragment string) error {
	document.mutex.Lock()
	defer document.mutex.Unlock()

	if document.mountPoint == nil {
		return ErrMountPointNotLocated
	}

	container := &html.Node{
		Type:     html.ElementNode,
		Data:     atom.Div.String(),
		DataAtom: atom.Div,
		Attr: []html.Attribute{
			{Key: "id", Val: "page-" + pageID.String()},
			{Key: "class", Val: ClassPage},
			{Key: AttributePageID, Val: pageID.String()},
		},
	}

	fragmentNodes, parseErr := html.ParseFragment(strings.NewReader(fragment), container)
	if parseErr != nil {
		return fmt.Errorf("%s %s: %w", errorMessageParseFragment, pageID, parseErr)
	}
	for _, fragmentNode := range fragmentNodes {
		container.AppendChild(fragmentNode)
	}
	document.mountPoint.AppendChild(container)
	return nil
}

// ActivatePage adds the active class to the mounted node of the page.
func (document *Document) ActivatePage(pageID pages.ID) error {
	document.mutex.Lock()
	defer document.mutex.Unlock()

	pageNode := document.pageNodeLocked(pageID)
	if pageNode == nil {
		return fmt.Errorf("%w: %s", ErrPageNotMounted, pageID)
	}
	addClass(pageNode, ClassActive)
	return nil
}

// SyncNavigation clears the active class from every navigation affordance and sets it
// on the affordances that target pageID. It returns how many affordances were activated.
func (document *Document) SyncNavigation(pageID pages.ID) int {
	document.mutex.Lock()
	defer document.mutex.Unlock()

	activated := 0
	walk(document.root, func(node *html.Node) {
		if node.Type != html.ElementNode {
			return
		}
		target, isAffordance := lookupAttribute(node, AttributeNavigationTarget)
		if !isAffordance {
			return
		}
		removeClass(node, ClassActive)
		if target == pageID.String() {
			addClass(node, ClassActive)
			activated++
		}
	})
	return activated
}

// ActiveNavigationTargets lists the page identifiers of affordances carrying the active class.
func (document *Document) ActiveNavigationTargets() []string {
	document.mutex.RLock()
	defer document.mutex.RUnlock()

	var targets []string
	walk(document.root, func(node *html.Node) {
		if node.Type != html.ElementNode {
			return
		}
		target, isAffordance := lookupAttribute(node, AttributeNavigationTarget)
		if isAffordance && hasClass(node, ClassActive) {
			targets = append(targets, target)
		}
	})
	return targets
}

// NavigationTargets lists the distinct page identifiers named by navigation affordances, in document order.
func (document *Document) NavigationTargets() []string {
	document.mutex.RLock()
	defer document.mutex.RUnlock()

	seen := make(map[string]struct{})
	var targets []string
	walk(document.root, func(node *html.Node) {
		if node.Type != html.ElementNode {
			return
		}
		target, isAffordance := lookupAttribute(node, AttributeNavigationTarget)
		if !isAffordance {
			return
		}
		if _, duplicate := seen[target]; duplicate {
			return
		}
		seen[target] = struct{}{}
		targets = append(targets, target)
	})
	return targets
}

// MountedPages lists the page identifiers of nodes currently under the mount point.
func (document *Document) MountedPages() []string {
	document.mutex.RLock()
	defer document.mutex.RUnlock()

	if document.mountPoint == nil {
		return nil
	}
	var mounted []string
	for child := document.mountPoint.FirstChild; child != nil; child = child.NextSibling {
		if pageID, tagged := lookupAttribute(child, AttributePageID); tagged {
			mounted = append(mounted, pageID)
		}
	}
	return mounted
}

// IsPageActive reports whether the page node is mounted and carries the active class.
func (document *Document) IsPageActive(pageID pages.ID) bool {
	document.mutex.RLock()
	defer document.mutex.RUnlock()

	pageNode := document.pageNodeLocked(pageID)
	return pageNode != nil && hasClass(pageNode, ClassActive)
}

// Render serialises the whole document.
func (document *Document) Render() (string, error) {
	document.mutex.RLock()
	defer document.mutex.RUnlock()

	var buffer bytes.Buffer
	if renderErr := html.Render(&buffer, document.root); renderErr != nil {
		return "", fmt.Errorf("%s: %w", errorMessageRenderDocument, renderErr)
	}
	return buffer.String(), nil
}

// RenderMountPoint serialises the children of the mount point.
func (document *Document) RenderMountPoint() (string, error) {
	document.mutex.RLock()
	defer document.mutex.RUnlock()

	if document.mountPoint == nil {
		return "", ErrMountPointNotLocated
	}
	return renderChildren(document.mountPoint)
}

func (document *Document) pageNodeLocked(pageID pages.ID) *html.Node {
	if document.mountPoint == nil {
		return nil
	}
	return findFirst(document.mountPoint, func(candidate *html.Node) bool {
		value, tagged := lookupAttribute(candidate, AttributePageID)
		return tagged && value == pageID.String()
	})
}
