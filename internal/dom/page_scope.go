package dom

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/MarkoPoloResearchLab/pageshell/internal/pages"
)

// ErrRoleNotFound indicates no element with the requested data-role exists in the page node.
var ErrRoleNotFound = errors.New("dom: role not found")

// SetRoleText replaces the content of the [data-role=role] element inside the page node with text.
func (document *Document) SetRoleText(pageID pages.ID, role string, text string) error {
	document.mutex.Lock()
	defer document.mutex.Unlock()

	roleNode, locateErr := document.roleNodeLocked(pageID, role)
	if locateErr != nil {
		return locateErr
	}
	removeChildren(roleNode)
	roleNode.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	return nil
}

// ReplaceRoleHTML replaces the content of the [data-role=role] element with a parsed fragment.
func (document *Document) ReplaceRoleHTML(pageID pages.ID, role string, fragment string) error {
	document.mutex.Lock()
	defer document.mutex.Unlock()

	roleNode, locateErr := document.roleNodeLocked(pageID, role)
	if locateErr != nil {
		return locateErr
	}
	fragmentNodes, parseErr := html.ParseFragment(strings.NewReader(fragment), roleNode)
	if parseErr != nil {
		return fmt.Errorf("%s %s: %w", errorMessageParseFragment, pageID, parseErr)
	}
	removeChildren(roleNode)
	for _, fragmentNode := range fragmentNodes {
		roleNode.AppendChild(fragmentNode)
	}
	return nil
}

// RoleText returns the text content of the [data-role=role] element inside the page node.
func (document *Document) RoleText(pageID pages.ID, role string) (string, error) {
	document.mutex.RLock()
	defer document.mutex.RUnlock()

	roleNode, locateErr := document.roleNodeLocked(pageID, role)
	if locateErr != nil {
		return "", locateErr
	}
	return strings.TrimSpace(textContent(roleNode)), nil
}

// SetRoleAttribute sets an attribute on the [data-role=role] element inside the page node.
func (document *Document) SetRoleAttribute(pageID pages.ID, role string, key string, value string) error {
	document.mutex.Lock()
	defer document.mutex.Unlock()

	roleNode, locateErr := document.roleNodeLocked(pageID, role)
	if locateErr != nil {
		return locateErr
	}
	setAttribute(roleNode, key, value)
	return nil
}

func (document *Document) roleNodeLocked(pageID pages.ID, role string) (*html.Node, error) {
	pageNode := document.pageNodeLocked(pageID)
	if pageNode == nil {
		return nil, fmt.Errorf("%w: %s", ErrPageNotMounted, pageID)
	}
	roleNode := findFirst(pageNode, func(candidate *html.Node) bool {
		value, tagged := lookupAttribute(candidate, AttributeRole)
		return tagged && value == role
	})
	if roleNode == nil {
		return nil, fmt.Errorf("%w: %s in %s", ErrRoleNotFound, role, pageID)
	}
	return roleNode, nil
}
