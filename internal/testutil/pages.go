package testutil

import (
	"testing"
	"testing/fstest"

	"github.com/MarkoPoloResearchLab/pageshell/internal/pages"
)

// ShellDocument is a minimal right-to-left shell with a navigation bar and the default mount point.
const ShellDocument = `<!doctype html>
<html lang="ar" dir="rtl">
<head><meta charset="utf-8"><title>الشحن</title></head>
<body>
<nav>
  <a href="#" data-page="client-home-page">الرئيسية</a>
  <a href="#" data-page="wallet">المحفظة</a>
  <a href="#" data-page="shipments">الشحنات</a>
  <a href="#" data-page="support">الدعم</a>
</nav>
<main id="page-container"></main>
</body>
</html>`

// TemplateRoot is the directory of page templates inside TemplateFiles.
const TemplateRoot = "templates/pages"

// CatalogEntries lists the pages of the fixtures. The first entry is the default page.
func CatalogEntries() []pages.Entry {
	return []pages.Entry{
		{ID: "client-home-page", Title: "الرئيسية", Nav: true},
		{ID: "login", Title: "تسجيل الدخول"},
		{ID: "wallet", Title: "المحفظة", Nav: true},
		{ID: "shipments", Title: "الشحنات", Nav: true},
		{ID: "support", Title: "الدعم", Nav: true},
	}
}

// NewCatalog builds the fixture catalog.
func NewCatalog(testingT *testing.T) *pages.Catalog {
	testingT.Helper()
	catalog, catalogErr := pages.NewCatalog(CatalogEntries())
	if catalogErr != nil {
		testingT.Fatalf("build catalog: %v", catalogErr)
	}
	return catalog
}

// TemplateFiles holds a template for every fixture page except support, whose load fails with not found.
func TemplateFiles() fstest.MapFS {
	return fstest.MapFS{
		TemplateRoot + "/client-home-page.html": {Data: []byte(`<h1 data-role="greeting">مرحباً</h1><p data-role="shipment-count">0</p>`)},
		TemplateRoot + "/login.html":            {Data: []byte(`<form data-role="login-form"><input name="phone"></form>`)},
		TemplateRoot + "/wallet.html":           {Data: []byte(`<h1>المحفظة</h1><p data-role="balance">--</p>`)},
		TemplateRoot + "/shipments.html":        {Data: []byte(`<table><tbody data-role="rows"></tbody></table>`)},
	}
}
