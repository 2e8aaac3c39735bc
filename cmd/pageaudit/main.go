package main

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MarkoPoloResearchLab/pageshell/internal/controller"
	"github.com/MarkoPoloResearchLab/pageshell/internal/controllers"
	"github.com/MarkoPoloResearchLab/pageshell/internal/dom"
	"github.com/MarkoPoloResearchLab/pageshell/internal/httpapi"
	"github.com/MarkoPoloResearchLab/pageshell/internal/pages"
)

const (
	commandUseName           = "pageaudit"
	commandShortDescription  = "Check the page manifest against templates, controllers and the shell document"
	flagNameManifest         = "manifest"
	flagNameTemplateDir      = "template-dir"
	flagNameTemplateRoot     = "template-root"
	flagNameShellDocument    = "shell"
	auditFailedMessage       = "page-audit failed"
	auditPassedMessage       = "page-audit OK"
	commandInitializationErr = "failed to configure command"
)

type auditOptions struct {
	manifestPath      string
	templateDirectory string
	templateRoot      string
	shellPath         string
}

type auditResult struct {
	errors   []string
	warnings []string
}

func (result *auditResult) addError(message string, arguments ...any) {
	result.errors = append(result.errors, fmt.Sprintf(message, arguments...))
}

func (result *auditResult) addWarning(message string, arguments ...any) {
	result.warnings = append(result.warnings, fmt.Sprintf(message, arguments...))
}

func (result auditResult) ok() bool {
	return len(result.errors) == 0
}

func newCommand() *cobra.Command {
	var options auditOptions
	command := &cobra.Command{
		Use:           commandUseName,
		Short:         commandShortDescription,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(command *cobra.Command, arguments []string) error {
			result := runAudit(options)
			if !report(result, command.OutOrStdout(), command.ErrOrStderr()) {
				return fmt.Errorf("%s", auditFailedMessage)
			}
			return nil
		},
	}
	command.Flags().StringVar(&options.manifestPath, flagNameManifest, "", "YAML page manifest; the built-in manifest when empty")
	command.Flags().StringVar(&options.templateDirectory, flagNameTemplateDir, "", "directory holding page templates; the built-in templates when empty")
	command.Flags().StringVar(&options.templateRoot, flagNameTemplateRoot, httpapi.PageTemplateRoot, "path of page templates below the template directory")
	command.Flags().StringVar(&options.shellPath, flagNameShellDocument, "", "shell document; the built-in shell when empty")
	return command
}

func main() {
	if executeErr := newCommand().Execute(); executeErr != nil {
		os.Exit(1)
	}
}

func report(result auditResult, stdout io.Writer, stderr io.Writer) bool {
	sort.Strings(result.errors)
	sort.Strings(result.warnings)

	for _, warning := range result.warnings {
		_, _ = fmt.Fprintf(stdout, "WARN: %s\n", warning)
	}
	for _, errorMessage := range result.errors {
		_, _ = fmt.Fprintf(stderr, "ERROR: %s\n", errorMessage)
	}
	if !result.ok() {
		_, _ = fmt.Fprintf(stderr, "%s\n", auditFailedMessage)
		return false
	}
	_, _ = fmt.Fprintf(stdout, "%s\n", auditPassedMessage)
	return true
}

func runAudit(options auditOptions) auditResult {
	var result auditResult

	catalog, catalogErr := loadCatalog(options.manifestPath)
	if catalogErr != nil {
		result.addError("manifest: %v", catalogErr)
		return result
	}

	templateFiles, templateRoot := templateSource(options)
	checkTemplates(catalog, templateFiles, templateRoot, &result)
	checkControllers(catalog, &result)

	shellDocument, shellErr := loadShellDocument(options.shellPath)
	if shellErr != nil {
		result.addError("shell document: %v", shellErr)
		return result
	}
	checkShellDocument(catalog, shellDocument, &result)

	return result
}

func loadCatalog(manifestPath string) (*pages.Catalog, error) {
	if strings.TrimSpace(manifestPath) == "" {
		return pages.ParseManifest(httpapi.PageManifestYAML)
	}
	return pages.LoadManifest(manifestPath)
}

func templateSource(options auditOptions) (fs.FS, string) {
	if strings.TrimSpace(options.templateDirectory) == "" {
		return httpapi.PageTemplateFiles, httpapi.PageTemplateRoot
	}
	return os.DirFS(options.templateDirectory), options.templateRoot
}

func loadShellDocument(shellPath string) (string, error) {
	if strings.TrimSpace(shellPath) == "" {
		return httpapi.ShellDocumentHTML, nil
	}
	document, readErr := os.ReadFile(shellPath)
	if readErr != nil {
		return "", readErr
	}
	return string(document), nil
}

func checkTemplates(catalog *pages.Catalog, templateFiles fs.FS, templateRoot string, result *auditResult) {
	discovered, invalidNames, discoverErr := pages.DiscoverTemplates(templateFiles, templateRoot)
	if discoverErr != nil {
		result.addError("templates: %v", discoverErr)
		return
	}
	for _, invalidName := range invalidNames {
		result.addWarning("templates: %s is not named after a valid page identifier", invalidName)
	}

	available := make(map[pages.ID]struct{}, len(discovered))
	for _, pageID := range discovered {
		available[pageID] = struct{}{}
		if !catalog.Contains(pageID) {
			result.addWarning("templates: %s has no manifest entry", pageID)
		}
	}

	for _, pageID := range catalog.IDs() {
		templatePath := path.Join(templateRoot, pageID.String()+pages.TemplateExtension)
		if _, found := available[pageID]; !found {
			result.addError("page %s: template %s is missing", pageID, templatePath)
			continue
		}
		fragment, readErr := fs.ReadFile(templateFiles, templatePath)
		if readErr != nil {
			result.addError("page %s: read %s: %v", pageID, templatePath, readErr)
			continue
		}
		if strings.TrimSpace(string(fragment)) == "" {
			result.addError("page %s: template %s is empty", pageID, templatePath)
		}
	}
}

func checkControllers(catalog *pages.Catalog, result *auditResult) {
	registry := controller.NewRegistry()
	registerErr := controllers.RegisterAll(registry, catalog, controllers.Options{
		Accounts: controllers.NewStaticAccountSource(controllers.DemoAccount()),
	})
	if registerErr != nil {
		result.addError("controllers: %v", registerErr)
		return
	}
	if validateErr := registry.Validate(catalog); validateErr != nil {
		for _, line := range strings.Split(validateErr.Error(), "\n") {
			result.addError("controllers: %s", line)
		}
	}
}

func checkShellDocument(catalog *pages.Catalog, shellDocument string, result *auditResult) {
	document, parseErr := dom.Parse(shellDocument)
	if parseErr != nil {
		result.addError("shell document: %v", parseErr)
		return
	}
	if locateErr := document.LocateMountPoint(dom.DefaultMountPointID); locateErr != nil {
		result.addError("shell document: %v", locateErr)
	}

	linked := make(map[string]struct{})
	for _, target := range document.NavigationTargets() {
		linked[target] = struct{}{}
		if _, resolveErr := catalog.Resolve(target); resolveErr != nil {
			result.addError("shell document: navigation target %q is not a manifest page", target)
		}
	}
	for _, entry := range catalog.NavEntries() {
		if _, found := linked[entry.ID.String()]; !found {
			result.addWarning("shell document: page %s is marked nav but has no navigation link", entry.ID)
		}
	}
}
