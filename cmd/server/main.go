package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/pageshell/internal/controller"
	"github.com/MarkoPoloResearchLab/pageshell/internal/controllers"
	"github.com/MarkoPoloResearchLab/pageshell/internal/dom"
	"github.com/MarkoPoloResearchLab/pageshell/internal/httpapi"
	"github.com/MarkoPoloResearchLab/pageshell/internal/pages"
	"github.com/MarkoPoloResearchLab/pageshell/internal/session"
	"github.com/MarkoPoloResearchLab/pageshell/internal/shell"
	"github.com/MarkoPoloResearchLab/pageshell/internal/storage"
	"github.com/MarkoPoloResearchLab/pageshell/internal/templates"
)

const (
	commandUseName                  = "server"
	commandShortDescription         = "Run the page shell server"
	commandLongDescription          = "Serve server-held page shells, their navigation API and the page templates they load"
	missingConfigurationMessage     = "missing required configuration"
	loggerCreationErrorMessage      = "logger"
	logEventListening               = "listening"
	logEventShuttingDown            = "shutting_down"
	logFieldAddress                 = "addr"
	logFieldServeMode               = "mode"
	loggerContextOpenDatabase       = "open_db"
	loggerContextAutoMigrate        = "migrate"
	loggerContextServer             = "server"
	loggerContextBuild              = "build_server"
	readHeaderTimeoutSeconds        = 5
	shutdownTimeout                 = 10 * time.Second
	unexpectedArgumentsMessage      = "unexpected command arguments"
	commandInitializationFailure    = "failed to configure command"
	flagNotDefinedMessage           = "flag %s not defined"
	unsupportedFlagDefaultMessage   = "flag %s has unsupported default %T"
	environmentConfigurationError   = "failed to apply environment configuration"
	errorMessageLoadCatalog         = "load page catalog"
	errorMessageBuildLoader         = "build template loader"
	errorMessageRegisterControllers = "register controllers"
	errorMessageOpenJournal         = "open navigation journal"
	errorMessageBuildManager        = "build shell manager"

	flagNameApplicationAddress  = "app-addr"
	flagNameServeMode           = "serve-mode"
	flagNamePagesManifest       = "pages-manifest"
	flagNameTemplateDirectory   = "template-dir"
	flagNameTemplateBaseURL     = "template-base-url"
	flagNameTemplateRoot        = "template-root"
	flagNameSessionSecret       = "session-secret"
	flagNameSecureCookies       = "secure-cookies"
	flagNameJournalDataSource   = "journal-dsn"
	flagNameJournalRetention    = "journal-retention"
	flagNameShellIdleTimeout    = "shell-idle-timeout"
	flagNameNavigationInitDelay = "nav-init-delay"
	flagNameNavigationHideDelay = "nav-hide-delay"
	flagNameLogDevelopment      = "log-dev"

	environmentKeyApplicationAddress  = "APP_ADDR"
	environmentKeyServeMode           = "SERVE_MODE"
	environmentKeyPagesManifest       = "PAGES_MANIFEST"
	environmentKeyTemplateDirectory   = "TEMPLATE_DIR"
	environmentKeyTemplateBaseURL     = "TEMPLATE_BASE_URL"
	environmentKeyTemplateRoot        = "TEMPLATE_ROOT"
	environmentKeySessionSecret       = "SESSION_SECRET"
	environmentKeySecureCookies       = "SECURE_COOKIES"
	environmentKeyJournalDataSource   = "JOURNAL_DSN"
	environmentKeyJournalRetention    = "JOURNAL_RETENTION"
	environmentKeyShellIdleTimeout    = "SHELL_IDLE_TIMEOUT"
	environmentKeyNavigationInitDelay = "NAV_INIT_DELAY"
	environmentKeyNavigationHideDelay = "NAV_HIDE_DELAY"
	environmentKeyLogDevelopment      = "LOG_DEV"

	defaultApplicationAddress = ":8080"
	defaultJournalRetention   = 7 * 24 * time.Hour
)

// ServerConfig captures configuration needed to run the server.
type ServerConfig struct {
	ApplicationAddress    string
	ServeMode             ServeMode
	PagesManifestPath     string
	TemplateDirectory     string
	TemplateBaseURL       string
	TemplateRoot          string
	SessionSecret         string
	SecureCookies         bool
	JournalDataSourceName string
	JournalRetention      time.Duration
	ShellIdleTimeout      time.Duration
	NavigationInitDelay   time.Duration
	NavigationHideDelay   time.Duration
	DevelopmentLogging    bool
}

// DatabaseOpener opens the journal database using the provided data source name.
type DatabaseOpener func(string) (*gorm.DB, error)

type configurationFlag struct {
	environmentKey string
	flagName       string
	defaultValue   interface{}
	usage          string
}

var configurationFlags = []configurationFlag{
	{environmentKeyApplicationAddress, flagNameApplicationAddress, defaultApplicationAddress, "address for the HTTP server to listen on"},
	{environmentKeyServeMode, flagNameServeMode, string(ServeModeMonolith), "monolith, shell or templates"},
	{environmentKeyPagesManifest, flagNamePagesManifest, "", "YAML page manifest; the built-in logistics pages when empty"},
	{environmentKeyTemplateDirectory, flagNameTemplateDirectory, "", "directory holding page templates; the built-in templates when empty"},
	{environmentKeyTemplateBaseURL, flagNameTemplateBaseURL, "", "base URL to fetch page templates from instead of the template directory"},
	{environmentKeyTemplateRoot, flagNameTemplateRoot, templates.DefaultTemplateRoot, "path of page templates below the template directory or base URL"},
	{environmentKeySessionSecret, flagNameSessionSecret, "", "secret signing the shell session cookie"},
	{environmentKeySecureCookies, flagNameSecureCookies, false, "mark the session cookie Secure"},
	{environmentKeyJournalDataSource, flagNameJournalDataSource, storage.DefaultJournalDataSourceName, "SQLite data source of the navigation journal"},
	{environmentKeyJournalRetention, flagNameJournalRetention, defaultJournalRetention, "how long navigation records are kept"},
	{environmentKeyShellIdleTimeout, flagNameShellIdleTimeout, session.DefaultIdleTimeout, "close shells unused for this long"},
	{environmentKeyNavigationInitDelay, flagNameNavigationInitDelay, shell.DefaultInitDelay, "pause between mounting a page and initialising its controller"},
	{environmentKeyNavigationHideDelay, flagNameNavigationHideDelay, shell.DefaultHideDelay, "pause before the loading indicator is hidden"},
	{environmentKeyLogDevelopment, flagNameLogDevelopment, false, "human-readable development logging"},
}

// ServerApplication constructs and executes the server command.
type ServerApplication struct {
	configurationLoader *viper.Viper
	databaseOpener      DatabaseOpener
}

// NewServerApplication creates a ServerApplication with default dependencies.
func NewServerApplication() *ServerApplication {
	return &ServerApplication{
		configurationLoader: viper.New(),
		databaseOpener:      openJournalDatabase,
	}
}

// WithDatabaseOpener overrides the database opener dependency.
func (application *ServerApplication) WithDatabaseOpener(databaseOpener DatabaseOpener) *ServerApplication {
	application.databaseOpener = databaseOpener
	return application
}

// Command builds the Cobra command for the server.
func (application *ServerApplication) Command() (*cobra.Command, error) {
	rootCommand := &cobra.Command{
		Use:   commandUseName,
		Short: commandShortDescription,
		Long:  commandLongDescription,
		RunE:  application.runCommand,
	}

	if configurationErr := application.configureCommand(rootCommand); configurationErr != nil {
		return nil, configurationErr
	}

	return rootCommand, nil
}

func (application *ServerApplication) configureCommand(command *cobra.Command) error {
	commandFlags := command.Flags()
	for _, definition := range configurationFlags {
		application.configurationLoader.SetDefault(definition.environmentKey, definition.defaultValue)
		switch defaultValue := definition.defaultValue.(type) {
		case string:
			commandFlags.String(definition.flagName, defaultValue, definition.usage)
		case bool:
			commandFlags.Bool(definition.flagName, defaultValue, definition.usage)
		case time.Duration:
			commandFlags.Duration(definition.flagName, defaultValue, definition.usage)
		default:
			return fmt.Errorf(unsupportedFlagDefaultMessage, definition.flagName, definition.defaultValue)
		}
	}
	application.configurationLoader.AutomaticEnv()

	for _, definition := range configurationFlags {
		if bindErr := application.bindFlag(commandFlags, definition.environmentKey, definition.flagName); bindErr != nil {
			return bindErr
		}
		if environmentErr := application.applyEnvironmentConfiguration(commandFlags, definition.environmentKey, definition.flagName); environmentErr != nil {
			return environmentErr
		}
	}

	return nil
}

func (application *ServerApplication) bindFlag(flagSet *pflag.FlagSet, environmentKey string, flagName string) error {
	flag := flagSet.Lookup(flagName)
	if flag == nil {
		return fmt.Errorf(flagNotDefinedMessage, flagName)
	}

	if bindErr := application.configurationLoader.BindPFlag(environmentKey, flag); bindErr != nil {
		return bindErr
	}

	return nil
}

func (application *ServerApplication) applyEnvironmentConfiguration(flagSet *pflag.FlagSet, environmentKey string, flagName string) error {
	environmentValue, environmentFound := os.LookupEnv(environmentKey)
	if !environmentFound {
		return nil
	}

	if setErr := flagSet.Set(flagName, environmentValue); setErr != nil {
		return fmt.Errorf("%s: %w", environmentConfigurationError, setErr)
	}

	return nil
}

func (application *ServerApplication) loadServerConfig() (ServerConfig, error) {
	loader := application.configurationLoader
	serveMode, serveModeErr := ParseServeMode(loader.GetString(environmentKeyServeMode))
	if serveModeErr != nil {
		return ServerConfig{}, serveModeErr
	}
	return ServerConfig{
		ApplicationAddress:    loader.GetString(environmentKeyApplicationAddress),
		ServeMode:             serveMode,
		PagesManifestPath:     strings.TrimSpace(loader.GetString(environmentKeyPagesManifest)),
		TemplateDirectory:     strings.TrimSpace(loader.GetString(environmentKeyTemplateDirectory)),
		TemplateBaseURL:       strings.TrimSpace(loader.GetString(environmentKeyTemplateBaseURL)),
		TemplateRoot:          strings.TrimSpace(loader.GetString(environmentKeyTemplateRoot)),
		SessionSecret:         strings.TrimSpace(loader.GetString(environmentKeySessionSecret)),
		SecureCookies:         loader.GetBool(environmentKeySecureCookies),
		JournalDataSourceName: strings.TrimSpace(loader.GetString(environmentKeyJournalDataSource)),
		JournalRetention:      loader.GetDuration(environmentKeyJournalRetention),
		ShellIdleTimeout:      loader.GetDuration(environmentKeyShellIdleTimeout),
		NavigationInitDelay:   loader.GetDuration(environmentKeyNavigationInitDelay),
		NavigationHideDelay:   loader.GetDuration(environmentKeyNavigationHideDelay),
		DevelopmentLogging:    loader.GetBool(environmentKeyLogDevelopment),
	}, nil
}

func (application *ServerApplication) runCommand(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return fmt.Errorf("%s: %s", unexpectedArgumentsMessage, strings.Join(arguments, " "))
	}

	serverConfig, configErr := application.loadServerConfig()
	if configErr != nil {
		return configErr
	}
	if validationErr := application.ensureRequiredConfiguration(serverConfig); validationErr != nil {
		return validationErr
	}
	command.SilenceUsage = true

	logger, loggerErr := newLogger(serverConfig.DevelopmentLogging)
	if loggerErr != nil {
		return fmt.Errorf("%s: %w", loggerCreationErrorMessage, loggerErr)
	}
	defer func() {
		_ = logger.Sync()
	}()

	runContext, stop := signal.NotifyContext(command.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, buildErr := application.buildServer(serverConfig, logger)
	if buildErr != nil {
		logger.Error(loggerContextBuild, zap.Error(buildErr))
		return buildErr
	}
	if components.manager != nil {
		components.manager.Start(runContext)
		defer components.manager.Stop()
	}

	httpServer := &http.Server{
		Addr:              serverConfig.ApplicationAddress,
		Handler:           components.router,
		ReadHeaderTimeout: readHeaderTimeoutSeconds * time.Second,
	}

	serveErrors := make(chan error, 1)
	go func() {
		logger.Info(logEventListening, zap.String(logFieldAddress, serverConfig.ApplicationAddress), zap.String(logFieldServeMode, string(serverConfig.ServeMode)))
		serveErrors <- httpServer.ListenAndServe()
	}()

	select {
	case serveErr := <-serveErrors:
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error(loggerContextServer, zap.Error(serveErr))
			return serveErr
		}
		return nil
	case <-runContext.Done():
	}

	logger.Info(logEventShuttingDown)
	shutdownContext, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if shutdownErr := httpServer.Shutdown(shutdownContext); shutdownErr != nil {
		logger.Error(loggerContextServer, zap.Error(shutdownErr))
		return shutdownErr
	}
	return nil
}

type serverComponents struct {
	router  *gin.Engine
	manager *session.Manager
}

func (application *ServerApplication) buildServer(serverConfig ServerConfig, logger *zap.Logger) (serverComponents, error) {
	catalog, catalogErr := loadCatalog(serverConfig.PagesManifestPath)
	if catalogErr != nil {
		return serverComponents{}, fmt.Errorf("%s: %w", errorMessageLoadCatalog, catalogErr)
	}
	templateFiles, templateRoot := templateSource(serverConfig)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(httpapi.RequestLogger(logger))

	var templateHandlers *httpapi.PageTemplateHandlers
	if serverConfig.ServeMode.ServesTemplates() {
		templateHandlers = httpapi.NewPageTemplateHandlers(templateFiles, templateRoot, catalog, logger)
	}
	if !serverConfig.ServeMode.ServesShells() {
		registerTemplateRoutes(router, templateHandlers)
		return serverComponents{router: router}, nil
	}

	loader, loaderErr := buildLoader(serverConfig, templateFiles, templateRoot)
	if loaderErr != nil {
		return serverComponents{}, fmt.Errorf("%s: %w", errorMessageBuildLoader, loaderErr)
	}

	registry := controller.NewRegistry()
	accounts := controllers.NewStaticAccountSource(controllers.DemoAccount())
	if registerErr := controllers.RegisterAll(registry, catalog, controllers.Options{Accounts: accounts}); registerErr != nil {
		return serverComponents{}, fmt.Errorf("%s: %w", errorMessageRegisterControllers, registerErr)
	}

	database, databaseErr := application.databaseOpener(serverConfig.JournalDataSourceName)
	if databaseErr != nil {
		logger.Error(loggerContextOpenDatabase, zap.Error(databaseErr))
		return serverComponents{}, fmt.Errorf("%s: %w", errorMessageOpenJournal, databaseErr)
	}
	if migrateErr := storage.AutoMigrate(database); migrateErr != nil {
		logger.Error(loggerContextAutoMigrate, zap.Error(migrateErr))
		return serverComponents{}, fmt.Errorf("%s: %w", errorMessageOpenJournal, migrateErr)
	}
	journal, journalErr := storage.NewJournal(database)
	if journalErr != nil {
		return serverComponents{}, fmt.Errorf("%s: %w", errorMessageOpenJournal, journalErr)
	}

	manager, managerErr := session.NewManager(session.Config{
		ShellDocument:    httpapi.ShellDocumentHTML,
		Loader:           loader,
		Catalog:          catalog,
		Registry:         registry,
		Journal:          journal,
		Pruner:           journal,
		JournalRetention: serverConfig.JournalRetention,
		RouterOptions: shell.Options{
			MountPointID: dom.DefaultMountPointID,
			InitDelay:    serverConfig.NavigationInitDelay,
			HideDelay:    serverConfig.NavigationHideDelay,
		},
		IdleTimeout: serverConfig.ShellIdleTimeout,
		Logger:      logger,
	}, session.NewCookieStore(serverConfig.SessionSecret, serverConfig.SecureCookies))
	if managerErr != nil {
		return serverComponents{}, fmt.Errorf("%s: %w", errorMessageBuildManager, managerErr)
	}

	shellHandlers := httpapi.NewShellHandlers(catalog, manager, journal, logger)
	registerTemplateRoutes(router, templateHandlers)
	registerPublicRoutes(router, shellHandlers)
	registerShellRoutes(router, httpapi.RequireShell(manager, logger), shellHandlers)
	return serverComponents{router: router, manager: manager}, nil
}

func (application *ServerApplication) ensureRequiredConfiguration(configuration ServerConfig) error {
	var missingParameters []string

	if configuration.ServeMode.ServesShells() && configuration.SessionSecret == "" {
		missingParameters = append(missingParameters, flagNameSessionSecret)
	}

	if configuration.ServeMode == ServeModeShell && configuration.TemplateBaseURL == "" {
		missingParameters = append(missingParameters, flagNameTemplateBaseURL)
	}

	if len(missingParameters) == 0 {
		return nil
	}

	return fmt.Errorf("%s: %s", missingConfigurationMessage, strings.Join(missingParameters, ", "))
}

func loadCatalog(manifestPath string) (*pages.Catalog, error) {
	if manifestPath == "" {
		return pages.ParseManifest(httpapi.PageManifestYAML)
	}
	return pages.LoadManifest(manifestPath)
}

func templateSource(serverConfig ServerConfig) (fs.FS, string) {
	if serverConfig.TemplateDirectory == "" {
		return httpapi.PageTemplateFiles, httpapi.PageTemplateRoot
	}
	return os.DirFS(serverConfig.TemplateDirectory), serverConfig.TemplateRoot
}

func buildLoader(serverConfig ServerConfig, templateFiles fs.FS, templateRoot string) (templates.Loader, error) {
	if serverConfig.TemplateBaseURL == "" {
		return templates.NewFileSystemLoader(templateFiles, templateRoot), nil
	}
	httpLoader, loaderErr := templates.NewHTTPLoader(templates.HTTPLoaderConfig{
		BaseURL:      serverConfig.TemplateBaseURL,
		TemplateRoot: serverConfig.TemplateRoot,
	})
	if loaderErr != nil {
		return nil, loaderErr
	}
	return httpLoader, nil
}

func openJournalDatabase(dataSourceName string) (*gorm.DB, error) {
	return storage.OpenDatabase(storage.Config{
		DriverName:     storage.DriverNameSQLite,
		DataSourceName: dataSourceName,
	})
}

func newLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func main() {
	application := NewServerApplication()
	rootCommand, commandErr := application.Command()
	if commandErr != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", commandInitializationFailure, commandErr)
		os.Exit(1)
	}

	if executeErr := rootCommand.Execute(); executeErr != nil {
		os.Exit(1)
	}
}
