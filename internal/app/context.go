package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"formfill/internal/config"
	"formfill/internal/db"
	"formfill/internal/document"
	"formfill/internal/engine"
	"formfill/internal/events"
	"formfill/internal/mapping"
	"formfill/internal/metrics"
	"formfill/internal/migrate"
	"formfill/internal/repo"
	"formfill/internal/resolve"
)

// Context bundles everything a command or the HTTP server needs.
type Context struct {
	Workspace string
	Config    *config.Config
	DB        *sql.DB
	Repo      repo.Repo
	Engine    *engine.Engine
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

func (c *Context) Close() error {
	if c.DB == nil {
		return nil
	}
	return c.DB.Close()
}

// Open migrates the workspace database and wires an engine over the pdfcpu
// backend. reg may be nil.
func Open(ctx context.Context, workspace string, cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (*Context, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := metrics.New(reg)

	templates, err := LoadTemplates(workspace, cfg, logger)
	if err != nil {
		return nil, err
	}

	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	applied, err := migrate.Migrate(ctx, conn)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	for _, name := range applied {
		logger.Info("applied migration", slog.String("name", name))
	}

	backend, err := document.NewPDFBackend(logger, pdfOptions(workspace, cfg))
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	r := repo.Repo{DB: conn}

	eng := &engine.Engine{
		Templates: templates,
		Source:    document.NewFetcher(cfg.Fetch.Timeout, m),
		Populator: document.NewPopulator(backend, logger, m),
		Store:     r,
		Audit:     events.Writer{DB: conn},
		Logger:    logger,
		Metrics:   m,
	}
	return &Context{
		Workspace: workspace,
		Config:    cfg,
		DB:        conn,
		Repo:      r,
		Engine:    eng,
		Logger:    logger,
		Metrics:   m,
	}, nil
}

// LoadTemplates builds one resolver per configured template. Mapping tables
// and catalogs are validated here so a bad file fails at startup.
func LoadTemplates(workspace string, cfg *config.Config, logger *slog.Logger) (map[string]*engine.Template, error) {
	out := make(map[string]*engine.Template, len(cfg.Templates))
	for _, name := range cfg.TemplateNames() {
		tc := cfg.Templates[name]
		table, err := loadTable(workspace, tc.Mapping)
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", name, err)
		}
		catalog, err := loadCatalog(workspace, tc.Catalog)
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", name, err)
		}
		out[name] = &engine.Template{
			Name:     name,
			URL:      tc.URL,
			FormName: tc.FormName,
			Deliver:  tc.Deliver,
			Resolver: resolve.New(table, catalog, logger.With(slog.String("template", name))),
		}
	}
	return out, nil
}

// pdfOptions keeps pdfcpu's fonts in the workspace state dir unless the
// config points elsewhere.
func pdfOptions(workspace string, cfg *config.Config) document.PDFOptions {
	if cfg.PDF.DisableConfigDir {
		return document.PDFOptions{DisableConfigDir: true}
	}
	dir := db.Dir(workspace)
	if cfg.PDF.ConfigDir != "" {
		dir = config.ResolvePath(workspace, cfg.PDF.ConfigDir)
	}
	return document.PDFOptions{ConfigDir: dir}
}

func loadTable(workspace, path string) (*mapping.Table, error) {
	if path == "" {
		return mapping.Default()
	}
	return mapping.LoadFile(config.ResolvePath(workspace, path))
}

func loadCatalog(workspace, path string) (*mapping.Catalog, error) {
	if path == "" {
		return mapping.DefaultCatalog()
	}
	return mapping.LoadCatalogFile(config.ResolvePath(workspace, path))
}
