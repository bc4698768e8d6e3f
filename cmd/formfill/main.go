package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"formfill/internal/app"
	"formfill/internal/config"
	"formfill/internal/db"
	"formfill/internal/domain"
	"formfill/internal/engine"
	"formfill/internal/events"
	"formfill/internal/logging"
	"formfill/internal/mapping"
	"formfill/internal/migrate"
	"formfill/internal/repo"
	"formfill/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "formfill",
	Short: "formfill CLI",
	Long: `formfill fills PDF form templates from client records.
Core concepts:
- Template: a fillable PDF fetched from a URL, named in formfill.yml.
- Mapping table: YAML that maps logical record fields onto template widgets (a built-in KYC table is the default).
- Resolution: the widget -> value set a record produces; preview it with 'formfill resolve'.
- Generation: fetch -> resolve -> populate -> lock; with a client id the document is also stored and audited.
- Workspace: formfill.yml plus a .formfill directory holding stored documents and the audit log.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("FORMFILL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier recorded in audit events")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error); overrides formfill.yml")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(batchCmd())
	rootCmd.AddCommand(resolveCmd())
	rootCmd.AddCommand(fieldsCmd())
	rootCmd.AddCommand(mappingCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(documentsCmd())
}

func configCmd() *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Manage formfill.yml"}
	var url string
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default formfill.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(url)), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().StringVar(&url, "url", "https://forms.example.com/kyc.pdf", "template URL for the kyc entry")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			return yaml.NewEncoder(os.Stdout).Encode(cfg)
		},
	}
	cfgCmd.AddCommand(initCmd, showCmd)
	return cfgCmd
}

// recordFlags are shared by generate and resolve.
type recordFlags struct {
	template    string
	recordPath  string
	countries   []string
	investments []string
	clientID    string
}

func (f *recordFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.template, "template", "t", "kyc", "template name from formfill.yml")
	cmd.Flags().StringVarP(&f.recordPath, "record", "r", "-", "record file (JSON or YAML); - reads stdin")
	cmd.Flags().StringSliceVar(&f.countries, "country", nil, "additional country of residence (repeatable)")
	cmd.Flags().StringSliceVar(&f.investments, "investment", nil, "additional investment (repeatable)")
	cmd.Flags().StringVar(&f.clientID, "client-id", "", "client id; enables storage and audit")
}

func (f *recordFlags) request(in io.Reader) (engine.Request, error) {
	record, err := readRecord(f.recordPath, in)
	if err != nil {
		return engine.Request{}, err
	}
	return engine.Request{
		Template:              f.template,
		Record:                record,
		AdditionalCountries:   f.countries,
		AdditionalInvestments: f.investments,
		ClientID:              f.clientID,
		ActorID:               viper.GetString("actor-id"),
	}, nil
}

func generateCmd() *cobra.Command {
	var flags recordFlags
	var out string
	var noDeliver bool
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate one filled document",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request(cmd.InOrStdin())
			if err != nil {
				return err
			}
			req.SkipDelivery = noDeliver
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				doc, err := a.Engine.Generate(ctx, req)
				if err != nil {
					return err
				}
				target := out
				if target == "" {
					target = doc.Filename
				}
				if err := os.WriteFile(target, doc.Bytes, 0o644); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(struct {
						domain.GeneratedDocument
						Output string `json:"output"`
					}{doc, target})
				}
				fmt.Printf("Wrote %s (%d bytes, %d widgets written, %d skipped, flattened=%t)\n",
					target, len(doc.Bytes), doc.Written, doc.Skipped, doc.Flattened)
				if doc.StoragePath != "" {
					fmt.Printf("Stored at %s\n", doc.StoragePath)
				}
				return nil
			})
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default: generated filename)")
	cmd.Flags().BoolVar(&noDeliver, "no-deliver", false, "skip storage and audit")
	return cmd
}

// batchItem is one entry of a batch file.
type batchItem struct {
	ClientID              string         `json:"client_id" yaml:"client_id"`
	Record                map[string]any `json:"record" yaml:"record"`
	AdditionalCountries   []string       `json:"additional_countries" yaml:"additional_countries"`
	AdditionalInvestments []string       `json:"additional_investments" yaml:"additional_investments"`
}

type batchResult struct {
	Index       int    `json:"index"`
	ClientID    string `json:"client_id,omitempty"`
	Output      string `json:"output,omitempty"`
	StoragePath string `json:"storage_path,omitempty"`
	Written     int    `json:"written"`
	Skipped     int    `json:"skipped"`
	Error       string `json:"error,omitempty"`
}

func batchCmd() *cobra.Command {
	var template, input, outDir string
	var concurrency int
	var noDeliver bool
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Generate documents for every record in a file",
		Long:  "The input file is a JSON or YAML list of {client_id, record, additional_countries, additional_investments}.",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := readBatch(input, cmd.InOrStdin())
			if err != nil {
				return err
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				results := make([]batchResult, len(items))
				var mu sync.Mutex
				names := map[string]int{}
				g, gctx := errgroup.WithContext(ctx)
				g.SetLimit(concurrency)
				for i, item := range items {
					g.Go(func() error {
						res := batchResult{Index: i, ClientID: item.ClientID}
						doc, err := a.Engine.Generate(gctx, engine.Request{
							Template:              template,
							Record:                item.Record,
							AdditionalCountries:   item.AdditionalCountries,
							AdditionalInvestments: item.AdditionalInvestments,
							ClientID:              item.ClientID,
							ActorID:               viper.GetString("actor-id"),
							SkipDelivery:          noDeliver,
						})
						if err != nil {
							// one bad record does not stop the batch
							res.Error = err.Error()
							results[i] = res
							return nil
						}
						mu.Lock()
						name := uniqueName(doc.Filename, names)
						mu.Unlock()
						res.Output = filepath.Join(outDir, name)
						res.StoragePath = doc.StoragePath
						res.Written = doc.Written
						res.Skipped = doc.Skipped
						if err := os.WriteFile(res.Output, doc.Bytes, 0o644); err != nil {
							return err
						}
						results[i] = res
						return nil
					})
				}
				if err := g.Wait(); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(results)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"#", "Client", "Output", "Written", "Skipped", "Stored", "Error"})
				failed := 0
				for _, r := range results {
					if r.Error != "" {
						failed++
					}
					tw.AppendRow(table.Row{r.Index, r.ClientID, r.Output, r.Written, r.Skipped, r.StoragePath, r.Error})
				}
				tw.AppendFooter(table.Row{"", "", fmt.Sprintf("%d documents", len(results)-failed), "", "", "", fmt.Sprintf("%d failed", failed)})
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&template, "template", "t", "kyc", "template name from formfill.yml")
	cmd.Flags().StringVarP(&input, "input", "i", "-", "batch file (JSON or YAML); - reads stdin")
	cmd.Flags().StringVarP(&outDir, "out-dir", "o", ".", "directory for generated documents")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "documents generated in parallel")
	cmd.Flags().BoolVar(&noDeliver, "no-deliver", false, "skip storage and audit")
	return cmd
}

// uniqueName suffixes repeated filenames so batch outputs never collide.
func uniqueName(name string, seen map[string]int) string {
	n := seen[name]
	seen[name] = n + 1
	if n == 0 {
		return name
	}
	ext := filepath.Ext(name)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), n+1, ext)
}

func resolveCmd() *cobra.Command {
	var flags recordFlags
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Preview the widget values a record resolves to",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request(cmd.InOrStdin())
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(e *engine.Engine) error {
				set, err := e.Resolve(req)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(set)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"#", "Widget", "Value"})
				for i, r := range set.Entries() {
					tw.AppendRow(table.Row{i + 1, r.Widget, fmt.Sprint(r.Value)})
				}
				tw.Render()
				return nil
			})
		},
	}
	flags.bind(cmd)
	return cmd
}

func fieldsCmd() *cobra.Command {
	var template string
	cmd := &cobra.Command{
		Use:   "fields",
		Short: "List the widgets of a template",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(e *engine.Engine) error {
				widgets, err := e.Inspect(cmd.Context(), template)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(widgets)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Kind", "Options", "Locked"})
				for _, w := range widgets {
					tw.AppendRow(table.Row{w.ID, w.Name, w.Kind.String(), strings.Join(w.Options, ", "), w.Locked})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&template, "template", "t", "kyc", "template name from formfill.yml")
	return cmd
}

func mappingCmd() *cobra.Command {
	mapCmd := &cobra.Command{Use: "mapping", Short: "Inspect field mapping tables"}
	var file, catalogFile string
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate mapping tables against their widget catalogs",
		Long: `Without --file or --catalog, every template in formfill.yml is checked
(or the built-in KYC table when the workspace has no formfill.yml).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, err := mappingTargets(viper.GetString("workspace"), file, catalogFile)
			if err != nil {
				return err
			}
			reports := make([]mappingReport, 0, len(targets))
			for _, target := range targets {
				report, err := target.validate()
				if err != nil {
					return fmt.Errorf("%s: %w", target.Name, err)
				}
				reports = append(reports, report)
			}
			if viper.GetBool("json") {
				return printJSON(reports)
			}
			for _, r := range reports {
				fmt.Printf("%s: OK: %d fields, %d bucketed, %d single-select, %d multi-select groups\n",
					r.Name, r.Fields, r.Bucketed, r.SingleSelect, r.MultiSelect)
				for _, w := range r.MissingWidgets {
					fmt.Printf("%s: warning: widget %q is not in the catalog\n", r.Name, w)
				}
			}
			return nil
		},
	}
	validateCmd.Flags().StringVarP(&file, "file", "f", "", "mapping table (default: from formfill.yml or the built-in KYC table)")
	validateCmd.Flags().StringVar(&catalogFile, "catalog", "", "widget catalog (default: from formfill.yml or the built-in KYC catalog)")

	defaultsCmd := &cobra.Command{
		Use:   "defaults",
		Short: "Print the built-in KYC mapping table",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := os.Stdout.Write(mapping.DefaultYAML())
			return err
		},
	}
	mapCmd.AddCommand(validateCmd, defaultsCmd)
	return mapCmd
}

// mappingTarget pairs a table with the catalog it is checked against. Empty
// paths mean the built-in KYC defaults.
type mappingTarget struct {
	Name    string
	Table   string
	Catalog string
}

type mappingReport struct {
	Name           string   `json:"name"`
	Fields         int      `json:"fields"`
	Bucketed       int      `json:"bucketed"`
	SingleSelect   int      `json:"single_select"`
	MultiSelect    int      `json:"multi_select"`
	MissingWidgets []string `json:"missing_widgets"`
}

func mappingTargets(workspace, file, catalogFile string) ([]mappingTarget, error) {
	if file != "" || catalogFile != "" {
		name := file
		if name == "" {
			name = "built-in"
		}
		return []mappingTarget{{Name: name, Table: file, Catalog: catalogFile}}, nil
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return []mappingTarget{{Name: "built-in"}}, nil
	}
	targets := make([]mappingTarget, 0, len(cfg.Templates))
	for _, name := range cfg.TemplateNames() {
		tc := cfg.Templates[name]
		targets = append(targets, mappingTarget{
			Name:    name,
			Table:   config.ResolvePath(workspace, tc.Mapping),
			Catalog: config.ResolvePath(workspace, tc.Catalog),
		})
	}
	return targets, nil
}

func (m mappingTarget) validate() (mappingReport, error) {
	tbl, err := loadTableOrDefault(m.Table)
	if err != nil {
		return mappingReport{}, err
	}
	catalog, err := loadCatalogOrDefault(m.Catalog)
	if err != nil {
		return mappingReport{}, err
	}
	return mappingReport{
		Name:           m.Name,
		Fields:         len(tbl.Fields),
		Bucketed:       len(tbl.Bucketed),
		SingleSelect:   len(tbl.SingleSelect),
		MultiSelect:    len(tbl.MultiSelect),
		MissingWidgets: missingWidgets(tbl, catalog),
	}, nil
}

func loadTableOrDefault(path string) (*mapping.Table, error) {
	if path == "" {
		return mapping.Default()
	}
	return mapping.LoadFile(path)
}

func loadCatalogOrDefault(path string) (*mapping.Catalog, error) {
	if path == "" {
		return mapping.DefaultCatalog()
	}
	return mapping.LoadCatalogFile(path)
}

// missingWidgets lists, sorted, the widgets a table writes that the catalog
// does not describe. Value-map tokens name the flag widgets of bucketed and
// single-select fields; a radio token may instead be an option of its group.
func missingWidgets(t *mapping.Table, c *mapping.Catalog) []string {
	seen := map[string]bool{}
	missing := []string{}
	check := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		if _, ok := c.Lookup(name); !ok {
			missing = append(missing, name)
		}
	}
	for _, f := range t.Fields {
		check(f.Widget)
		group, _ := c.Lookup(f.Widget)
		for _, token := range f.ValueMap {
			if f.Kind == mapping.KindRadioGroup && slices.Contains(group.Options, token) {
				continue
			}
			check(token)
		}
	}
	for _, g := range t.MultiSelect {
		for _, o := range g.Options {
			check(o.Widget)
		}
	}
	sort.Strings(missing)
	return missing
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("addr") {
				addr = cfg.Server.Addr
			}
			if !cmd.Flags().Changed("base-path") {
				basePath = cfg.Server.BasePath
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			reg := prometheus.NewRegistry()
			a, err := app.Open(cmd.Context(), workspace, cfg, logger, reg)
			if err != nil {
				return err
			}
			defer a.Close()
			handler, err := server.New(server.Config{
				Engine:   a.Engine,
				Repo:     a.Repo,
				BasePath: basePath,
				Gatherer: reg,
				Logger:   logger,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			logger.Info("serving formfill API", slog.String("addr", addr), slog.String("base_path", basePath))
			fmt.Printf("Serving formfill API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs, metrics at /metrics)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", config.DefaultAddr, "listen address (default from formfill.yml)")
	cmd.Flags().StringVar(&basePath, "base-path", config.DefaultBasePath, "API base path (default from formfill.yml)")
	return cmd
}

func eventsCmd() *cobra.Command {
	evCmd := &cobra.Command{Use: "events", Short: "Inspect the audit log"}
	var n int
	var evtType, subject string
	var follow bool
	var interval time.Duration
	tailCmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest audit events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				filter := repo.EventFilter{Type: evtType, SubjectID: subject}
				// read the cursor first so nothing appended during the listing is missed
				cursor, err := r.LatestEventID(ctx)
				if err != nil {
					return err
				}
				items, err := r.LatestEvents(ctx, n, filter)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					if err := printJSON(items); err != nil {
						return err
					}
				} else {
					tw := table.NewWriter()
					tw.SetOutputMirror(os.Stdout)
					tw.AppendHeader(table.Row{"ID", "Time", "Type", "Subject", "Actor", "Storage Path"})
					for _, e := range items {
						tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.SubjectID, e.ActorID, e.Payload["storage_path"]})
					}
					tw.Render()
				}
				if !follow {
					return nil
				}
				f := events.Follower{Source: r, Filter: filter, Interval: interval}
				return f.Run(ctx, cursor, func(e domain.Event) error {
					if viper.GetBool("json") {
						return json.NewEncoder(os.Stdout).Encode(e)
					}
					fmt.Printf("%d\t%s\t%s\t%s\t%s\t%v\n", e.ID, e.TS, e.Type, e.SubjectID, e.ActorID, e.Payload["storage_path"])
					return nil
				})
			})
		},
	}
	tailCmd.Flags().IntVar(&n, "n", 20, "number of events")
	tailCmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	tailCmd.Flags().StringVar(&subject, "subject", "", "subject (client) id filter")
	tailCmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing new events until interrupted")
	tailCmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "poll interval with --follow")
	evCmd.AddCommand(tailCmd)
	return evCmd
}

func documentsCmd() *cobra.Command {
	docCmd := &cobra.Command{Use: "documents", Short: "Access stored documents"}
	var out string
	getCmd := &cobra.Command{
		Use:   "get <path>",
		Short: "Write a stored document to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				blob, err := r.GetBlob(ctx, args[0])
				if err != nil {
					return fmt.Errorf("document %s: %w", args[0], err)
				}
				target := out
				if target == "" {
					target = filepath.Base(blob.Path)
				}
				if err := os.WriteFile(target, blob.Data, 0o644); err != nil {
					return err
				}
				fmt.Printf("Wrote %s (%d bytes)\n", target, blob.Size)
				return nil
			})
		},
	}
	getCmd.Flags().StringVarP(&out, "out", "o", "", "output file (default: stored filename)")

	var prefix string
	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListBlobs(ctx, prefix, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Path", "Size", "Created"})
				for _, b := range items {
					tw.AppendRow(table.Row{b.Path, b.Size, b.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	listCmd.Flags().StringVar(&prefix, "prefix", "", "path prefix, e.g. kyc/<client-id>/")
	listCmd.Flags().IntVar(&limit, "limit", 50, "maximum documents")
	docCmd.AddCommand(getCmd, listCmd)
	return docCmd
}

// --- helpers ---

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	level := cfg.Log.Level
	if v := viper.GetString("log-level"); v != "" {
		level = v
	}
	return logging.New(os.Stderr, logging.Options{Level: level, Format: cfg.Log.Format})
}

func withApp(ctx context.Context, fn func(context.Context, *app.Context) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	a, err := app.Open(ctx, workspace, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func withEngine(ctx context.Context, fn func(*engine.Engine) error) error {
	return withApp(ctx, func(_ context.Context, a *app.Context) error {
		return fn(a.Engine)
	})
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

// decodeDocument accepts JSON or YAML; YAML is a superset, but JSON keeps
// number types closer to what API callers send.
func decodeDocument(path string, data []byte, v any) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yml" || ext == ".yaml" {
		return yaml.Unmarshal(data, v)
	}
	if err := json.Unmarshal(data, v); err != nil {
		if yerr := yaml.Unmarshal(data, v); yerr == nil {
			return nil
		}
		return err
	}
	return nil
}

func readRecord(path string, stdin io.Reader) (map[string]any, error) {
	data, err := readInput(path, stdin)
	if err != nil {
		return nil, err
	}
	var record map[string]any
	if err := decodeDocument(path, data, &record); err != nil {
		return nil, fmt.Errorf("invalid record: %w", err)
	}
	if record == nil {
		return nil, errors.New("record is empty")
	}
	return record, nil
}

func readBatch(path string, stdin io.Reader) ([]batchItem, error) {
	data, err := readInput(path, stdin)
	if err != nil {
		return nil, err
	}
	var items []batchItem
	if err := decodeDocument(path, data, &items); err != nil {
		return nil, fmt.Errorf("invalid batch file: %w", err)
	}
	if len(items) == 0 {
		return nil, errors.New("batch file has no records")
	}
	return items, nil
}
