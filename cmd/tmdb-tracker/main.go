package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/Kll222/tmdb-tracker/internal/config"
	"github.com/Kll222/tmdb-tracker/internal/credentials"
	"github.com/Kll222/tmdb-tracker/internal/export"
	"github.com/Kll222/tmdb-tracker/internal/locale"
	"github.com/Kll222/tmdb-tracker/internal/logging"
	"github.com/Kll222/tmdb-tracker/internal/media"
	"github.com/Kll222/tmdb-tracker/internal/pipeline"
	"github.com/Kll222/tmdb-tracker/internal/poster"
	"github.com/Kll222/tmdb-tracker/internal/sheets"
	"github.com/Kll222/tmdb-tracker/internal/store"
	"github.com/Kll222/tmdb-tracker/internal/tmdb"
	"github.com/Kll222/tmdb-tracker/internal/tui"
	"github.com/Kll222/tmdb-tracker/internal/util"
	"github.com/Kll222/tmdb-tracker/internal/window"
)

var headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))

func main() {
	if err := credentials.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tmdb-tracker",
		Short: "Track newly released movies and TV shows from TMDB",
		Long: `tmdb-tracker fetches recently released movies and TV shows from the TMDB
discover API, merges their Chinese details into the English listing and stores
the complete records in SQLite, PostgreSQL or a JSON export file.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error); overrides config")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch recent releases and persist the accepted records",
		RunE:  runPipeline,
	}
	runCmd.Flags().String("sink", "", "Persistence sink: sqlite, postgres or export")
	runCmd.Flags().Int("days", 0, "Release window length in days")
	runCmd.Flags().String("kinds", "", "Comma-separated media kinds (movie,tv)")
	runCmd.Flags().String("key-scope", "", "Storage key: id or id_media")
	runCmd.Flags().String("unknown-genre", "", "Unknown genre ids: drop or placeholder")
	runCmd.Flags().Bool("no-retention", false, "Skip pruning stale records")
	runCmd.Flags().Bool("pin-window", false, "Compute the release window once per run")
	runCmd.Flags().Int("max-pages", 0, "Maximum listing pages per kind")
	runCmd.Flags().Bool("json", false, "Output the run report as JSON")

	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete stored records released before the retention window",
		RunE:  runPrune,
	}
	pruneCmd.Flags().Int("days", 0, "Retention window in days")

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write the stored records to the JSON export file",
		RunE:  runExport,
	}
	exportCmd.Flags().StringP("output", "o", "", "Export file path")

	syncCmd := &cobra.Command{
		Use:   "sync-sheet",
		Short: "Replace the Google spreadsheet contents with the export file",
		Long: `Reads the export file and mirrors it into the first worksheet of the
spreadsheet named by SPREADSHEET_ID, authenticating with the service-account
JSON in GOOGLE_CREDENTIALS.`,
		RunE: runSyncSheet,
	}
	syncCmd.Flags().String("file", "", "Export file to upload")

	listCmd := &cobra.Command{
		Use:   "list [query]",
		Short: "Print stored records",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runList,
	}
	listCmd.Flags().String("kind", "", "Only list this media kind (movie, tv)")
	listCmd.Flags().Int("limit", 50, "Maximum number of records (0 = unlimited)")
	listCmd.Flags().Bool("json", false, "Output JSON")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show store statistics and the last run",
		RunE:  runStats,
	}
	statsCmd.Flags().Bool("json", false, "Output JSON")

	postersCmd := &cobra.Command{
		Use:   "posters",
		Short: "Mirror poster images of stored records to disk",
		RunE:  runPosters,
	}
	postersCmd.Flags().String("dir", "", "Destination directory")
	postersCmd.Flags().String("kind", "", "Only mirror this media kind (movie, tv)")
	postersCmd.Flags().Int("limit", 0, "Maximum number of records (0 = unlimited)")

	browseCmd := &cobra.Command{
		Use:   "browse",
		Short: "Browse stored records in a terminal UI",
		RunE:  runBrowse,
	}
	browseCmd.Flags().String("kind", "", "Tab to open first; without a terminal, only list this kind")
	browseCmd.Flags().Int("limit", 0, "Maximum number of records when listing without a terminal (0 = unlimited)")
	browseCmd.Flags().Bool("json", false, "Output JSON when listing without a terminal")

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Print the config file path and effective values",
		RunE:  runConfig,
	}

	rootCmd.AddCommand(runCmd, pruneCmd, exportCmd, syncCmd, listCmd, statsCmd, postersCmd, browseCmd, configCmd)
	return rootCmd
}

// loadConfig loads and validates the config, applying the persistent flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (zerolog.Logger, io.Closer, error) {
	return logging.New(logging.Options{
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
		Console: os.Stderr,
		NoColor: !isInteractiveTerminal(),
	})
}

func openStore(cfg *config.Config) (*store.DB, error) {
	driver, dsn := cfg.Database()
	db, err := store.OpenDB(driver, dsn, store.KeyScope(cfg.KeyScope))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("sink") {
		cfg.Sink, _ = flags.GetString("sink")
	}
	if flags.Changed("days") {
		cfg.WindowDays, _ = flags.GetInt("days")
	}
	if flags.Changed("kinds") {
		kinds, _ := flags.GetString("kinds")
		cfg.SetKinds(kinds)
	}
	if flags.Changed("key-scope") {
		cfg.KeyScope, _ = flags.GetString("key-scope")
	}
	if flags.Changed("unknown-genre") {
		cfg.UnknownGenre, _ = flags.GetString("unknown-genre")
	}
	if noRetention, _ := flags.GetBool("no-retention"); noRetention {
		cfg.Retention = false
	}
	if pin, _ := flags.GetBool("pin-window"); pin {
		cfg.PinWindow = true
	}
	if flags.Changed("max-pages") {
		cfg.MaxPages, _ = flags.GetInt("max-pages")
	}
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closer, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, cancel := signalContext()
	defer cancel()

	apiKey, err := cfg.Credentials().APIKey(ctx)
	if err != nil {
		return fmt.Errorf("TMDB API key: set %s or create %s: %w", cfg.APIKeyEnv, cfg.APIKeyFile, err)
	}

	kinds, err := cfg.Kinds()
	if err != nil {
		return err
	}

	client := tmdb.New(tmdb.Options{
		BaseURL:         cfg.BaseURL,
		APIKey:          apiKey,
		Timeout:         cfg.HTTPTimeout(),
		RequestInterval: cfg.RequestInterval(),
	})
	normalizer := media.NewNormalizer(locale.Default(),
		media.WithGenrePolicy(media.GenrePolicy(cfg.UnknownGenre)),
		media.WithPosterBase(cfg.ImageBaseURL, cfg.PosterSize),
	)
	opts := pipeline.Options{
		Kinds:             kinds,
		PrimaryLocale:     cfg.PrimaryLocale,
		SecondaryLocale:   cfg.SecondaryLocale,
		Window:            window.NewCalculator(cfg.WindowDays, cfg.PinWindow),
		Retention:         window.NewCalculator(cfg.RetentionDays, false),
		MaxPages:          cfg.MaxPages,
		RespectTotalPages: cfg.RespectTotalPages,
		Normalizer:        normalizer,
		SinkName:          cfg.Sink,
	}

	var svc *pipeline.Service
	if cfg.Relational() {
		db, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		svc = pipeline.NewService(client, db, opts, logger).WithRunLog(db)
		if cfg.Retention {
			svc.WithPruner(db)
		}
	} else {
		svc = pipeline.NewService(client, export.NewWriter(nil, cfg.ExportPath), opts, logger)
	}

	jsonMode, _ := cmd.Flags().GetBool("json")
	interactive := isInteractiveTerminal() && !jsonMode
	if interactive {
		svc.SetProgressCallback(func(p pipeline.Progress) {
			fmt.Fprintf(os.Stderr, "\r  Fetching %-5s page %-4d [fetched: %d  accepted: %d]",
				p.Kind, p.Page, p.Fetched, p.Accepted)
		})
	}

	report, err := svc.Run(ctx)
	if interactive {
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return err
	}

	if jsonMode {
		return writeJSON(report)
	}

	fmt.Println(headingStyle.Render("Run summary"))
	fmt.Printf("  Window:            %s\n", report.Window)
	fmt.Printf("  Pages:             %d\n", report.Pages)
	fmt.Printf("  Fetched:           %d\n", report.Fetched)
	fmt.Printf("  Detail failures:   %d\n", report.DetailFailures)
	fmt.Printf("  Rejected partial:  %d\n", report.RejectedPartial)
	fmt.Printf("  Rejected language: %d\n", report.RejectedLanguage)
	fmt.Printf("  Accepted:          %d %s\n", report.Accepted, formatCounts(report.AcceptedByKind))
	fmt.Printf("  Written:           %d (%s)\n", report.Written, sinkTarget(cfg))
	if cfg.Relational() && cfg.Retention {
		fmt.Printf("  Pruned:            %d\n", report.Pruned)
	}
	fmt.Printf("  Took:              %s\n", report.Duration.Round(time.Millisecond))
	return nil
}

func runPrune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("days") {
		cfg.RetentionDays, _ = cmd.Flags().GetInt("days")
	}
	if !cfg.Relational() {
		return errors.New("prune needs a relational sink (sqlite or postgres)")
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	before := window.NewCalculator(cfg.RetentionDays, false).Current().StartISO()
	n, err := db.Prune(context.Background(), before)
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %d records released before %s\n", n, before)
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	path := cfg.ExportPath
	if out, _ := cmd.Flags().GetString("output"); out != "" {
		path = out
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	records, err := db.List(ctx, store.ListFilter{})
	if err != nil {
		return err
	}
	w := export.NewWriter(nil, path)
	n, err := w.Write(ctx, records)
	if err != nil {
		return err
	}
	fmt.Printf("Exported %d records to %s\n", n, w.Path())
	return nil
}

func runSyncSheet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, closer, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	path := cfg.ExportPath
	if file, _ := cmd.Flags().GetString("file"); file != "" {
		path = file
	}

	ctx, cancel := signalContext()
	defer cancel()

	sheet, err := sheets.FromEnv(ctx)
	if err != nil {
		return err
	}
	syncer := &sheets.Syncer{
		Sheet:  sheet,
		Fs:     afero.NewOsFs(),
		Path:   path,
		Logger: logging.Component(logger, "sheets"),
	}
	n, err := syncer.Sync(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Synced %d records to worksheet %q\n", n, sheet.Title())
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	filter, err := listFilter(cmd)
	if err != nil {
		return err
	}
	if len(args) > 0 {
		filter.Query = args[0]
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	records, err := db.List(context.Background(), filter)
	if err != nil {
		return err
	}

	if jsonMode, _ := cmd.Flags().GetBool("json"); jsonMode {
		if records == nil {
			records = []media.Record{}
		}
		return writeJSON(records)
	}

	if len(records) == 0 {
		fmt.Println("No stored records.")
		fmt.Println("Tip: Run 'tmdb-tracker run' to fetch recent releases first.")
		return nil
	}
	for _, r := range records {
		fmt.Printf("%-10d %-5s %-10s  %-12s %s\n",
			r.ID, r.MediaType, r.ReleaseDate, util.Truncate(r.Region, 12), util.Truncate(r.Title, 60))
	}
	return nil
}

func listFilter(cmd *cobra.Command) (store.ListFilter, error) {
	var f store.ListFilter
	if kind, _ := cmd.Flags().GetString("kind"); kind != "" {
		k, err := tmdb.ParseKind(kind)
		if err != nil {
			return f, err
		}
		f.Kind = k
	}
	f.Limit, _ = cmd.Flags().GetInt("limit")
	return f, nil
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := db.GetStats(context.Background())
	if err != nil {
		return err
	}

	if jsonMode, _ := cmd.Flags().GetBool("json"); jsonMode {
		return writeJSON(stats)
	}

	fmt.Println(headingStyle.Render("Store statistics"))
	fmt.Printf("  Records:  %d %s\n", stats.Total, formatCounts(stats.ByKind))
	if stats.Total > 0 {
		fmt.Printf("  Releases: %s .. %s\n", stats.Oldest, stats.Newest)
	}
	fmt.Printf("  Database: %s\n", dbTarget(cfg))
	if r := stats.LastRun; r != nil {
		fmt.Printf("  Last run: %s %s (fetched %d, accepted %d, written %d, pruned %d)\n",
			r.StartedAt.Local().Format("2006-01-02 15:04"), r.Status, r.Fetched, r.Accepted, r.Written, r.Pruned)
		if r.Error != "" {
			fmt.Printf("            error: %s\n", r.Error)
		}
	}
	return nil
}

func runPosters(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, closer, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	dir := cfg.PosterDir
	if d, _ := cmd.Flags().GetString("dir"); d != "" {
		dir = d
	}
	filter, err := listFilter(cmd)
	if err != nil {
		return err
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := signalContext()
	defer cancel()

	records, err := db.List(ctx, filter)
	if err != nil {
		return err
	}

	limit := rate.Inf
	if cfg.RequestInterval() > 0 {
		limit = rate.Every(cfg.RequestInterval())
	}
	mirror := poster.NewMirror(afero.NewOsFs(), dir,
		poster.WithLimiter(rate.NewLimiter(limit, 1)),
		poster.WithLogger(logger),
	)
	done := 0
	mirror.SetOnItem(func(it poster.Item) {
		done++
		fmt.Fprintf(os.Stderr, "\r  Posters: %d/%d", done, len(records))
	})

	sum, err := mirror.Fetch(ctx, records)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}
	fmt.Printf("Downloaded %d (%s), skipped %d, failed %d into %s\n",
		sum.Downloaded, util.FormatBytes(sum.Bytes), sum.Skipped, sum.Failed, dir)
	return nil
}

func runBrowse(cmd *cobra.Command, args []string) error {
	if !isInteractiveTerminal() {
		return runList(cmd, args)
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	kind := tmdb.Movie
	if k, _ := cmd.Flags().GetString("kind"); k != "" {
		if kind, err = tmdb.ParseKind(k); err != nil {
			return err
		}
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	return tui.Run(db, kind)
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "# %s\n", config.ConfigPath())
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "# %v\n", err)
	}
	return writeJSON(cfg)
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func formatCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return ""
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %d", k, counts[k]))
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func sinkTarget(cfg *config.Config) string {
	if cfg.Sink == config.SinkExport {
		return cfg.ExportPath
	}
	return dbTarget(cfg)
}

func dbTarget(cfg *config.Config) string {
	if cfg.Sink == config.SinkPostgres {
		return "postgres"
	}
	return cfg.DBPath
}

func isInteractiveTerminal() bool {
	inInfo, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	outInfo, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (inInfo.Mode()&os.ModeCharDevice) != 0 && (outInfo.Mode()&os.ModeCharDevice) != 0
}
