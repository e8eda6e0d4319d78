package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/emilianohg/cvsbrowse/internal/changes"
	"github.com/emilianohg/cvsbrowse/internal/committed"
	"github.com/emilianohg/cvsbrowse/internal/config"
	"github.com/emilianohg/cvsbrowse/internal/cvs"
	"github.com/emilianohg/cvsbrowse/internal/db"
	"github.com/emilianohg/cvsbrowse/internal/models"
	"github.com/emilianohg/cvsbrowse/internal/repository"
	"github.com/emilianohg/cvsbrowse/internal/revision"
	"github.com/emilianohg/cvsbrowse/internal/zipper"
)

var rootCmd = &cobra.Command{
	Use:   "cvsbrowse",
	Short: "Browse committed changes of CVS checkouts",
	Long: `cvsbrowse rebuilds commits from the per-file history of CVS repositories
and shows them grouped by repository.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

// app bundles what the commands share.
type app struct {
	cfg       *config.Config
	database  *sql.DB
	locations *repository.LocationRepo
	cache     *repository.ChangeListRepo
	provider  *committed.Provider
}

func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logrus.SetLevel(cfg.Level())
	if debugEnabled() {
		logrus.SetLevel(logrus.DebugLevel)
	}

	database, err := db.OpenAndMigrate()
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	a := &app{
		cfg:       cfg,
		database:  database,
		locations: repository.NewLocationRepo(database),
		cache:     repository.NewChangeListRepo(database),
	}

	client := cvs.NewClient(cvs.ExecRunner{Binary: cfg.CvsBinary, Dir: cfg.WorkDir}, logrus.StandardLogger())
	opts := []committed.Option{
		committed.WithWindow(cfg.Window()),
		committed.WithConcurrency(cfg.Concurrency()),
		committed.WithLogger(logrus.StandardLogger()),
	}
	if cfg.CacheEnabled {
		store, err := repository.NewCachedStore(a.cache, cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		opts = append(opts, committed.WithStore(store))
	}
	a.provider = committed.NewProvider(client, opts...)
	return a, nil
}

func (a *app) close() {
	_ = db.Close()
}

// selectLocations returns the location with id, or every location when id is 0.
func (a *app) selectLocations(id int64) ([]models.Location, error) {
	if id == 0 {
		locs, err := a.locations.GetAll()
		if err != nil {
			return nil, err
		}
		if len(locs) == 0 {
			return nil, fmt.Errorf("no locations registered, use 'cvsbrowse locations add'")
		}
		return locs, nil
	}
	loc, err := a.locations.GetByID(id)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		return nil, fmt.Errorf("location %d not found", id)
	}
	return []models.Location{*loc}, nil
}

var verbose bool

var locationsCmd = &cobra.Command{
	Use:   "locations",
	Short: "Manage registered CVS checkouts",
}

var locationsAddCmd = &cobra.Command{
	Use:   "add [dir]",
	Short: "Register a CVS checkout",
	Long: `Register a CVS checkout. CVSROOT and module are read from the CVS/
directory unless given as flags. Without a CVSROOT the location is offline.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}
		cvsRoot, _ := cmd.Flags().GetString("cvsroot")
		module, _ := cmd.Flags().GetString("module")

		if cvsRoot == "" || module == "" {
			checkout, err := cvs.ReadCheckout(dir)
			if err != nil && cvsRoot == "" && module == "" {
				fail(err)
			}
			if checkout != nil {
				if cvsRoot == "" {
					cvsRoot = checkout.CvsRoot
				}
				if module == "" {
					module = checkout.Module
				}
			}
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			fail(err)
		}

		a, err := openApp()
		if err != nil {
			fail(err)
		}
		defer a.close()

		existing, err := a.locations.GetByRootPath(abs)
		if err != nil {
			fail(err)
		}
		if existing != nil {
			fail(fmt.Errorf("%s is already registered as location %d", abs, existing.ID))
		}

		loc, err := a.locations.Create(abs, cvsRoot, module)
		if err != nil {
			fail(fmt.Errorf("failed to register %s: %w", abs, err))
		}
		fmt.Println(renderLocation(*loc))
	},
}

var locationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered checkouts",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			fail(err)
		}
		defer a.close()

		locs, err := a.locations.GetAll()
		if err != nil {
			fail(err)
		}
		if len(locs) == 0 {
			fmt.Println(dimStyle.Render("No locations registered."))
			return
		}
		ctx := context.Background()
		for _, loc := range locs {
			cached, err := a.cache.Count(ctx, loc.ID)
			if err != nil {
				fail(err)
			}
			fmt.Println(renderLocation(loc) + dimStyle.Render(fmt.Sprintf("  (%d cached)", cached)))
		}
	},
}

var locationsRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Forget a checkout and its cached changes",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			fail(fmt.Errorf("invalid location id %q", args[0]))
		}

		a, err := openApp()
		if err != nil {
			fail(err)
		}
		defer a.close()

		if err := a.locations.Delete(id); err != nil {
			fail(err)
		}
		fmt.Printf("Removed location %d\n", id)
	},
}

var changesCmd = &cobra.Command{
	Use:   "changes",
	Short: "Show committed changes grouped by repository",
	Long: `Show committed changes grouped by repository.

Examples:
  cvsbrowse changes                          # All locations
  cvsbrowse changes --since 2009-03-01       # Since a date
  cvsbrowse changes -l 2 --author alice      # One location, one author
  cvsbrowse changes --cached                 # From the cache, without cvs`,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			fail(err)
		}
		defer a.close()

		filter, err := filterFromFlags(cmd, a.cfg)
		if err != nil {
			fail(err)
		}
		id, _ := cmd.Flags().GetInt64("location")
		limit, _ := cmd.Flags().GetInt("limit")
		cached, _ := cmd.Flags().GetBool("cached")
		stream, _ := cmd.Flags().GetBool("stream")

		locs, err := a.selectLocations(id)
		if err != nil {
			fail(err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if stream {
			streamChanges(ctx, a, locs, filter)
			return
		}

		var results []zipper.LocationResult
		var loadErr error
		if cached {
			results, loadErr = cachedResults(ctx, a, locs, filter, limit)
		} else {
			results, loadErr = a.provider.CommittedChangesForAll(ctx, locs, filter, limit)
		}

		for _, group := range zipper.Zip(results) {
			fmt.Println(renderGroupResult(group))
		}
		if loadErr != nil {
			logError("changes", loadErr)
			fail(loadErr)
		}
	},
}

func streamChanges(ctx context.Context, a *app, locs []models.Location, filter changes.Filter) {
	for _, loc := range locs {
		fmt.Println(titleStyle.Render(loc.RootPath))
		err := a.provider.StreamCommittedChanges(ctx, loc, filter,
			func(cl *changes.ChangeList) error {
				fmt.Printf("%s  %s  %s  %s\n",
					dimStyle.Render(fmt.Sprintf("#%d", cl.Number)),
					cl.CommitDate.Local().Format(dateLayout),
					authorStyle.Render(cl.Author),
					firstLine(cl.Message),
				)
				return nil
			},
			func(err error) {
				if err != nil {
					logError("changes", err)
				}
			},
		)
		if err != nil {
			fail(err)
		}
	}
}

func cachedResults(ctx context.Context, a *app, locs []models.Location, filter changes.Filter, limit int) ([]zipper.LocationResult, error) {
	var results []zipper.LocationResult
	for _, loc := range locs {
		lists, err := a.provider.CachedChanges(ctx, loc, filter)
		if err != nil {
			return results, err
		}
		if limit > 0 && len(lists) > limit {
			lists = lists[:limit]
		}
		results = append(results, zipper.LocationResult{Location: loc, ChangeLists: lists})
	}
	return results, nil
}

var findCmd = &cobra.Command{
	Use:   "find <file> <revision>",
	Short: "Show the commit a file revision belongs to",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		rev, err := revision.Parse(args[1])
		if err != nil {
			fail(err)
		}

		a, err := openApp()
		if err != nil {
			fail(err)
		}
		defer a.close()

		id, _ := cmd.Flags().GetInt64("location")
		loc, file, err := a.resolveFile(id, args[0])
		if err != nil {
			fail(err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		cl, err := a.provider.OneList(ctx, loc, file, rev)
		if err != nil {
			logError("find", err)
			fail(err)
		}
		if cl == nil {
			fmt.Println(warningStyle.Render("Location is offline."))
			return
		}
		fmt.Print(renderChangeList(cl))

		if local, tag, ok := localRevision(args[0]); ok {
			fmt.Println(renderAvailability(changes.IsChangeLocallyAvailable(local, rev, tag, cl), local))
		}
	},
}

// localRevision reads the checked-out revision and sticky tag of a local file
// from CVS/Entries. ok is false when arg is not a file of a checkout.
func localRevision(arg string) (revision.Number, *string, bool) {
	info, err := os.Stat(arg)
	if err != nil || info.IsDir() {
		return revision.Number{}, nil, false
	}
	entry, err := cvs.ReadEntry(filepath.Dir(arg), filepath.Base(arg))
	if err != nil {
		logrus.WithError(err).Debug("No CVS entry for file")
		return revision.Number{}, nil, false
	}
	// Added and removed files carry 0 or a negated revision.
	local, err := revision.Parse(entry.Revision)
	if err != nil || local.Len() < 2 {
		local = revision.Number{}
	}
	return local, entry.Tag, true
}

// resolveFile maps a local file or a module-relative path to its location and
// module-relative path.
func (a *app) resolveFile(id int64, arg string) (models.Location, string, error) {
	locs, err := a.selectLocations(id)
	if err != nil {
		return models.Location{}, "", err
	}

	if abs, err := filepath.Abs(arg); err == nil {
		for _, loc := range locs {
			rel, err := filepath.Rel(loc.RootPath, abs)
			if err != nil || strings.HasPrefix(rel, "..") {
				continue
			}
			if _, statErr := os.Stat(abs); statErr == nil {
				return loc, path.Join(loc.Module, filepath.ToSlash(rel)), nil
			}
		}
	}

	file := filepath.ToSlash(arg)
	for _, loc := range locs {
		if changes.IsAncestor(loc.Module, file) {
			return loc, file, nil
		}
	}
	return models.Location{}, "", fmt.Errorf("%s does not belong to a registered location", arg)
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Rebuild the changelist cache",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			fail(err)
		}
		defer a.close()

		filter, err := filterFromFlags(cmd, a.cfg)
		if err != nil {
			fail(err)
		}
		id, _ := cmd.Flags().GetInt64("location")
		locs, err := a.selectLocations(id)
		if err != nil {
			fail(err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		failed := 0
		for _, loc := range locs {
			count, err := a.provider.RefreshCache(ctx, loc, filter)
			if err != nil {
				failed++
				logError("refresh", err)
				fmt.Fprintln(os.Stderr, renderError(err))
				continue
			}
			fmt.Printf("%s: %d changelists cached\n", loc.RootPath, count)
		}
		if failed > 0 {
			os.Exit(1)
		}
	},
}

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "Show locations grouped by repository",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			fail(err)
		}
		defer a.close()

		locs, err := a.locations.GetAll()
		if err != nil {
			fail(err)
		}
		for _, g := range zipper.Groups(locs) {
			fmt.Println(renderGroup(g))
		}
	},
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the changelist cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop cached changelists",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			fail(err)
		}
		defer a.close()

		ctx := context.Background()
		id, _ := cmd.Flags().GetInt64("location")
		if id == 0 {
			if err := a.cache.ClearAll(ctx); err != nil {
				fail(err)
			}
			fmt.Println("Cache cleared.")
			return
		}
		if err := a.cache.Clear(ctx, id); err != nil {
			fail(err)
		}
		fmt.Printf("Cache of location %d cleared.\n", id)
	},
}

var dbStatusCmd = &cobra.Command{
	Use:   "db-status",
	Short: "Show the cache database migration state",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			fail(err)
		}
		defer a.close()

		status, err := db.GetMigrationStatus()
		if err != nil {
			fail(err)
		}
		fmt.Printf("Version: %d of %d\n", status.CurrentVersion, status.LatestVersion)
		if status.Dirty {
			fmt.Println(warningStyle.Render("Database is dirty."))
		}
	},
}

func filterFromFlags(cmd *cobra.Command, cfg *config.Config) (changes.Filter, error) {
	var filter changes.Filter

	since, _ := cmd.Flags().GetString("since")
	if since != "" {
		t, err := time.ParseInLocation("2006-01-02", since, time.Local)
		if err != nil {
			return filter, fmt.Errorf("invalid --since %q (expected YYYY-MM-DD)", since)
		}
		filter.DateAfter = &t
	} else if t := cfg.Since(); !t.IsZero() {
		filter.DateAfter = &t
	}

	until, _ := cmd.Flags().GetString("until")
	if until != "" {
		t, err := time.ParseInLocation("2006-01-02", until, time.Local)
		if err != nil {
			return filter, fmt.Errorf("invalid --until %q (expected YYYY-MM-DD)", until)
		}
		end := t.AddDate(0, 0, 1).Add(-time.Millisecond)
		filter.DateBefore = &end
	}

	if cmd.Flags().Lookup("author") != nil {
		filter.Author, _ = cmd.Flags().GetString("author")
		filter.Text, _ = cmd.Flags().GetString("text")
		if branch, _ := cmd.Flags().GetString("branch"); branch != "" {
			filter.Branch = &branch
		}
	}
	return filter, nil
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().Int64P("location", "l", 0, "Location id (default: all locations)")
	cmd.Flags().String("since", "", "Only changes committed on or after YYYY-MM-DD")
	cmd.Flags().String("until", "", "Only changes committed on or before YYYY-MM-DD")
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output")

	locationsAddCmd.Flags().String("cvsroot", "", "CVSROOT (default: read from CVS/Root)")
	locationsAddCmd.Flags().String("module", "", "Module path (default: read from CVS/Repository)")
	locationsCmd.AddCommand(locationsAddCmd)
	locationsCmd.AddCommand(locationsListCmd)
	locationsCmd.AddCommand(locationsRemoveCmd)

	addFilterFlags(changesCmd)
	changesCmd.Flags().String("author", "", "Only changes by this author")
	changesCmd.Flags().String("text", "", "Only changes whose message contains text")
	changesCmd.Flags().String("branch", "", "Only changes on this branch (HEAD for the trunk)")
	changesCmd.Flags().IntP("limit", "n", 0, "Show at most n changes per location")
	changesCmd.Flags().Bool("cached", false, "Read from the cache instead of running cvs")
	changesCmd.Flags().Bool("stream", false, "Print changes as they are found")

	findCmd.Flags().Int64P("location", "l", 0, "Location id")

	addFilterFlags(refreshCmd)

	cacheClearCmd.Flags().Int64P("location", "l", 0, "Location id (default: all locations)")
	cacheCmd.AddCommand(cacheClearCmd)

	rootCmd.AddCommand(locationsCmd)
	rootCmd.AddCommand(changesCmd)
	rootCmd.AddCommand(findCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(groupsCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(dbStatusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logrus.SetOutput(os.Stderr)
	if debugEnabled() {
		logrus.SetLevel(logrus.DebugLevel)
	}
}

func debugEnabled() bool {
	return verbose || os.Getenv("DEBUG") == "true"
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, renderError(err))
	os.Exit(1)
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}

// logError appends err to the error log in the cvsbrowse directory.
func logError(command string, err error) {
	logPath, pathErr := config.ErrorLogPath()
	if pathErr != nil {
		return
	}

	if err := config.EnsureDirectories(); err != nil {
		return
	}

	f, fileErr := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if fileErr != nil {
		return
	}
	defer f.Close()

	fileLogger := logrus.New()
	fileLogger.SetOutput(f)
	fileLogger.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
	fileLogger.WithFields(logrus.Fields{
		"command": command,
	}).Error(err)
}
