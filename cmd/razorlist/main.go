// Command razorlist lists a directory and optionally keeps the listing
// live, printing every change as it is reconciled.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"

	"github.com/justyntemme/razorlist/internal/collection"
	"github.com/justyntemme/razorlist/internal/config"
	"github.com/justyntemme/razorlist/internal/debug"
	"github.com/justyntemme/razorlist/internal/enrich"
	"github.com/justyntemme/razorlist/internal/fs"
	"github.com/justyntemme/razorlist/internal/item"
	"github.com/justyntemme/razorlist/internal/listing"
	"github.com/justyntemme/razorlist/internal/metrics"
	"github.com/justyntemme/razorlist/internal/order"
	"github.com/justyntemme/razorlist/internal/query"
	"github.com/justyntemme/razorlist/internal/store"
)

// Args holds the command-line flags. Set flags override the config file.
type Args struct {
	Path           string `arg:"positional" help:"directory, sftp:// or s3:// URL to list (default: current directory)"`
	Sort           string `arg:"-s,--sort" help:"sort key: name|modified|created|size|type"`
	Desc           bool   `arg:"-r,--desc" help:"reverse the sort order"`
	DirsFirst      bool   `arg:"--dirs-first" help:"group directories before files"`
	Hidden         bool   `arg:"-a,--all" help:"include hidden entries"`
	Watch          bool   `arg:"-w,--watch" help:"keep running and print changes"`
	Search         string `arg:"-q,--search" help:"list entries below the path matching a query, e.g. 'ext:go size:>1MB'"`
	MetricsAddr    string `arg:"--metrics-addr" help:"serve Prometheus metrics on this address, e.g. :9090"`
	Config         string `arg:"-c,--config" help:"config file (default: ~/.config/razorlist/config.json)"`
	GenerateConfig bool   `arg:"--generate-config" help:"write a default config file and exit"`
	NoStore        bool   `arg:"--no-store" help:"do not read or save per-folder sort settings"`
}

// Description returns the program description for go-arg
func (Args) Description() string {
	return "Lists directories through the fastest available source and keeps them live"
}

// Version returns the version string for go-arg
func (Args) Version() string {
	return "razorlist 0.1.0"
}

func main() {
	var args Args
	arg.MustParse(&args)

	if err := run(args); err != nil {
		fmt.Fprintln(os.Stderr, styles.err.Render("error: "+err.Error()))
		os.Exit(1)
	}
}

func run(args Args) error {
	defer debug.Sync()

	cfgPath := args.Config
	if cfgPath == "" {
		cfgPath = config.ConfigPath()
	}
	if args.GenerateConfig {
		backup, err := config.GenerateConfig(cfgPath)
		if err != nil {
			return err
		}
		if backup != "" {
			fmt.Println(styles.dim.Render("previous config saved to " + backup))
		}
		fmt.Println("wrote " + cfgPath)
		return nil
	}

	mgr := config.NewManager()
	if err := mgr.LoadFrom(cfgPath); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := mgr.ParseError(); err != nil {
		fmt.Fprintln(os.Stderr, styles.warn.Render("config: "+err.Error()+" (using defaults)"))
	}
	cfg := mgr.Get()

	sortOpts := mgr.SortOptions()
	if args.Sort != "" {
		key, err := order.ParseKey(args.Sort)
		if err != nil {
			return err
		}
		sortOpts.Key = key
	}
	if args.Desc {
		sortOpts.Descending = !sortOpts.Descending
	}
	if args.DirsFirst {
		sortOpts.DirectoriesFirst = true
	}

	if args.MetricsAddr != "" {
		srv := serveMetrics(args.MetricsAddr)
		defer srv.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	policy := fs.NewPolicy(cfg.Listing.CloudRoots, mgr.OpenTimeout())
	items := fs.NewItemSource(policy)
	sftpProvider := fs.NewSFTPProvider(cfg.Remote.SFTPPort)
	defer sftpProvider.Close()
	items.Register(fs.SchemeSFTP, sftpProvider)
	items.Register(fs.SchemeS3, fs.NewS3Provider(cfg.Remote.S3Region))

	icons := item.NewIconCache(cfg.Enrich.IconCacheEntries)
	coord := listing.NewCoordinator(policy, fs.NewBulkSource(mgr.OpenTimeout()), items, item.NewFactory(icons, cfg.Enrich.IconSize), listing.Config{
		BatchSize:       cfg.Listing.BatchSize,
		ShowHidden:      cfg.Listing.ShowHidden || args.Hidden,
		Sort:            sortOpts,
		RememberSort:    cfg.Sort.RememberPerFolder && !args.NoStore && args.Sort == "" && !args.Desc,
		ChangeThreshold: cfg.Listing.ApplyChangesThreshold,
		Watch:           args.Watch && cfg.Watch.Enabled,
		WatchVCS:        cfg.Watch.WatchVCS,
		Debounce:        mgr.Debounce(),
		SearchDepth:     cfg.Search.DefaultDepth,
		ContentEngine:   query.ResolveEngine(cfg.Search.ContentEngine),
	})
	if args.Watch {
		coord.Loader = enrich.NewLoader(enrich.NewImageProvider(icons, cfg.Enrich.Thumbnails), items, cfg.Enrich.IconSize, cfg.Enrich.Workers)
	}

	if coord.Config.RememberSort {
		db, err := store.Open(store.DefaultPath())
		if err != nil {
			fmt.Fprintln(os.Stderr, styles.warn.Render("view settings unavailable: "+err.Error()))
		} else {
			defer db.Close()
			coord.Views = db
		}
	}

	var s *listing.Session
	if args.Search != "" {
		s = coord.NewSearchSession(query.Parse(args.Search))
	} else {
		s = coord.NewSession()
	}
	defer s.Dispose()

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	target := listing.ExpandPath(args.Path, cwd)

	var events <-chan collection.Event
	if args.Watch {
		ch, unsubscribe := s.Subscribe(256)
		defer unsubscribe()
		events = ch
	}

	s.SetTarget(target)

	var res listing.ListResult
	select {
	case <-ctx.Done():
		return nil
	case res = <-s.Results():
	}
	printListing(os.Stdout, s.Snapshot(), s.IsSearchResult, target)
	printResult(os.Stdout, res)

	if !args.Watch {
		if res.State == listing.Failed && !res.Partial() {
			return res.Err
		}
		return nil
	}
	drain(events)
	return watchLoop(ctx, s, events)
}

// drain discards the events of the initial listing, already printed.
func drain(events <-chan collection.Event) {
	for {
		select {
		case <-events:
		default:
			return
		}
	}
}

// watchLoop prints live updates until ctx is cancelled.
func watchLoop(ctx context.Context, s *listing.Session, events <-chan collection.Event) error {
	if s.HasNoWatcher() {
		fmt.Println(styles.warn.Render("change notifications unavailable; press ctrl+c to stop"))
	} else if info, ok := s.VCS(); ok {
		fmt.Println(styles.dim.Render(fmt.Sprintf("%s working tree at %s", info.Kind, info.Root)))
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			printEvent(os.Stdout, ev)
		case res := <-s.Results():
			printResult(os.Stdout, res)
		case dir := <-s.VCSChanges():
			fmt.Println(styles.dim.Render("repository state changed: " + dir))
		}
	}
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintln(os.Stderr, styles.warn.Render("metrics server: "+err.Error()))
		}
	}()
	return srv
}
