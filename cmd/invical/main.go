package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"invical/internal/config"
	"invical/internal/event"
	"invical/internal/invite"
	applog "invical/internal/log"
	"invical/internal/snapshot"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath    string
	eventPath     string
	cancelUID     string
	cancelSummary string
	ingestPath    string
	daemon        bool
	outPath       string
}

// eventFile is the YAML shape accepted by -event.
type eventFile struct {
	UID         string `yaml:"uid"`
	Summary     string `yaml:"summary"`
	Description string `yaml:"description"`
	Location    string `yaml:"location"`

	Start time.Time `yaml:"start"`
	End   time.Time `yaml:"end"`

	Organizer struct {
		Name  string `yaml:"name"`
		Email string `yaml:"email"`
	} `yaml:"organizer"`

	Required []personFile `yaml:"required"`
	Optional []personFile `yaml:"optional"`
}

type personFile struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		applog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	applog.SetLevel(applog.ParseLevel(conf.LogLevel))

	applog.Info("invical starting",
		"organizer", conf.Organizer.Email,
		"uid_domain", conf.UIDDomain,
		"store_path", conf.StorePath,
		"daemon", flags.daemon,
	)

	if err := os.MkdirAll(filepath.Dir(conf.StorePath), 0o700); err != nil {
		applog.Error("failed to create store directory", err, "store_path", conf.StorePath)
		os.Exit(1)
	}
	store, err := snapshot.OpenBolt(conf.StorePath)
	if err != nil {
		applog.Error("failed to open snapshot store", err, "store_path", conf.StorePath)
		os.Exit(1)
	}
	defer store.Close()

	composer := invite.NewComposer(conf, store, nil)

	switch {
	case flags.eventPath != "":
		err = runRequest(composer, flags)
	case flags.cancelUID != "":
		err = runCancel(composer, flags)
	case flags.ingestPath != "":
		err = runIngest(composer, flags)
	case flags.daemon:
		err = runDaemon(conf, store)
	default:
		fmt.Fprintln(os.Stderr, "one of -event, -cancel, -ingest or -daemon is required")
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		applog.Error("command failed", err)
		os.Exit(1)
	}
}

func runRequest(composer *invite.Composer, flags flagConfig) error {
	data, err := os.ReadFile(flags.eventPath)
	if err != nil {
		return err
	}

	var ef eventFile
	if err := yaml.Unmarshal(data, &ef); err != nil {
		return fmt.Errorf("parsing %s: %w", flags.eventPath, err)
	}

	ev, err := composer.NewEvent(event.Params{
		UID:         ef.UID,
		Summary:     ef.Summary,
		Description: ef.Description,
		Location:    ef.Location,
		Start:       ef.Start,
		End:         ef.End,
		Organizer:   event.Organizer{Name: ef.Organizer.Name, Email: ef.Organizer.Email},
		Required:    persons(ef.Required),
		Optional:    persons(ef.Optional),
	})
	if err != nil {
		return err
	}

	inv, err := composer.ComposeRequest(ev)
	if err != nil {
		return err
	}
	return writeInvite(inv, flags.outPath)
}

func runCancel(composer *invite.Composer, flags flagConfig) error {
	inv, err := composer.ComposeCancelByUID(flags.cancelUID, invite.CancelNote{
		Summary: flags.cancelSummary,
	})
	if err != nil {
		return err
	}
	return writeInvite(inv, flags.outPath)
}

func runIngest(composer *invite.Composer, flags flagConfig) error {
	data, err := os.ReadFile(flags.ingestPath)
	if err != nil {
		return err
	}
	_, err = composer.Ingest(data)
	return err
}

// runDaemon keeps the process alive and prunes expired snapshots on the
// configured cron schedule.
func runDaemon(conf *config.Config, store *snapshot.BoltStore) error {
	prune := func() {
		cutoff := time.Now().AddDate(0, 0, -conf.RetentionDays)
		removed, err := store.Prune(cutoff)
		if err != nil {
			applog.Error("snapshot prune failed", err)
			return
		}
		applog.Info("snapshot prune completed", "removed", removed, "cutoff", cutoff.Format(time.RFC3339))
	}

	cr := cron.New()
	if _, err := cr.AddFunc(conf.PruneCron, prune); err != nil {
		return fmt.Errorf("bad prune_cron %q: %w", conf.PruneCron, err)
	}
	cr.Start()
	defer cr.Stop()

	applog.Info("daemon running", "prune_cron", conf.PruneCron, "retention_days", conf.RetentionDays)

	// Run one prune pass at startup so a rarely-restarted daemon still
	// converges quickly.
	prune()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	applog.Info("signal received, shutting down", "signal", sig.String())
	return nil
}

// writeInvite writes the rendered document to out ("-" or empty means
// stdout next to a log line naming the derived attachment filename). The
// bytes are written untouched: the CRLF line endings are part of the
// format and must survive.
func writeInvite(inv invite.Invite, out string) error {
	if out == "" || out == "-" {
		_, err := os.Stdout.WriteString(inv.ICS)
		applog.Info("rendered invitation",
			"uid", inv.Event.UID,
			"method", string(inv.Event.Method),
			"sequence", inv.Event.Sequence,
			"filename", inv.Filename,
		)
		return err
	}
	if err := os.WriteFile(out, []byte(inv.ICS), 0o644); err != nil {
		return err
	}
	applog.Info("wrote invitation",
		"uid", inv.Event.UID,
		"method", string(inv.Event.Method),
		"sequence", inv.Event.Sequence,
		"out", out,
	)
	return nil
}

func persons(in []personFile) []event.Person {
	out := make([]event.Person, 0, len(in))
	for _, p := range in {
		out = append(out, event.Person{Name: p.Name, Email: p.Email})
	}
	return out
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "invical.yaml", "Path to config file")
	flag.StringVar(&cfg.eventPath, "event", "", "Render a REQUEST from this YAML event file")
	flag.StringVar(&cfg.cancelUID, "cancel", "", "Render a CANCEL for this UID from the snapshot store")
	flag.StringVar(&cfg.cancelSummary, "cancel-summary", "", "Summary text for -cancel (optional)")
	flag.StringVar(&cfg.ingestPath, "ingest", "", "Ingest an existing .ics REQUEST into the snapshot store")
	flag.BoolVar(&cfg.daemon, "daemon", false, "Run the snapshot prune daemon")
	flag.StringVar(&cfg.outPath, "out", "", "Output path for rendered .ics (default stdout)")

	flag.Parse()

	return cfg
}
