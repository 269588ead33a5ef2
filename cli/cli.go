package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/hashicorp/go-hclog"
	"github.com/lab47/cleo"
	"github.com/lab47/fwsnd"
	"github.com/lab47/fwsnd/pkg/hwdep"
	"github.com/mitchellh/cli"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sys/unix"
)

type CLI struct {
	log hclog.Logger

	lc *cli.CLI
}

type Global struct {
	Config string `short:"c" long:"config" description:"configuration file"`
	Debug  bool   `short:"D" long:"debug" description:"enable debug mode"`
	Device string `short:"d" long:"device" description:"hwdep device node, such as /dev/snd/hwC0D0"`
}

func NewCLI(log hclog.Logger, args []string) (*CLI, error) {
	c := &CLI{
		log: log,
		lc:  cli.NewCLI("fwsnd", "alpha"),
	}

	c.lc.Args = args

	err := c.setupCommands()
	if err != nil {
		return nil, err
	}

	return c, nil
}

func (c *CLI) Run() (int, error) {
	return c.lc.Run()
}

func (c *CLI) setupCommands() error {
	c.lc.Commands = map[string]cli.CommandFactory{
		"info": func() (cli.Command, error) {
			return cleo.Infer("info", "show the metadata of a unit", c.info), nil
		},
		"lock": func() (cli.Command, error) {
			return cleo.Infer("lock", "hold the streaming lock until interrupted", c.lock), nil
		},
		"unlock": func() (cli.Command, error) {
			return cleo.Infer("unlock", "release the streaming lock", c.unlock), nil
		},
		"monitor": func() (cli.Command, error) {
			return cleo.Infer("monitor", "log the events of a unit", c.monitor), nil
		},
		"efw": func() (cli.Command, error) {
			return cleo.Infer("efw", "run one Fireworks transaction", c.efw), nil
		},
		"tascam-state": func() (cli.Command, error) {
			return cleo.Infer("tascam-state", "dump the Tascam control registers", c.tascamState), nil
		},
		"motu-meter": func() (cli.Command, error) {
			return cleo.Infer("motu-meter", "dump the MOTU meters", c.motuMeter), nil
		},
	}

	return nil
}

type session struct {
	cfg  *fwsnd.Config
	unit *fwsnd.Unit
}

// open resolves the device from the flags and the configuration file and
// opens it.
func (c *CLI) open(g Global) (*session, error) {
	if g.Debug {
		c.log.SetLevel(hclog.Trace)
	}

	var (
		cfg     fwsnd.Config
		options []fwsnd.Option
	)

	if g.Config != "" {
		loaded, err := fwsnd.LoadConfig(g.Config)
		if err != nil {
			return nil, errors.Wrapf(err, "loading configuration")
		}

		cfg = *loaded

		options, err = cfg.Options()
		if err != nil {
			return nil, err
		}
	}

	if g.Device != "" {
		cfg.Device = g.Device
	}

	if cfg.Device == "" {
		return nil, errors.New("no device given, use --device or a configuration file")
	}

	u := fwsnd.NewUnit(c.log, options...)

	if err := u.Open(cfg.Device); err != nil {
		return nil, err
	}

	kind, err := cfg.ExpectedKind()
	if err != nil {
		u.Close()
		return nil, err
	}

	if kind != 0 {
		info, _ := u.Info()
		if info.Kind != kind {
			u.Close()
			return nil, errors.Wrapf(fwsnd.ErrWrongDeviceKind, "%s is %s, configured as %s",
				cfg.Device, info.Kind, kind)
		}
	}

	return &session{cfg: &cfg, unit: u}, nil
}

// runSource starts the event source in the background and returns a
// function that stops it.
func (c *CLI) runSource(ctx context.Context, u *fwsnd.Unit) (*fwsnd.Source, func(), error) {
	s, err := u.NewSource()
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)

		if err := s.Run(ctx); err != nil {
			c.log.Error("event source failed", "error", err)
		}
	}()

	return s, func() {
		cancel()
		<-done
	}, nil
}

func lockLabel(locked bool) string {
	if locked {
		return color.YellowString("locked")
	}
	return color.GreenString("unlocked")
}

func (c *CLI) info(ctx context.Context, opts struct {
	Global
}) error {
	sess, err := c.open(opts.Global)
	if err != nil {
		return err
	}

	defer sess.unit.Close()

	info, err := sess.unit.Info()
	if err != nil {
		return err
	}

	// Creating the source probes the lock state.
	if _, err := sess.unit.NewSource(); err != nil {
		return err
	}

	tr := tabwriter.NewWriter(os.Stdout, 2, 2, 1, ' ', 0)
	defer tr.Flush()

	fmt.Fprintf(tr, "ID\t%s\n", sess.unit.ID())
	fmt.Fprintf(tr, "KIND\t%s\n", info.Kind)
	fmt.Fprintf(tr, "CARD\t%d\n", info.Card)
	fmt.Fprintf(tr, "NODE\t%s\n", info.DeviceName)
	fmt.Fprintf(tr, "GUID\t%016x\n", info.GUID)
	fmt.Fprintf(tr, "STREAMING\t%s\n", lockLabel(sess.unit.Locked()))

	return nil
}

func (c *CLI) lock(ctx context.Context, opts struct {
	Global
}) error {
	sess, err := c.open(opts.Global)
	if err != nil {
		return err
	}

	defer sess.unit.Close()

	if err := sess.unit.Lock(); err != nil {
		if errors.Is(err, fwsnd.ErrLocked) {
			fmt.Println(color.RedString("streaming is already locked by another process"))
		}
		return err
	}

	fmt.Printf("streaming %s, interrupt to release\n", lockLabel(true))

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, unix.SIGTERM)
	defer cancel()

	<-ctx.Done()

	return sess.unit.Unlock()
}

func (c *CLI) unlock(ctx context.Context, opts struct {
	Global
}) error {
	sess, err := c.open(opts.Global)
	if err != nil {
		return err
	}

	defer sess.unit.Close()

	err = sess.unit.Unlock()
	if errors.Is(err, fwsnd.ErrUnlocked) {
		// The kernel only lets the holder of the lock release it.
		fmt.Println(color.YellowString("this process does not hold the lock"))
		return nil
	}

	return err
}

func describe(ev fwsnd.Event) []any {
	switch ev := ev.(type) {
	case fwsnd.LockChanged:
		return []any{"locked", ev.Locked}
	case fwsnd.Quadlet:
		return []any{"message", fmt.Sprintf("%08x", ev.Message)}
	case fwsnd.TimestampedQuadlet:
		return []any{"message", fmt.Sprintf("%08x", ev.Message), "tstamp", ev.Tstamp}
	case fwsnd.TascamChange:
		return []any{"index", ev.Index, "before", ev.Before, "after", ev.After}
	case fwsnd.MotuRegisterDspChange:
		return []any{"events", len(ev.Events)}
	case fwsnd.EfwResponse:
		return []any{"seqnum", ev.Frame.Seqnum, "category", ev.Frame.Category,
			"command", ev.Frame.Command, "status", ev.Frame.Status}
	default:
		return nil
	}
}

func (c *CLI) monitor(ctx context.Context, opts struct {
	Global
	MetricsAddr string `long:"metrics" description:"address to expose metrics on"`
	NATS        string `long:"nats" description:"NATS server to publish events to"`
	NATSId      string `long:"nats-id" description:"id used in NATS subjects"`
}) error {
	sess, err := c.open(opts.Global)
	if err != nil {
		return err
	}

	defer sess.unit.Close()

	u := sess.unit
	log := c.log.Named("monitor")

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, unix.SIGTERM)
	defer cancel()

	metricsAddr := opts.MetricsAddr
	if metricsAddr == "" && sess.cfg.Metrics != nil {
		metricsAddr = sess.cfg.Metrics.Addr
	}

	if metricsAddr != "" {
		serveMetrics(log, metricsAddr)
		log.Info("serving metrics", "addr", metricsAddr)
	}

	natsURL, natsID := opts.NATS, opts.NATSId
	if natsURL == "" && sess.cfg.NATS != nil {
		natsURL, natsID = sess.cfg.NATS.URL, sess.cfg.NATS.ID
	}

	if natsURL != "" {
		nb, err := fwsnd.NewNATSBridge(log, u, natsURL, natsID)
		if err != nil {
			return errors.Wrapf(err, "connecting to %s", natsURL)
		}

		defer nb.Close()

		if err := nb.Start(ctx); err != nil {
			return err
		}
	}

	u.Subscribe(func(ev fwsnd.Event) {
		log.Info(ev.Name(), describe(ev)...)
	})

	info, _ := u.Info()

	// Responses are only decoded once an engine is attached.
	if info.Kind == hwdep.KindFireworks {
		if _, err := fwsnd.NewFireworks(u); err != nil {
			return err
		}
	}

	s, err := u.NewSource()
	if err != nil {
		return err
	}

	log.Info("monitoring unit", "unit", info.String(), "locked", u.Locked())

	err = s.Run(ctx)

	if u.Disconnected() {
		fmt.Println(color.RedString("unit disconnected"))
	}

	return err
}

// serveMetrics exposes the prometheus registry on addr. The returned
// channel receives the error that stopped the server.
func serveMetrics(log hclog.Logger, addr string) <-chan error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	errs := make(chan error, 1)

	go func() {
		err := http.ListenAndServe(addr, mux)
		log.Error("error serving metrics", "error", err, "addr", addr)
		errs <- err
	}()

	return errs
}

func parseWords(s string) ([]uint32, error) {
	if s == "" {
		return nil, nil
	}

	var words []uint32

	for _, part := range strings.Split(s, ",") {
		v, err := strconv.ParseUint(strings.TrimSpace(part), 0, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing argument %q", part)
		}

		words = append(words, uint32(v))
	}

	return words, nil
}

func (c *CLI) efw(ctx context.Context, opts struct {
	Global
	Category uint32        `long:"category" description:"command category" required:"true"`
	Command  uint32        `long:"command" description:"command within the category" required:"true"`
	Args     string        `long:"args" description:"comma separated argument quadlets"`
	Timeout  time.Duration `long:"timeout" description:"how long to wait for the response"`
	Params   int           `long:"params" default:"122" description:"room for response quadlets"`
}) error {
	args, err := parseWords(opts.Args)
	if err != nil {
		return err
	}

	sess, err := c.open(opts.Global)
	if err != nil {
		return err
	}

	defer sess.unit.Close()

	fw, err := fwsnd.NewFireworks(sess.unit)
	if err != nil {
		return err
	}

	_, stop, err := c.runSource(ctx, sess.unit)
	if err != nil {
		return err
	}

	defer stop()

	params := make([]uint32, opts.Params)

	start := time.Now()

	n, err := fw.Transact(ctx, opts.Category, opts.Command, args, params, opts.Timeout)
	if err != nil {
		fmt.Println(color.RedString("transaction failed: %s", err))
		return err
	}

	c.log.Debug("transaction complete", "params", n, "elapsed", time.Since(start))

	for i, p := range params[:n] {
		fmt.Printf("%3d: 0x%08x %d\n", i, p, p)
	}

	return nil
}

func (c *CLI) tascamState(ctx context.Context, opts struct {
	Global
}) error {
	sess, err := c.open(opts.Global)
	if err != nil {
		return err
	}

	defer sess.unit.Close()

	tc, err := fwsnd.NewTascam(sess.unit)
	if err != nil {
		return err
	}

	state, err := tc.ReadState()
	if err != nil {
		return err
	}

	tr := tabwriter.NewWriter(os.Stdout, 2, 2, 1, ' ', 0)
	defer tr.Flush()

	fmt.Fprintf(tr, "INDEX\tVALUE\n")

	for i, v := range state {
		fmt.Fprintf(tr, "%d\t0x%08x\n", i, v)
	}

	return nil
}

func (c *CLI) motuMeter(ctx context.Context, opts struct {
	Global
	Float bool `long:"float" description:"read the command DSP meter instead of the register DSP one"`
}) error {
	sess, err := c.open(opts.Global)
	if err != nil {
		return err
	}

	defer sess.unit.Close()

	m, err := fwsnd.NewMotu(sess.unit)
	if err != nil {
		return err
	}

	if opts.Float {
		meter, err := m.ReadFloatMeter()
		if err != nil {
			return err
		}

		for i, v := range meter {
			fmt.Printf("%3d: %f\n", i, v)
		}

		return nil
	}

	meter, err := m.ReadByteMeter()
	if err != nil {
		return err
	}

	for i, v := range meter {
		fmt.Printf("%2d: %3d\n", i, v)
	}

	return nil
}
