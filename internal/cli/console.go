package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/me/apron/internal/config"
	"github.com/me/apron/internal/policy"
	"github.com/me/apron/internal/scheduler"
	"github.com/me/apron/internal/source"
	"github.com/me/apron/internal/store"
	"github.com/me/apron/pkg/model"
)

const consoleHelp = `Commands:
  1, schedule-next [n]        Schedule the next flight (optionally on runway n)
  2, list-queue               Show waiting flights
  3, list-runways             Show runway status
  4, list-gates               Show gate status
     list-flights             Show flights on runways or at gates
     assign-gate <flight> [n] Give a landed arrival a gate (optionally gate n)
     help                     Show this list
  5, exit                     Leave the console`

func newConsoleCmd() *cobra.Command {
	var configPath, flightsPath string
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Run the interactive control console with an in-process scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			cfg := config.Default()
			if configPath != "" {
				var err error
				if cfg, err = config.Load(configPath); err != nil {
					return err
				}
			}
			if flightsPath != "" {
				cfg.FlightsPath = flightsPath
			}

			runways, gates, err := cfg.Pools()
			if err != nil {
				return err
			}
			sc, err := cfg.Scheduler()
			if err != nil {
				return err
			}

			st, err := store.NewSQLiteStore(cfg.DBPath, logger)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate journal: %w", err)
			}

			out := &syncWriter{w: cmd.OutOrStdout()}
			sched := scheduler.New(runways, gates, sc, logger, scheduler.WithJournal(&notifier{Journal: st, out: out}))
			defer sched.Close()

			if cfg.FlightsPath != "" {
				n, err := source.Feed(ctx, cfg.FlightsPath, sched)
				if err != nil {
					fmt.Fprintf(out, "Error loading flights: %v\n", err)
				}
				fmt.Fprintf(out, "Loaded %d flights from %s.\n", n, cfg.FlightsPath)
			}

			if cfg.AutoDispatch > 0 {
				loop := scheduler.NewLoop(sched, scheduler.LoopConfig{PollInterval: cfg.AutoDispatch}, logger)
				loopCtx, cancel := context.WithCancel(ctx)
				defer cancel()
				go loop.Start(loopCtx)
			}

			return NewConsole(sched, cmd.InOrStdin(), out).Run(ctx)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "YAML config file")
	cmd.Flags().StringVar(&flightsPath, "flights", "", "Flight source to admit at startup (.csv, .yaml, .db)")
	return cmd
}

// Console is the operator loop over an in-process scheduler.
// Unit numbers typed by the operator are 1-based.
type Console struct {
	sched *scheduler.Scheduler
	in    *bufio.Scanner
	out   io.Writer
}

// NewConsole creates a console reading commands from in.
func NewConsole(sched *scheduler.Scheduler, in io.Reader, out io.Writer) *Console {
	return &Console{sched: sched, in: bufio.NewScanner(in), out: out}
}

// Run prints the menu and executes commands until exit or end of input.
func (c *Console) Run(ctx context.Context) error {
	fmt.Fprintln(c.out, "Airport Traffic Control")
	fmt.Fprintln(c.out, consoleHelp)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, ok := c.prompt("> ")
		if !ok {
			fmt.Fprintln(c.out)
			return c.in.Err()
		}
		if c.Exec(ctx, line) {
			return nil
		}
	}
}

// Exec runs one command line and reports whether the console should exit.
func (c *Console) Exec(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	reporter := c.sched.Reporter()
	switch name {
	case "1":
		c.scheduleInteractive(ctx)
	case "schedule-next", "schedule":
		c.scheduleNext(ctx, args)
	case "2", "list-queue", "queue":
		printQueue(c.out, reporter.Queue())
	case "3", "list-runways", "runways":
		printUnits(c.out, reporter.Runways())
	case "4", "list-gates", "gates":
		printUnits(c.out, reporter.Gates())
	case "list-flights", "flights":
		printFlights(c.out, reporter.InFlight())
	case "assign-gate", "gate":
		c.assignGate(ctx, args)
	case "help", "?":
		fmt.Fprintln(c.out, consoleHelp)
	case "5", "exit", "quit":
		fmt.Fprintln(c.out, "Exiting...")
		return true
	default:
		fmt.Fprintf(c.out, "Unknown command %q. Type help for the list.\n", fields[0])
	}
	return false
}

// scheduleInteractive shows the next flight and the runways, then asks for a number.
func (c *Console) scheduleInteractive(ctx context.Context) {
	queued := c.sched.Reporter().Queue()
	if len(queued) == 0 {
		fmt.Fprintln(c.out, "No flights in the queue.")
		return
	}
	sort.Slice(queued, func(i, j int) bool { return model.Less(&queued[i], &queued[j]) })
	next := queued[0]
	kind := "Normal"
	if next.Emergency {
		kind = "Emergency"
	}
	fmt.Fprintf(c.out, "Flight %s (%s %s) is ready to be scheduled.\n", next.ID, kind, next.Direction)
	fmt.Fprintln(c.out, "Runways (with availability):")
	printUnits(c.out, c.sched.Reporter().Runways())

	answer, ok := c.prompt("Select a runway by number (Enter for automatic): ")
	if !ok {
		return
	}
	n, ok := parseNumber(answer)
	if !ok {
		fmt.Fprintln(c.out, "Invalid input. Scheduling aborted.")
		return
	}
	if a := c.schedule(ctx, n); a != nil && a.Flight.ID != next.ID {
		fmt.Fprintf(c.out, "Note: flight %s was dispatched meanwhile; %s took its place.\n", next.ID, a.Flight.ID)
	}
}

func (c *Console) scheduleNext(ctx context.Context, args []string) {
	n := 0
	if len(args) > 0 {
		var ok bool
		if n, ok = parseNumber(args[0]); !ok {
			fmt.Fprintf(c.out, "Invalid runway number %q.\n", args[0])
			return
		}
	}
	c.schedule(ctx, n)
}

func (c *Console) schedule(ctx context.Context, runway int) *scheduler.Assignment {
	a, err := c.sched.ScheduleNext(ctx, policy.FromOneBased(runway))
	if err != nil {
		c.report(err)
		return nil
	}
	fmt.Fprintln(c.out, describeAssignment(a))
	return a
}

func (c *Console) assignGate(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(c.out, "Usage: assign-gate <flight> [gate number]")
		return
	}
	n := 0
	if len(args) > 1 {
		var ok bool
		if n, ok = parseNumber(args[1]); !ok {
			fmt.Fprintf(c.out, "Invalid gate number %q.\n", args[1])
			return
		}
	}
	a, err := c.sched.AssignGate(ctx, args[0], policy.FromOneBased(n))
	if err != nil {
		c.report(err)
		return
	}
	fmt.Fprintln(c.out, describeAssignment(a))
}

// report prints err for the operator. Nothing here ends the console.
func (c *Console) report(err error) {
	var (
		sel  *scheduler.SelectionError
		busy *model.UnitUnavailableError
	)
	switch {
	case errors.Is(err, model.ErrEmptyQueue):
		fmt.Fprintln(c.out, "No flights in the queue.")
	case errors.As(err, &sel):
		var outcome string
		switch sel.Outcome {
		case model.EventRequeued:
			outcome = "Flight returned to the queue."
		case model.EventDropped:
			outcome = "Flight dropped."
		case model.EventGatePending:
			outcome = "Flight is still waiting for a gate."
		}
		fmt.Fprintf(c.out, "Could not assign a %s to flight %s: %v. %s\n", sel.Kind, sel.FlightID, sel.Err, outcome)
	case errors.As(err, &busy) && busy.Index < 0:
		fmt.Fprintf(c.out, "All %ss are occupied. Flights stay in the queue.\n", busy.Kind)
	default:
		fmt.Fprintf(c.out, "Error: %v\n", err)
	}
}

func (c *Console) prompt(p string) (string, bool) {
	fmt.Fprint(c.out, p)
	if !c.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(c.in.Text()), true
}

// parseNumber accepts a 1-based unit number; empty means automatic (0).
func parseNumber(s string) (int, bool) {
	if s == "" {
		return 0, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// notifier journals movements and tells the operator about timed releases,
// which happen while the console is waiting for input.
type notifier struct {
	scheduler.Journal
	out io.Writer
}

func (n *notifier) RecordMovement(ctx context.Context, m *model.Movement) error {
	switch m.Event {
	case model.FlightStatusLanded.String(), model.FlightStatusDeparted.String():
		fmt.Fprintf(n.out, "\nFlight %s has %s. Runway %s is now free.\n", m.FlightID, m.Event, m.UnitID)
	case model.FlightStatusGateReleased.String():
		fmt.Fprintf(n.out, "\nFlight %s left Gate %s. Gate %s is now free.\n", m.FlightID, m.UnitID, m.UnitID)
	}
	return n.Journal.RecordMovement(ctx, m)
}

// syncWriter serializes writes from the console and from release timers.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
