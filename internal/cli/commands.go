package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/me/apron/pkg/model"
)

func newQueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "List waiting flights in scheduling order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flights, err := client.Queue(cmd.Context())
			if err != nil {
				return fmt.Errorf("list queue: %w", err)
			}
			printQueue(cmd.OutOrStdout(), flights)
			return nil
		},
	}
}

func newAdmitCmd() *cobra.Command {
	var emergency bool
	cmd := &cobra.Command{
		Use:   "admit <flight_id> <arrival|departure> <priority>",
		Short: "Admit a flight into the queue",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			priority, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("priority %q is not an integer", args[2])
			}
			f, err := client.Admit(cmd.Context(), model.AdmitRequest{
				ID:        args[0],
				Direction: args[1],
				Priority:  priority,
				Emergency: emergency,
			})
			if err != nil {
				return fmt.Errorf("admit: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Flight %s admitted (%s, priority %d).\n", f.ID, f.Direction, f.Priority)
			return nil
		},
	}
	cmd.Flags().BoolVar(&emergency, "emergency", false, "Emergency: jumps ahead of every regular flight")
	return cmd
}

func newScheduleCmd() *cobra.Command {
	var runway int
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Give the highest-priority waiting flight a runway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := client.Schedule(cmd.Context(), runway)
			if err != nil {
				return fmt.Errorf("schedule: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), describeAssignment(a))
			return nil
		},
	}
	cmd.Flags().IntVar(&runway, "runway", 0, "Runway number (1-based); 0 picks automatically")
	return cmd
}

func newAssignGateCmd() *cobra.Command {
	var gate int
	cmd := &cobra.Command{
		Use:   "assign-gate <flight_id>",
		Short: "Assign a gate to a landed arrival",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := client.AssignGate(cmd.Context(), args[0], gate)
			if err != nil {
				return fmt.Errorf("assign gate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), describeAssignment(a))
			return nil
		},
	}
	cmd.Flags().IntVar(&gate, "gate", 0, "Gate number (1-based); 0 picks automatically")
	return cmd
}

func newRunwaysCmd() *cobra.Command {
	return newUnitsCmd(model.ResourceRunway, "Show runway availability")
}

func newGatesCmd() *cobra.Command {
	return newUnitsCmd(model.ResourceGate, "Show gate availability")
}

func newUnitsCmd(kind model.ResourceKind, short string) *cobra.Command {
	return &cobra.Command{
		Use:   kind.String() + "s",
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			units, err := client.Units(cmd.Context(), kind)
			if err != nil {
				return fmt.Errorf("list %ss: %w", kind, err)
			}
			printUnits(cmd.OutOrStdout(), units)
			return nil
		},
	}
}

func newFlightsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flights",
		Short: "List flights holding or waiting for a runway or gate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flights, err := client.Flights(cmd.Context())
			if err != nil {
				return fmt.Errorf("list flights: %w", err)
			}
			printFlights(cmd.OutOrStdout(), flights)
			return nil
		},
	}
}

func newMovementsCmd() *cobra.Command {
	var (
		flightID string
		limit    int
		offset   int
	)
	cmd := &cobra.Command{
		Use:   "movements",
		Short: "Show the movement journal, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			moves, pg, err := client.Movements(cmd.Context(), model.ListOptions{Limit: limit, Offset: offset, FlightID: flightID})
			if err != nil {
				return fmt.Errorf("list movements: %w", err)
			}
			out := cmd.OutOrStdout()
			printMovements(out, moves)
			if pg != nil && pg.HasMore {
				fmt.Fprintf(out, "\n(%d of %d shown)\n", len(moves), pg.Total)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flightID, "flight", "", "Only this flight's movements")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum movements to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "Movements to skip")
	return cmd
}
