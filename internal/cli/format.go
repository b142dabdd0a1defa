package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/me/apron/internal/scheduler"
	"github.com/me/apron/pkg/model"
)

// printUnits lists units with their 1-based selection numbers.
func printUnits(w io.Writer, units []model.UnitStatus) {
	for _, u := range units {
		fmt.Fprintf(w, "%d. %s\n", u.Index+1, u)
	}
}

// printQueue lists waiting flights in the order they will be scheduled.
func printQueue(w io.Writer, flights []model.Flight) {
	if len(flights) == 0 {
		fmt.Fprintln(w, "No flights in the queue.")
		return
	}
	sort.Slice(flights, func(i, j int) bool { return model.Less(&flights[i], &flights[j]) })
	for _, f := range flights {
		fmt.Fprintf(w, "Flight %s - %s, Priority: %d, Emergency: %t\n",
			f.ID, strings.ToUpper(f.Direction.String()), f.Priority, f.Emergency)
	}
}

// printFlights renders the in-flight set as a table.
func printFlights(w io.Writer, flights []model.Flight) {
	if len(flights) == 0 {
		fmt.Fprintln(w, "No flights on runways or at gates.")
		return
	}
	fmt.Fprintf(w, "%-12s  %-10s  %-16s  %-8s  %s\n", "FLIGHT", "DIRECTION", "STATUS", "RUNWAY", "GATE")
	for _, f := range flights {
		fmt.Fprintf(w, "%-12s  %-10s  %-16s  %-8s  %s\n", f.ID, f.Direction, f.Status, dash(f.Runway), dash(f.Gate))
	}
}

func printMovements(w io.Writer, moves []model.Movement) {
	if len(moves) == 0 {
		fmt.Fprintln(w, "No movements recorded.")
		return
	}
	fmt.Fprintf(w, "%-30s  %-12s  %-16s  %-8s  %s\n", "TIME", "FLIGHT", "EVENT", "UNIT", "DETAIL")
	for _, m := range moves {
		fmt.Fprintf(w, "%-30s  %-12s  %-16s  %-8s  %s\n",
			m.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"), m.FlightID, m.Event, dash(m.UnitID), m.Detail)
	}
}

func describeAssignment(a *scheduler.Assignment) string {
	kind := "Runway"
	if a.Unit.Kind == model.ResourceGate {
		kind = "Gate"
	}
	return fmt.Sprintf("Flight %s assigned to %s %s until %s.",
		a.Flight.ID, kind, a.Unit.ID, a.ReleaseAt.Local().Format("15:04:05"))
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
