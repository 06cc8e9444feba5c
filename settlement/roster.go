package settlement

import (
	"context"
	"fmt"
)

// Roster wraps the roster collaborator with the lookups the aggregators need.
type Roster struct {
	Store RosterStore
}

func NewRoster(store RosterStore) *Roster {
	return &Roster{Store: store}
}

// ActiveVehicles lists active vehicles of one machinery type, or all when mt is empty.
func (r *Roster) ActiveVehicles(ctx context.Context, mt MachineryType) ([]Vehicle, error) {
	vehicles, err := r.Store.ActiveVehicles(ctx, mt)
	if err != nil {
		return nil, fmt.Errorf("list active vehicles: %w", err)
	}
	return vehicles, nil
}

func (r *Roster) VehicleInfo(ctx context.Context, ref VehicleRef) (Vehicle, error) {
	v, err := r.Store.Vehicle(ctx, ref)
	if err != nil {
		return Vehicle{}, fmt.Errorf("lookup vehicle %s: %w", ref, err)
	}
	if v == nil {
		return Vehicle{}, fmt.Errorf("%w: %s", ErrVehicleNotFound, ref)
	}
	return *v, nil
}

// DriversForVehicle returns the assignments in effect on the given day.
// The store's result is filtered again so a loose implementation cannot leak
// assignments that ended before the day.
func (r *Roster) DriversForVehicle(ctx context.Context, ref VehicleRef, on Date) ([]DriverAssignment, error) {
	all, err := r.Store.DriverAssignments(ctx, ref, on)
	if err != nil {
		return nil, fmt.Errorf("lookup drivers for %s: %w", ref, err)
	}
	out := make([]DriverAssignment, 0, len(all))
	for _, a := range all {
		if a.Covers(on) {
			out = append(out, a)
		}
	}
	return out, nil
}

// MealStatus returns the person's meal status for the day. ok is false when
// the month has no attendance master or the person has no row for the day.
func (r *Roster) MealStatus(ctx context.Context, personID string, on Date) (status string, ok bool, err error) {
	master, err := r.Store.AttendanceMaster(ctx, on.YearMonth())
	if err != nil {
		return "", false, fmt.Errorf("lookup attendance master %s: %w", on.YearMonth(), err)
	}
	if master == nil {
		return "", false, nil
	}
	detail, err := r.Store.AttendanceDetail(ctx, master.ID, personID, on)
	if err != nil {
		return "", false, fmt.Errorf("lookup attendance for %s on %s: %w", personID, on, err)
	}
	if detail == nil || detail.MealStatus == "" {
		return "", false, nil
	}
	return detail.MealStatus, true, nil
}
