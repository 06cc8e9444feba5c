// Package attendance creates the monthly attendance sheet that meal fees read.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/minefleet/settlement-engine/settlement"
)

// Store is the subset of settlement.Store the generator needs.
type Store interface {
	AttendanceMaster(ctx context.Context, ym settlement.YearMonth) (*settlement.AttendanceMaster, error)
	settlement.AttendanceStore
}

type Generator struct {
	Store Store
}

func NewGenerator(store Store) *Generator {
	return &Generator{Store: store}
}

// Skeleton builds a master in editing status and one row per person per
// calendar day, present with a normal meal.
func Skeleton(ym settlement.YearMonth, people []settlement.Person, masterID string) (settlement.AttendanceMaster, []settlement.AttendanceDetail) {
	master := settlement.AttendanceMaster{ID: masterID, YearMonth: ym, Status: settlement.AttendanceEditing}
	dates := ym.Dates()
	details := make([]settlement.AttendanceDetail, 0, len(people)*len(dates))
	for _, p := range people {
		for _, day := range dates {
			details = append(details, settlement.AttendanceDetail{
				MasterID:         masterID,
				PersonID:         p.ID,
				Date:             day,
				AttendanceStatus: settlement.AttendancePresent,
				MealStatus:       settlement.MealNormal,
			})
		}
	}
	return master, details
}

// Generate creates the month's sheet unless it already exists. created is
// false when the month was already there.
func (g *Generator) Generate(ctx context.Context, ym settlement.YearMonth) (created bool, err error) {
	existing, err := g.Store.AttendanceMaster(ctx, ym)
	if err != nil {
		return false, fmt.Errorf("lookup attendance master %s: %w", ym, err)
	}
	if existing != nil {
		log.Printf("[Attendance] Sheet for %s already exists", ym)
		return false, nil
	}

	people, err := g.Store.ActivePersonnel(ctx)
	if err != nil {
		return false, fmt.Errorf("list personnel: %w", err)
	}

	master, details := Skeleton(ym, people, uuid.NewString())
	if err := g.Store.CreateAttendance(ctx, master, details); err != nil {
		if errors.Is(err, settlement.ErrAlreadyRecorded) {
			return false, nil
		}
		return false, fmt.Errorf("create attendance %s: %w", ym, err)
	}
	log.Printf("[Attendance] Created sheet for %s: %d people, %d rows", ym, len(people), len(details))
	return true, nil
}
