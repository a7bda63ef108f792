/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic data
	for demos. Each scenario registers employees and books leave through the
	service, so every rule (balance, capacity, minimum stay) applies exactly
	as it would for real traffic.

AVAILABLE SCENARIOS:

	capacity-saturated: five captains approved on 2026-03-10, a sixth free
	                    to try the same day, and a first officer unaffected
	new-hire:           a freshly registered first officer with no approved
	                    leave, so the configured minimum-stay rule applies

USAGE VIA API (DEMO_SCENARIOS=true):

	GET  /api/admin/scenarios
	POST /api/admin/scenarios/load
	{"scenario_id": "capacity-saturated"}

NOTE:

	Scenarios use fixed employee IDs. Loading one twice fails with a
	conflict instead of duplicating data.

SEE ALSO:
  - handlers.go: Admin handlers
  - leave/service.go: AddLeave, RegisterEmployee
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "capacity-saturated",
		Name:        "Capacity Saturated",
		Description: "Five captains approved on 2026-03-10; a sixth captain cannot book that day",
	},
	{
		ID:          "new-hire",
		Name:        "New Hire",
		Description: "First officer without approved leave, subject to the minimum-stay rule",
	},
}

// scenarioActor loads scenarios with admin rights.
var scenarioActor = leave.Actor{UserID: "scenario-loader", Role: leave.RoleAdmin}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario loads a scenario by ID.
// POST /api/admin/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decodeAndValidate(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := LoadScenario(r.Context(), h.Service, req.ScenarioID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "scenario_id": req.ScenarioID})
}

// LoadScenario populates svc's store with the named scenario.
func LoadScenario(ctx context.Context, svc *leave.Service, id string) error {
	switch id {
	case "capacity-saturated":
		return loadCapacitySaturatedScenario(ctx, svc)
	case "new-hire":
		return loadNewHireScenario(ctx, svc)
	default:
		return generic.NotFound("Unknown scenario %q", id)
	}
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// loadCapacitySaturatedScenario: captains 1-5 hold approved leave over
// 9-11 March 2026, so 10 March is full for captains. Captain 6 and the first
// officer have untouched balances.
func loadCapacitySaturatedScenario(ctx context.Context, svc *leave.Service) error {
	const year = 2026
	start := generic.NewDate(year, 3, 9)
	end := generic.NewDate(year, 3, 11)

	for i := 1; i <= leave.PositionCapacity+1; i++ {
		id := fmt.Sprintf("demo-captain-%d", i)
		if _, err := svc.RegisterEmployee(ctx, scenarioActor, leave.RegisterInput{
			ID:            id,
			Name:          fmt.Sprintf("Captain %d", i),
			Email:         id + "@example.com",
			Position:      leave.PositionCaptain,
			Year:          year,
			DaysAllocated: 25,
		}); err != nil {
			return err
		}
		if i > leave.PositionCapacity {
			continue
		}
		if _, err := svc.AddLeave(ctx, scenarioActor, leave.AddInput{
			UserID: id,
			Start:  start,
			End:    end,
			Reason: "Scheduled rest block",
		}); err != nil {
			return err
		}
	}

	_, err := svc.RegisterEmployee(ctx, scenarioActor, leave.RegisterInput{
		ID:            "demo-first-officer-1",
		Name:          "First Officer 1",
		Email:         "demo-first-officer-1@example.com",
		Position:      leave.PositionFirstOfficer,
		Year:          year,
		DaysAllocated: 25,
	})
	return err
}

// loadNewHireScenario registers one first officer for the current year.
func loadNewHireScenario(ctx context.Context, svc *leave.Service) error {
	_, err := svc.RegisterEmployee(ctx, scenarioActor, leave.RegisterInput{
		ID:            "demo-new-hire",
		Name:          "New Hire",
		Email:         "demo-new-hire@example.com",
		Position:      leave.PositionFirstOfficer,
		DaysAllocated: 10,
	})
	return err
}
