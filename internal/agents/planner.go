package agents

import (
	"context"
	"fmt"

	"dossier/internal/extract"
	"dossier/internal/llm"
	"dossier/internal/logging"
	"dossier/internal/state"
)

// Planner turns the user's request into an execution plan and a list of
// retrieval sub-queries.
type Planner struct {
	client   llm.Client
	settings Settings
}

// NewPlanner creates a Planner.
func NewPlanner(client llm.Client, s Settings) *Planner {
	return &Planner{client: client, settings: s}
}

func (p *Planner) Name() string { return state.StagePlanner }

func (p *Planner) Preview(st *state.State) string {
	return fmt.Sprintf("query=%q mode=%s", st.Query, st.Mode)
}

func (p *Planner) Execute(ctx context.Context, st *state.State) (Result, error) {
	user := fmt.Sprintf(plannerUserTemplate, st.Query, st.Mode)
	c, err := generate(ctx, p.client, p.settings.CallTimeout, plannerSystemPrompt, user, p.settings.PlannerTemperature)
	if err != nil {
		return Result{}, err
	}

	plan, queries := extract.ParsePlan(c.Text)
	logging.Planner("Plan ready: %d chars, %d sub-queries", len(plan), len(queries))
	if len(queries) == 0 {
		logging.PlannerDebug("No enumerated research queries in planner output")
	}

	return Result{
		Delta: state.Delta{
			Plan:       &plan,
			SubQueries: &queries,
		},
		Usage:  c.Usage(),
		Output: fmt.Sprintf("plan_length=%d query_count=%d", len(plan), len(queries)),
	}, nil
}
