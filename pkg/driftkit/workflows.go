package driftkit

import (
	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/schema"
	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/workflow"
)

// WorkflowSummary is the metadata projection returned by ListWorkflows.
type WorkflowSummary struct {
	WorkflowID  string
	Description string
	StepCount   int
}

// StepDetail is the metadata projection of one StepDefinition returned by
// GetWorkflowDetails.
type StepDetail struct {
	StepID             string
	Description        string
	UserInputRequired  bool
	InputSchemaID      string
	OutputSchemaID     string
	NextStepIDs        []string
	InvocationsLimit   int
	OnInvocationsLimit workflow.OnInvocationsLimit
	Initial            bool
	Terminal           bool
}

// WorkflowDetails is the full metadata projection of a Graph returned by
// GetWorkflowDetails.
type WorkflowDetails struct {
	WorkflowID  string
	Description string
	InitialID   string
	Steps       []StepDetail
}

// ListWorkflows is the `listWorkflows` operation of §6's table.
func (a *App) ListWorkflows() []WorkflowSummary {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]WorkflowSummary, 0, len(a.workflows))
	for _, g := range a.workflows {
		out = append(out, WorkflowSummary{
			WorkflowID:  g.WorkflowID,
			Description: g.Description,
			StepCount:   len(g.Steps),
		})
	}
	return out
}

// GetWorkflowDetails is the `getWorkflowDetails` operation of §6's table.
func (a *App) GetWorkflowDetails(workflowID string) (WorkflowDetails, error) {
	g, err := a.graph(workflowID)
	if err != nil {
		return WorkflowDetails{}, err
	}
	details := WorkflowDetails{
		WorkflowID:  g.WorkflowID,
		Description: g.Description,
		InitialID:   g.InitialID,
		Steps:       make([]StepDetail, 0, len(g.Steps)),
	}
	for _, s := range g.Steps {
		details.Steps = append(details.Steps, StepDetail{
			StepID:             s.ID,
			Description:        s.Description,
			UserInputRequired:  s.UserInputRequired,
			InputSchemaID:      s.InputSchemaID,
			OutputSchemaID:     s.OutputSchemaID,
			NextStepIDs:        s.NextStepIDs,
			InvocationsLimit:   s.InvocationsLimit,
			OnInvocationsLimit: s.OnInvocationsLimit,
			Initial:            s.Initial,
			Terminal:           s.Terminal,
		})
	}
	return details, nil
}

// GetInitialSchema is the `getInitialSchema` operation of §6's table: it
// returns the Schema bound to workflowID's initial step's input, if the
// initial step declares one and it is registered with a.schemas.
func (a *App) GetInitialSchema(workflowID string) (*schema.Schema, error) {
	g, err := a.graph(workflowID)
	if err != nil {
		return nil, err
	}
	initial, ok := g.Steps[g.InitialID]
	if !ok || initial.InputSchemaID == "" {
		return nil, nil
	}
	return a.schemas.SchemaStructByID(initial.InputSchemaID)
}

// GetWorkflowSchemas is the `getWorkflowSchemas` operation of §6's table: it
// returns every distinct Schema referenced by workflowID's steps (input and
// output), skipping steps that reference no registered schema. Steps are
// walked in map order, so the order of the returned schemas is not defined.
func (a *App) GetWorkflowSchemas(workflowID string) ([]*schema.Schema, error) {
	g, err := a.graph(workflowID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []*schema.Schema
	add := func(schemaID string) {
		if schemaID == "" || seen[schemaID] {
			return
		}
		sch, err := a.schemas.SchemaStructByID(schemaID)
		if err != nil || sch == nil {
			return
		}
		seen[schemaID] = true
		out = append(out, sch)
	}
	for _, s := range g.Steps {
		add(s.InputSchemaID)
		add(s.OutputSchemaID)
	}
	return out, nil
}

func (a *App) graph(workflowID string) (*workflow.Graph, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	g, ok := a.workflows[workflowID]
	if !ok {
		return nil, ErrUnknownWorkflow
	}
	return g, nil
}
