// Command driftkit-demo wires a minimal single-step "echo" workflow
// (§8 scenario 1) behind an illustrative HTTP mux. It is not a durable
// transport binding, only local experimentation glue per SPEC_FULL.md §6.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	chatinmem "github.com/driftkit-ai/driftkit-framework-sub011/pkg/chat/inmem"

	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/chat"
	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/driftkit"
	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/schema"
	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/telemetry"
	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/tracing"
	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/workflow"
	workflowinmem "github.com/driftkit-ai/driftkit-framework-sub011/pkg/workflow/inmem"
)

// echoInput is the schema-registered input record for the "echo" workflow's
// only step: a single required string field.
type echoInput struct {
	Q string `schema:"name=q"`
}

func buildEchoGraph() *workflow.Graph {
	step := &workflow.StepDefinition{
		ID:          "echo",
		Description: "returns its input unchanged",
		Initial:     true,
		Executor: func(_ context.Context, input any) (workflow.StepResult, error) {
			in, _ := input.(chat.ChatRequest)
			text := ""
			for _, p := range in.Properties {
				if p.Name == "q" {
					text = p.Value
				}
			}
			return workflow.Complete(text), nil
		},
	}
	g, err := workflow.NewGraph("echo", []*workflow.StepDefinition{step})
	if err != nil {
		panic(err)
	}
	g.Description = "single-step echo workflow used for local smoke-testing"
	return g
}

func main() {
	logger := telemetry.NewNoopLogger()

	schemas := schema.NewRegistry()
	if _, err := schemas.GetSchema(echoInput{}); err != nil {
		log.Fatalf("driftkit-demo: register echo schema: %v", err)
	}

	g := buildEchoGraph()

	engine := workflow.NewEngine(workflow.EngineConfig{
		Repository: workflowinmem.NewContextRepository(),
		RetryStore: workflowinmem.NewRetryStateStore(),
		Schemas:    schemas,
		Logger:     logger,
	})
	engine.RegisterGraph(g)

	chatSvc := chat.New(chat.Config{
		Store:  chatinmem.New(),
		Engine: engine,
		Logger: logger,
	})

	app := driftkit.New(driftkit.Config{
		Chat:      chatSvc,
		Engine:    engine,
		Schemas:   schemas,
		Sink:      tracing.NewNoopSink(),
		Logger:    logger,
		Workflows: []*workflow.Graph{g},
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/chats/", func(w http.ResponseWriter, r *http.Request) {
		chatID := r.URL.Path[len("/chats/"):]
		var req chat.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp, err := app.ExecuteChat(r.Context(), chatID, req)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/workflows", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(app.ListWorkflows())
	})

	fmt.Println("driftkit-demo listening on :8080")
	log.Fatal(http.ListenAndServe(":8080", mux))
}
