package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oakbuild/foreman/internal/config"
	"github.com/oakbuild/foreman/internal/engine"
	"github.com/oakbuild/foreman/internal/events"
	"github.com/oakbuild/foreman/internal/persistence"
	"github.com/oakbuild/foreman/internal/plan"
	"github.com/oakbuild/foreman/internal/snapshot"
	"github.com/oakbuild/foreman/internal/worker"
)

func main() {
	// Signal-aware context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	store, err := persistence.NewSQLiteStore(ctx, cfg.DatabasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening task store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	// An optional task-file argument seeds the store before the run.
	if len(os.Args) > 1 {
		records, err := readTaskFile(os.Args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading task file: %v\n", err)
			os.Exit(1)
		}
		if err := store.SaveNodes(ctx, records); err != nil {
			fmt.Fprintf(os.Stderr, "Error seeding task store: %v\n", err)
			os.Exit(1)
		}
	}

	records, err := store.LoadNodes(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading tasks: %v\n", err)
		os.Exit(1)
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stderr, "No tasks loaded. Provide a task file: foreman tasks.json")
		os.Exit(1)
	}

	nodes, err := snapshot.Decode(records)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding tasks: %v\n", err)
		os.Exit(1)
	}

	eng := engine.New(engine.Config{
		AuditPasses:      cfg.Ceilings.AuditPasses,
		TestPasses:       cfg.Ceilings.TestPasses,
		FinalAuditPasses: cfg.Ceilings.FinalAuditPasses,
		ContextWindow:    cfg.ContextWindow,
	}, nil)

	count, err := eng.Load(nodes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Task tree rejected: %v\n", err)
		os.Exit(1)
	}
	log.Printf("Loaded %d nodes", count)

	bus := events.NewBus()
	defer bus.Close()

	if code := run(ctx, cfg, eng, store, bus); code != 0 {
		os.Exit(code)
	}
}

// run drives the engine: one job at a time, streaming worker output in
// and persisting a snapshot after every finished job.
func run(ctx context.Context, cfg *config.Config, eng *engine.Engine, store persistence.Store, bus *events.Bus) int {
	breakers := worker.NewBreakerRegistry()
	retryCfg := worker.DefaultRetryConfig()

	eng.StartExecution()

	for {
		job := eng.StartNextJob()
		if job == nil {
			break
		}

		started := time.Now()
		bus.Publish(events.TopicJob, events.JobStartedEvent{
			ID:        job.NodeID,
			TaskID:    job.TaskID,
			TaskTitle: job.TaskTitle,
			Role:      job.Role.String(),
			Timestamp: started,
		})
		log.Printf("%s on %q", job.Role, job.TaskTitle)

		onLine := func(line string) {
			if err := eng.AppendActiveOutput(line); err != nil {
				log.Printf("WARNING: dropped output line: %v", err)
			}
			bus.Publish(events.TopicJob, events.JobOutputEvent{
				ID:        job.NodeID,
				Line:      line,
				Timestamp: time.Now(),
			})
		}

		report, err := execute(ctx, cfg, store, breakers, retryCfg, job, onLine)
		if err != nil {
			log.Printf("WARNING: worker invocation for %q failed: %v", job.TaskTitle, err)
		}

		msgs, err := eng.FinishActiveJob(report.Success, report.ExitCode)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finishing job: %v\n", err)
			return 1
		}
		for _, msg := range msgs {
			fmt.Println(msg)
		}

		bus.Publish(events.TopicJob, events.JobFinishedEvent{
			ID:        job.NodeID,
			Success:   report.Success,
			ExitCode:  report.ExitCode,
			Messages:  msgs,
			Duration:  time.Since(started),
			Timestamp: time.Now(),
		})

		if err := store.SaveNodes(ctx, snapshot.Encode(eng.Graph())); err != nil {
			log.Printf("WARNING: failed to persist snapshot: %v", err)
		}

		for _, failure := range eng.DrainFailures() {
			if err := store.SaveFailure(ctx, failure); err != nil {
				log.Printf("WARNING: failed to persist workflow failure: %v", err)
			}
			bus.Publish(events.TopicRun, events.FailureRecordedEvent{Failure: failure, Timestamp: time.Now()})
			fmt.Printf("Workflow failure (%s) on %q: %d attempts, %s\n",
				failure.Kind, failure.TaskTitle, failure.Attempts, failure.Action)
		}

		if ctx.Err() != nil {
			log.Println("Shutdown signal received, stopping after active job")
			return 1
		}
	}

	clean := allDone(eng.Graph())
	bus.Publish(events.TopicRun, events.RunCompletedEvent{Clean: clean, Timestamp: time.Now()})
	if !clean {
		fmt.Println("Run ended with unresolved work; see recorded workflow failures")
		return 1
	}
	return 0
}

// execute dispatches a job to the matching worker. A branch sticks with
// the worker type it started under even if the config changed mid-run;
// the binding is persisted per branch correlation key.
func execute(ctx context.Context, cfg *config.Config, store persistence.Store, breakers *worker.BreakerRegistry, retryCfg worker.RetryConfig, job *engine.Job, onLine func(string)) (worker.Report, error) {
	if job.Kind == engine.JobTest {
		tc := &worker.TestCommand{Command: cfg.TestCommand}
		return tc.Run(ctx, onLine)
	}

	role := job.Role.String()
	bindingKey := job.ParentContextKey + "/" + role
	if prev, err := store.GetWorkerBinding(ctx, bindingKey); err == nil && prev != "" {
		role = prev
	}
	wcfg, ok := cfg.Workers[role]
	if !ok {
		return worker.Report{Success: false, ExitCode: 1, Lines: []string{
			fmt.Sprintf("no worker configured for role %q", role),
		}}, nil
	}

	agent, err := worker.NewAgent(worker.Config{Command: wcfg.Command, Args: wcfg.Args})
	if err != nil {
		return worker.Report{Success: false, ExitCode: 1}, err
	}

	if err := store.SaveWorkerBinding(ctx, bindingKey, role); err != nil {
		log.Printf("WARNING: failed to persist worker binding: %v", err)
	}

	return worker.RunWithRetry(ctx, breakers.Get(role), retryCfg, func() (worker.Report, error) {
		return agent.Run(ctx, job.Prompt, onLine)
	})
}

func allDone(g *plan.Graph) bool {
	for _, node := range g.Children("") {
		if node.Status != plan.StatusDone {
			return false
		}
	}
	return true
}

func readTaskFile(path string) ([]snapshot.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var records []snapshot.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return records, nil
}
