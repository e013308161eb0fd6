package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fleetd/pkg/types"
)

// Completer issues one non-streaming completion. Satisfied by the request
// router.
type Completer interface {
	Complete(ctx context.Context, req types.ChatCompletionRequest) (*types.ChatCompletionResponse, error)
}

// Recorder persists finished runs. Optional.
type Recorder interface {
	Save(ctx context.Context, task string, run types.AgentRunResponse) error
}

// Terminal reasons of a run.
const (
	ReasonCompleted          = "completed"
	ReasonMaxSteps           = "max_steps_exceeded"
	ReasonMalformedExhausted = "malformed_response_exhausted"
	ReasonToolErrorFatal     = "tool_error_fatal"
)

// Defaults applied when the corresponding Config fields are unset.
const (
	defaultMaxSteps    = 10
	defaultRetryBudget = 3
)

// Config encapsulates all tunables for Executor construction.
type Config struct {
	Completer Completer
	Sandbox   Sandbox
	// Recorder persists finished runs; nil disables persistence.
	Recorder Recorder
	// Model is the completion alias used when a run does not name one.
	Model string
	// MaxSteps is the step budget applied when a run does not set one.
	MaxSteps int
	// RetryBudget bounds corrective retries after unusable replies; the
	// budget+1-th offense terminates the run.
	RetryBudget int
	Logger      *zerolog.Logger
}

// Executor runs bounded tool loops. Safe for concurrent use; each run keeps
// all mutable state on its own stack.
type Executor struct {
	completer   Completer
	sandbox     Sandbox
	recorder    Recorder
	model       string
	maxSteps    int
	retryBudget int
	log         zerolog.Logger
}

// New constructs an Executor from Config and applies defaults for unset
// fields.
func New(cfg Config) *Executor {
	e := &Executor{
		completer:   cfg.Completer,
		sandbox:     cfg.Sandbox,
		recorder:    cfg.Recorder,
		model:       cfg.Model,
		maxSteps:    cfg.MaxSteps,
		retryBudget: cfg.RetryBudget,
		log:         zerolog.Nop(),
	}
	if cfg.Logger != nil {
		e.log = cfg.Logger.With().Str("component", "agent").Logger()
	}
	if e.maxSteps <= 0 {
		e.maxSteps = defaultMaxSteps
	}
	if e.retryBudget <= 0 {
		e.retryBudget = defaultRetryBudget
	}
	return e
}

// Run executes one bounded tool loop and returns its terminal record. An
// error is returned only when the run could not proceed at all: a working
// directory outside the sandbox root, a completion transport failure, or a
// canceled context. Every other outcome is a response with a terminal
// reason.
func (e *Executor) Run(ctx context.Context, req types.AgentRunRequest) (*types.AgentRunResponse, error) {
	maxSteps := req.MaxSteps
	if maxSteps <= 0 {
		maxSteps = e.maxSteps
	}
	model := req.Model
	if model == "" {
		model = e.model
	}
	workDir, err := containedPath(e.sandbox.Root(), e.sandbox.Root(), req.WorkingDirectory)
	if err != nil {
		return nil, err
	}

	run := &types.AgentRunResponse{ID: uuid.NewString(), Steps: []types.AgentStep{}}
	log := e.log.With().Str("run_id", run.ID).Logger()
	log.Info().Str("task", req.Task).Int("max_steps", maxSteps).Msg("run started")

	retries := 0
	var notes []string
	strike := func(reason error) bool {
		retries++
		log.Debug().Err(reason).Int("retries", retries).Msg("unusable reply")
		if retries > e.retryBudget {
			return false
		}
		notes = append(notes, reason.Error())
		return true
	}

	for len(run.Steps) < maxSteps {
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
		resp, cerr := e.completer.Complete(ctx, types.ChatCompletionRequest{
			Model:    model,
			Messages: buildMessages(req.Task, workDir, run.Steps, notes),
		})
		if cerr != nil {
			return nil, cerr
		}
		var text string
		if len(resp.Choices) > 0 {
			text = resp.Choices[0].Message.Content
		}
		prop, perr := parseProposal(text)
		if perr != nil {
			if !strike(perr) {
				return e.finish(ctx, req.Task, run, ReasonMalformedExhausted, "", log), nil
			}
			continue
		}

		if prop.Tool == toolTaskComplete {
			var args taskCompleteArgs
			if derr := decodeArgs(prop.Tool, prop.Args, &args); derr != nil {
				if !strike(derr) {
					return e.finish(ctx, req.Task, run, ReasonMalformedExhausted, "", log), nil
				}
				continue
			}
			final := args.FinalAnswer
			if final == "" {
				final = "task completed"
			}
			appendStep(run, prop, final, true)
			return e.finish(ctx, req.Task, run, ReasonCompleted, final, log), nil
		}

		result, terr := e.execute(ctx, workDir, prop)
		switch {
		case terr == nil:
			appendStep(run, prop, result, true)
			notes = nil
		case IsMalformedResponse(terr):
			if !strike(terr) {
				return e.finish(ctx, req.Task, run, ReasonMalformedExhausted, "", log), nil
			}
		case IsPathViolation(terr):
			// refusal is recorded as a step; the tool never ran
			appendStep(run, prop, terr.Error(), false)
			notes = nil
			if retries++; retries > e.retryBudget {
				return e.finish(ctx, req.Task, run, ReasonMalformedExhausted, "", log), nil
			}
		case IsFatalToolError(terr):
			appendStep(run, prop, terr.Error(), false)
			return e.finish(ctx, req.Task, run, ReasonToolErrorFatal, "", log), nil
		default:
			// recoverable tool failure: recorded, the model sees it next turn
			appendStep(run, prop, terr.Error(), false)
			notes = nil
		}
	}
	return e.finish(ctx, req.Task, run, ReasonMaxSteps, "", log), nil
}

// execute validates the proposal's arguments and dispatches to the sandbox.
func (e *Executor) execute(ctx context.Context, workDir string, prop proposal) (string, error) {
	root := e.sandbox.Root()
	switch prop.Tool {
	case toolReadFile:
		var a readFileArgs
		if err := decodeArgs(prop.Tool, prop.Args, &a); err != nil {
			return "", err
		}
		if a.Path == "" {
			return "", ErrMalformedResponse("read_file requires args.path")
		}
		p, err := containedPath(root, workDir, a.Path)
		if err != nil {
			return "", err
		}
		return e.sandbox.ReadFile(ctx, p)

	case toolWriteFile:
		var a writeFileArgs
		if err := decodeArgs(prop.Tool, prop.Args, &a); err != nil {
			return "", err
		}
		if a.Path == "" {
			return "", ErrMalformedResponse("write_file requires args.path")
		}
		p, err := containedPath(root, workDir, a.Path)
		if err != nil {
			return "", err
		}
		return e.sandbox.WriteFile(ctx, p, a.Content)

	case toolEditFile:
		var a editFileArgs
		if err := decodeArgs(prop.Tool, prop.Args, &a); err != nil {
			return "", err
		}
		if a.Path == "" || a.OldText == "" {
			return "", ErrMalformedResponse("edit_file requires args.path and args.old_text")
		}
		p, err := containedPath(root, workDir, a.Path)
		if err != nil {
			return "", err
		}
		return e.sandbox.EditFile(ctx, p, a.OldText, a.NewText)

	case toolRunShell:
		var a runShellArgs
		if err := decodeArgs(prop.Tool, prop.Args, &a); err != nil {
			return "", err
		}
		if a.Command == "" {
			return "", ErrMalformedResponse("run_shell requires args.command")
		}
		return e.sandbox.RunShell(ctx, workDir, a.Command)

	case toolSearchFiles:
		var a searchFilesArgs
		if err := decodeArgs(prop.Tool, prop.Args, &a); err != nil {
			return "", err
		}
		if a.Pattern == "" {
			return "", ErrMalformedResponse("search_files requires args.pattern")
		}
		p, err := containedPath(root, workDir, a.Path)
		if err != nil {
			return "", err
		}
		return e.sandbox.SearchFiles(ctx, p, a.Pattern)

	case toolListDirectory:
		var a listDirectoryArgs
		if err := decodeArgs(prop.Tool, prop.Args, &a); err != nil {
			return "", err
		}
		p, err := containedPath(root, workDir, a.Path)
		if err != nil {
			return "", err
		}
		return e.sandbox.ListDirectory(ctx, p)

	default:
		return "", ErrMalformedResponse(fmt.Sprintf("unknown tool %q", prop.Tool))
	}
}

func (e *Executor) finish(ctx context.Context, task string, run *types.AgentRunResponse, reason, final string, log zerolog.Logger) *types.AgentRunResponse {
	run.TerminatedReason = reason
	run.Success = reason == ReasonCompleted
	run.FinalAnswer = final
	run.TotalSteps = len(run.Steps)
	log.Info().Str("reason", reason).Int("steps", run.TotalSteps).Bool("success", run.Success).Msg("run finished")
	if e.recorder != nil {
		if err := e.recorder.Save(ctx, task, *run); err != nil {
			log.Warn().Err(err).Msg("run log save failed")
		}
	}
	return run
}

func appendStep(run *types.AgentRunResponse, prop proposal, result string, ok bool) {
	run.Steps = append(run.Steps, types.AgentStep{
		StepNumber: len(run.Steps) + 1,
		Tool:       prop.Tool,
		Args:       prop.Args,
		Result:     result,
		OK:         ok,
		Timestamp:  time.Now().Unix(),
	})
}
