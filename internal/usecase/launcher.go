package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"bytemomo/narwhal/internal/config"
	"bytemomo/narwhal/internal/dag"
	"bytemomo/narwhal/internal/domain"
	"bytemomo/narwhal/internal/flag"
	"bytemomo/narwhal/internal/memory"
	"bytemomo/narwhal/internal/mission"
	"bytemomo/narwhal/internal/operator"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// MissionLauncher assembles a fresh mission for every work item: its own
// state, its own memory backend and its own machine around the shared
// collaborators.
type MissionLauncher struct {
	Config    *config.Config
	Reasoner  domain.Reasoner
	Executor  domain.Executor
	API       domain.ChallengeAPI
	Enrichers []mission.Enricher
	Detector  *flag.Detector
	Log       *log.Entry
}

func (ml *MissionLauncher) Launch(ctx context.Context, item domain.WorkItem, attempt int) (*domain.MissionOutcome, error) {
	id := fmt.Sprintf("%s-%d-%s", item.Code, attempt, uuid.New().String()[:8])
	l := ml.logger().WithFields(log.Fields{
		"mission": id,
		"code":    item.Code,
	})

	store, closeStore, err := ml.openStore(id, l)
	if err != nil {
		return nil, err
	}
	defer closeStore()

	state := NewState(id, item)
	runner := ml.build(store, l)

	outcome, err := runner.Run(ctx, state)
	if err != nil {
		return nil, err
	}
	return &outcome, nil
}

// NewState seeds a mission state with the work item's targets and an opening
// user message naming the challenge.
func NewState(id string, item domain.WorkItem) *domain.MissionState {
	state := domain.NewMissionState(id, item.Code, item.Targets())

	var b strings.Builder
	fmt.Fprintf(&b, "Challenge %s", item.Code)
	if item.Difficulty != "" {
		fmt.Fprintf(&b, " (difficulty %s, %d points)", item.Difficulty, item.Points)
	}
	b.WriteString(".\nTargets:")
	if len(state.Targets) == 0 {
		b.WriteString(" none known")
	}
	for _, t := range state.Targets {
		b.WriteString(" " + t.Label())
	}
	b.WriteString("\nCapture the flag.")
	state.AppendMessage(domain.RoleUser, b.String())
	return state
}

func (ml *MissionLauncher) build(store *memory.Store, l *log.Entry) *mission.Runner {
	cfg := ml.Config

	var router mission.Router = &mission.LLMRouter{Reasoner: ml.Reasoner, Log: l}
	if cfg.Mission.Router == "findings" {
		router = &mission.FindingsRouter{Detector: ml.Detector}
	}

	agent := &operator.Agent{
		Reasoner:   ml.Reasoner,
		Executor:   ml.Executor,
		API:        ml.API,
		MaxActions: cfg.Mission.MaxActions,
		Timeout:    cfg.Executor.Timeout,
		Log:        l,
	}
	scheduler := &dag.Scheduler{
		Reasoner:     ml.Reasoner,
		Runner:       agent,
		Detector:     ml.Detector,
		MinOutputLen: cfg.Mission.MinOutputLen,
		Log:          l,
	}

	return &mission.Runner{
		Machine: &mission.Machine{
			Recon:    &mission.ReconPhase{Reasoner: ml.Reasoner, Enrichers: ml.Enrichers, Store: store, Log: l},
			Scout:    &mission.ScoutPhase{Reasoner: ml.Reasoner, Scheduler: scheduler, Store: store, Log: l},
			Router:   router,
			Verifier: &mission.Gate{Mode: cfg.VerificationMode(), API: ml.API, Log: l},
			Log:      l,
		},
		MaxSteps: cfg.Mission.MaxSteps,
		Log:      l,
	}
}

// openStore gives each mission a private backend. SQLite databases are kept
// on disk under memory.dir, one file per mission.
func (ml *MissionLauncher) openStore(id string, l *log.Entry) (*memory.Store, func(), error) {
	noop := func() {}
	switch ml.Config.Memory.Backend {
	case "none":
		return memory.NewStore(nil, l), noop, nil
	case "sqlite":
		if err := os.MkdirAll(ml.Config.Memory.Dir, 0o755); err != nil {
			return nil, noop, fmt.Errorf("create memory dir: %w", err)
		}
		db, err := memory.OpenSQLite(filepath.Join(ml.Config.Memory.Dir, id+".db"))
		if err != nil {
			return nil, noop, fmt.Errorf("open mission memory: %w", err)
		}
		return memory.NewStore(db, l), func() {
			if err := db.Close(); err != nil {
				l.WithError(err).Warn("Failed to close mission memory")
			}
		}, nil
	default:
		return memory.NewStore(memory.NewInMemory(), l), noop, nil
	}
}

func (ml *MissionLauncher) logger() *log.Entry {
	if ml.Log == nil {
		return log.NewEntry(log.StandardLogger())
	}
	return ml.Log
}
