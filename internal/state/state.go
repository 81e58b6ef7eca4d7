// Package state persists the outcome of past resolutions so a build
// orchestrator can tell which modules changed since the last run
package state

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zakazane/modrules/internal/engine"
	"github.com/zakazane/modrules/pkg/logger"
	"github.com/zakazane/modrules/pkg/types"
	"github.com/zakazane/modrules/pkg/utils"
	"github.com/zakazane/modrules/pkg/validation"
)

// ErrInvalidModuleName is returned for module names that cannot be used as
// a state file name
var ErrInvalidModuleName = errors.New("invalid module name")

// Status is the outcome of the last resolution of a module
type Status string

const (
	StatusResolved Status = "resolved"
	StatusFailed   Status = "failed"
)

// ChangeKind describes how a module's resolved config compares with the
// previous run for the same build context
type ChangeKind string

const (
	ChangeNew       ChangeKind = "new"
	ChangeChanged   ChangeKind = "changed"
	ChangeUnchanged ChangeKind = "unchanged"
	ChangeFailed    ChangeKind = "failed"
)

// Change reports the comparison for one module
type Change struct {
	Module string
	Kind   ChangeKind
}

// ModuleState is the persistent state of one module
type ModuleState struct {
	Module       string             `json:"module"`
	Status       Status             `json:"status"`
	LastRunID    string             `json:"lastRunId"`
	LastContext  types.BuildContext `json:"lastContext"`
	LastResolved time.Time          `json:"lastResolved"`
	ResolveCount int                `json:"resolveCount"`
	FailureCount int                `json:"failureCount"`
	LastError    string             `json:"lastError,omitempty"`
	// Fingerprints maps a build context key to the hash of the config
	// resolved for it
	Fingerprints map[string]string `json:"fingerprints,omitempty"`
}

// Manager reads and writes module state files under
// <projectRoot>/.modrules/state
type Manager struct {
	stateDir string
	logger   logger.Logger
	mu       sync.Mutex
}

// NewManager creates a new state manager
func NewManager(projectRoot string, log logger.Logger) *Manager {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Manager{
		stateDir: filepath.Join(projectRoot, ".modrules", "state"),
		logger:   log,
	}
}

// Dir returns the state directory
func (sm *Manager) Dir() string {
	return sm.stateDir
}

// ContextKey identifies a build context in fingerprint maps
func ContextKey(ctx types.BuildContext) string {
	kind := "runtime"
	if ctx.IsEditorBuild {
		kind = "editor"
	}
	return fmt.Sprintf("%s-%s", kind, ctx.HostVersion)
}

// Fingerprint hashes a resolved config. Map keys are encoded in sorted
// order, so equal configs hash equally.
func Fingerprint(cfg *types.ResolvedModuleConfig) (string, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Record stores the outcome of every module in report and returns, in
// report order, how each module compares with its previous run
func (sm *Manager) Record(report *engine.Report) ([]Change, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	for _, res := range report.Results {
		if err := checkModuleName(res.Module); err != nil {
			return nil, err
		}
	}

	key := ContextKey(report.Context)
	changes := make([]Change, 0, len(report.Results))

	for _, res := range report.Results {
		st, err := sm.loadStateFile(res.Module)
		if err != nil {
			if !os.IsNotExist(err) {
				sm.logger.Warn("Discarding unreadable state file",
					logger.WithField("module", res.Module),
					logger.WithField("error", err))
			}
			st = &ModuleState{Module: res.Module}
		}
		if st.Fingerprints == nil {
			st.Fingerprints = make(map[string]string)
		}

		st.LastRunID = report.RunID
		st.LastContext = report.Context
		st.LastResolved = report.StartedAt

		change := Change{Module: res.Module}
		if res.Err != nil {
			st.Status = StatusFailed
			st.FailureCount++
			st.LastError = res.Err.Error()
			change.Kind = ChangeFailed
		} else {
			fp, err := Fingerprint(res.Config)
			if err != nil {
				return nil, err
			}
			previous, seen := st.Fingerprints[key]
			switch {
			case !seen:
				change.Kind = ChangeNew
			case previous != fp:
				change.Kind = ChangeChanged
			default:
				change.Kind = ChangeUnchanged
			}
			st.Status = StatusResolved
			st.ResolveCount++
			st.LastError = ""
			st.Fingerprints[key] = fp
		}

		if err := sm.saveStateFile(st); err != nil {
			return nil, err
		}
		changes = append(changes, change)
	}

	return changes, nil
}

// Read reads the state of one module
func (sm *Manager) Read(module string) (*ModuleState, error) {
	if err := checkModuleName(module); err != nil {
		return nil, err
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.loadStateFile(module)
}

// Discover returns the state of every module that has a state file, sorted
// by module name
func (sm *Manager) Discover() ([]*ModuleState, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	files, err := os.ReadDir(sm.stateDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read state directory: %w", err)
	}

	var states []*ModuleState
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}

		module := strings.TrimSuffix(file.Name(), ".json")
		if checkModuleName(module) != nil {
			continue
		}
		st, err := sm.loadStateFile(module)
		if err != nil {
			sm.logger.Warn("Failed to load state file",
				logger.WithField("module", module),
				logger.WithField("error", err))
			continue
		}
		states = append(states, st)
	}

	sort.Slice(states, func(i, j int) bool { return states[i].Module < states[j].Module })
	return states, nil
}

// Remove deletes the state of one module
func (sm *Manager) Remove(module string) error {
	if err := checkModuleName(module); err != nil {
		return err
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if err := os.Remove(sm.stateFilePath(module)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove state file: %w", err)
	}
	return nil
}

func checkModuleName(module string) error {
	if !validation.IsModuleName(module) {
		return fmt.Errorf("%w: %q", ErrInvalidModuleName, module)
	}
	return nil
}

// stateFilePath expects a name accepted by checkModuleName
func (sm *Manager) stateFilePath(module string) string {
	return filepath.Join(sm.stateDir, module+".json")
}

func (sm *Manager) loadStateFile(module string) (*ModuleState, error) {
	data, err := os.ReadFile(sm.stateFilePath(module))
	if err != nil {
		return nil, err
	}

	var st ModuleState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	return &st, nil
}

func (sm *Manager) saveStateFile(st *ModuleState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := utils.WriteFileAtomic(sm.stateFilePath(st.Module), data, 0o644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}
