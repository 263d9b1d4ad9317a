// Package manifest records what a pack run delivered.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/wyattjoh/next-dev-utils/internal/config/version"
	"github.com/wyattjoh/next-dev-utils/internal/multitarget"
	"github.com/wyattjoh/next-dev-utils/internal/pack"
	"github.com/wyattjoh/next-dev-utils/internal/utils/logger"
	"github.com/wyattjoh/next-dev-utils/internal/utils/security"
)

const SchemaVersion = "1"

// Artifact is one delivered package archive.
type Artifact struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	File      string `json:"file"`
	Size      int64  `json:"size"`
	Digest    string `json:"digest"`
	Algorithm string `json:"algorithm"`
	URL       string `json:"url"`
	Decision  string `json:"decision,omitempty"`
}

// Target is the outcome of one native platform package.
type Target struct {
	Platform string    `json:"platform"`
	Package  string    `json:"package,omitempty"`
	Status   string    `json:"status"`
	Artifact *Artifact `json:"artifact,omitempty"`
	Error    string    `json:"error,omitempty"`
}

type Manifest struct {
	SchemaVersion string    `json:"schema_version"`
	RunID         string    `json:"run_id"`
	Tool          string    `json:"tool"`
	ToolVersion   string    `json:"tool_version"`
	CreatedAt     string    `json:"created_at"`
	Mode          string    `json:"mode"`
	Artifact      *Artifact `json:"artifact,omitempty"`
	Targets       []Target  `json:"targets,omitempty"`
}

// FromResult converts a pack result. Nil in, nil out.
func FromResult(res *pack.Result, mode pack.Mode) *Artifact {
	if res == nil || res.Artifact == nil {
		return nil
	}
	a := &Artifact{
		Name:      res.Artifact.Name,
		Version:   res.Artifact.Version,
		File:      res.Artifact.Filename,
		Size:      res.Size,
		Digest:    res.Digest,
		Algorithm: res.Algorithm,
		URL:       res.URL,
	}
	if mode == pack.ModeUpload {
		a.Decision = res.Decision.String()
	}
	return a
}

// New builds a manifest for a run. An empty runID gets a fresh one. targets
// may be nil for single package runs.
func New(runID string, mode pack.Mode, main *pack.Result, targets *multitarget.Result) *Manifest {
	if runID == "" {
		runID = uuid.New().String()
	}
	m := &Manifest{
		SchemaVersion: SchemaVersion,
		RunID:         runID,
		Tool:          version.Toolname,
		ToolVersion:   version.Version,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
		Mode:          mode.String(),
		Artifact:      FromResult(main, mode),
	}
	if targets == nil {
		return m
	}

	var all []multitarget.TargetResult
	all = append(all, targets.Successful...)
	all = append(all, targets.DryRun...)
	all = append(all, targets.Failed...)
	for _, tr := range all {
		t := Target{
			Platform: tr.Target.Platform,
			Package:  tr.PackageName,
			Status:   tr.Status.String(),
			Artifact: FromResult(tr.Pack, mode),
		}
		if tr.Err != nil {
			t.Error = tr.Err.Error()
		}
		m.Targets = append(m.Targets, t)
	}
	sort.Slice(m.Targets, func(i, j int) bool { return m.Targets[i].Platform < m.Targets[j].Platform })
	return m
}

// WriteToFile writes the manifest as indented JSON.
func WriteToFile(m *Manifest, outputFile string) error {
	log := logger.Logger()
	log.Infof("Writing the artifact manifest to the file: %s", outputFile)

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling manifest to JSON: %w", err)
	}
	data = append(data, '\n')

	if dir := filepath.Dir(outputFile); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create manifest directory: %w", err)
		}
	}
	if err := security.SafeWriteFile(outputFile, data, 0644, security.RejectSymlinks); err != nil {
		return fmt.Errorf("error writing manifest file: %w", err)
	}
	return nil
}

// Read loads a manifest written by WriteToFile.
func Read(path string) (*Manifest, error) {
	data, err := security.SafeReadFile(path, security.RejectSymlinks)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	return &m, nil
}
