// Package archive serializes a completed workflow's working directory
// into a compressed tar bundle under the install's archive root, built
// on stdlib archive/tar and compress/gzip. Archival is best-effort: it
// tars whatever task artifacts (stdout/stderr/scripts) are on disk when
// it runs and does not flush or wait for them first.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/cuemby/bee/pkg/log"
	"github.com/cuemby/bee/pkg/types"
	"github.com/rs/zerolog"
)

// Service archives a workflow's WorkDir/workflows/{wf_id}/ directory
// (cwl, inputs, per-task stdout/stderr/script) into
// {ArchiveRoot}/{wf_id}.tgz.
type Service struct {
	ArchiveRoot string
	logger      zerolog.Logger
}

// New returns a Service rooted at archiveRoot (typically
// {bee_workdir}/archives, §6.5), creating the directory if absent.
func New(archiveRoot string) (*Service, error) {
	if err := os.MkdirAll(archiveRoot, 0755); err != nil {
		return nil, fmt.Errorf("create archive root: %w", err)
	}
	return &Service{ArchiveRoot: archiveRoot, logger: log.WithComponent("archive")}, nil
}

// Archive tars+gzips wf's working directory and writes it to
// {ArchiveRoot}/{wf_id}.tgz, returning the final path. Best-effort: a
// source file that vanishes mid-walk (e.g. a cancelled task's script
// never written) is skipped rather than failing the whole archive,
// matching spec.md §9's note that partial results during cancellation
// are not guaranteed complete.
func (s *Service) Archive(wf *types.Workflow) (string, error) {
	srcDir := filepath.Join(wf.WorkDir, "workflows", wf.ID)
	dest := filepath.Join(s.ArchiveRoot, wf.ID+".tgz")

	f, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create archive file: %w", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	if _, statErr := os.Stat(srcDir); statErr == nil {
		walkErr := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				s.logger.Warn().Err(err).Str("path", path).Msg("skip archive entry")
				return nil
			}
			return s.addEntry(tw, srcDir, path, d)
		})
		if walkErr != nil {
			tw.Close()
			gz.Close()
			return "", fmt.Errorf("walk workflow dir: %w", walkErr)
		}
	}

	if metaErr := s.addMetadata(tw, wf); metaErr != nil {
		s.logger.Warn().Err(metaErr).Str("workflow_id", wf.ID).Msg("archive metadata entry failed")
	}

	if err := tw.Close(); err != nil {
		gz.Close()
		return "", fmt.Errorf("close tar writer: %w", err)
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("close gzip writer: %w", err)
	}
	return dest, nil
}

func (s *Service) addEntry(tw *tar.Writer, srcDir, path string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return nil // removed between WalkDir's readdir and Info; skip
	}

	rel, err := filepath.Rel(srcDir, path)
	if err != nil {
		return err
	}
	if rel == "." {
		return nil
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = filepath.ToSlash(filepath.Join(wfArchivePrefix, rel))

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if d.IsDir() {
		return nil
	}

	src, err := os.Open(path)
	if err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("skip unreadable archive entry")
		return nil
	}
	defer src.Close()
	_, err = io.Copy(tw, src)
	return err
}

// wfArchivePrefix names the directory every entry is nested under
// inside the tarball; it is the fixed name "workflow", not the
// workflow's own directory name.
const wfArchivePrefix = "workflow"

// archiveManifest is a small JSON summary written alongside the raw
// workflow directory contents, so an archive can be inspected without
// needing the graph store.
type archiveManifest struct {
	WorkflowID string              `json:"workflow_id"`
	Name       string              `json:"name"`
	State      types.WorkflowState `json:"state"`
	TaskStates map[string]string   `json:"task_states"`
}

func (s *Service) addMetadata(tw *tar.Writer, wf *types.Workflow) error {
	m := archiveManifest{
		WorkflowID: wf.ID,
		Name:       wf.Name,
		State:      wf.State,
		TaskStates: make(map[string]string, len(wf.Tasks)),
	}
	for _, t := range wf.Tasks {
		m.TaskStates[t.ID] = string(t.State)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}

	hdr := &tar.Header{
		Name: "manifest.json",
		Mode: 0644,
		Size: int64(len(data)),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = tw.Write(data)
	return err
}

// Path returns the archive path for wfID without checking existence.
func (s *Service) Path(wfID string) string {
	return filepath.Join(s.ArchiveRoot, wfID+".tgz")
}

// Exists reports whether wfID's archive tarball is present on disk
// (spec.md §8 invariant 7: "the archive tarball exists under archives/").
func (s *Service) Exists(wfID string) bool {
	_, err := os.Stat(s.Path(wfID))
	return err == nil
}

// Open opens wfID's archive tarball for streaming (§6.1 GET
// /workflows/{id}/archive).
func (s *Service) Open(wfID string) (*os.File, error) {
	return os.Open(s.Path(wfID))
}
