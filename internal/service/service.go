// Package service coordinates verification runs, authentication gating, and
// per-package evidence aggregation. It owns the only two pieces of shared
// mutable state in the process: the authentication record and the run log.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wheelvet-project/wheelvet/internal/attestation"
	"github.com/wheelvet-project/wheelvet/internal/gitresolve"
	"github.com/wheelvet-project/wheelvet/internal/gpg"
	"github.com/wheelvet-project/wheelvet/internal/sbom"
	"github.com/wheelvet-project/wheelvet/internal/storage"
	"github.com/wheelvet-project/wheelvet/internal/verifier"
	"github.com/wheelvet-project/wheelvet/internal/wheel"
)

// RunLog is a snapshot of the run-log record.
type RunLog struct {
	NormalOutput   string    `json:"normal_output"`
	VerboseOutput  string    `json:"verbose_output"`
	LastRun        time.Time `json:"last_run"`
	VerboseLastRun time.Time `json:"verbose_last_run"`
}

// Options wires the service's collaborators.
type Options struct {
	Verifier       *verifier.Runner
	Auth           *AuthManager
	Attestations   *attestation.Client
	Resolver       *gitresolve.Resolver
	SBOMs          *sbom.Store
	History        storage.Store // optional
	KeyRing        gpg.KeyRing   // optional
	WheelsDir      string
	RunTimeout     time.Duration
	VerboseTimeout time.Duration
	Logger         *slog.Logger
}

// Service is the aggregation layer.
type Service struct {
	verifier     *verifier.Runner
	auth         *AuthManager
	attestations *attestation.Client
	resolver     *gitresolve.Resolver
	sboms        *sbom.Store
	history      storage.Store
	keyRing      gpg.KeyRing

	wheelsDir      string
	runTimeout     time.Duration
	verboseTimeout time.Duration
	logger         *slog.Logger

	// run-log record, guarded independently of the auth record
	logMu  sync.Mutex
	runLog RunLog
}

// New creates the service.
func New(opts Options) *Service {
	return &Service{
		verifier:       opts.Verifier,
		auth:           opts.Auth,
		attestations:   opts.Attestations,
		resolver:       opts.Resolver,
		sboms:          opts.SBOMs,
		history:        opts.History,
		keyRing:        opts.KeyRing,
		wheelsDir:      opts.WheelsDir,
		runTimeout:     opts.RunTimeout,
		verboseTimeout: opts.VerboseTimeout,
		logger:         opts.Logger,
	}
}

// Auth exposes the authentication manager.
func (s *Service) Auth() *AuthManager {
	return s.auth
}

// Logs returns a snapshot of the run-log record.
func (s *Service) Logs() RunLog {
	s.logMu.Lock()
	defer s.logMu.Unlock()
	return s.runLog
}

// CheckVerifierVersion probes the verification tool's version against a
// configured minimum.
func (s *Service) CheckVerifierVersion(ctx context.Context, minimum string) (verifier.VersionCheck, error) {
	return s.verifier.CheckVersion(ctx, minimum)
}

// RunVerification invokes the verification tool over the wheel store. It is
// gated on authentication: unauthenticated calls fail before any process is
// spawned. The combined output and timestamp are recorded whether the run
// succeeded or not.
func (s *Service) RunVerification(ctx context.Context) (*verifier.Summary, error) {
	if !s.auth.Authenticated() {
		return nil, ErrUnauthorized
	}

	started := time.Now()
	out, err := s.verifier.Run(ctx, s.wheelsDir, s.runTimeout)
	if errors.Is(err, verifier.ErrNoWheels) {
		// The tool was never invoked; keep the previous run's log.
		return nil, fmt.Errorf("verification run failed: %w", err)
	}

	s.logMu.Lock()
	s.runLog.NormalOutput = out.CombinedLog
	s.runLog.LastRun = started
	s.logMu.Unlock()

	s.recordRun(storage.ModeNormal, started, out, err)
	if err != nil {
		return nil, fmt.Errorf("verification run failed: %w", err)
	}
	return out.Summary, nil
}

// RunVerbose invokes the verbose variant. Its output is raw text for human
// inspection and is never parsed.
func (s *Service) RunVerbose(ctx context.Context) (string, error) {
	if !s.auth.Authenticated() {
		return "", ErrUnauthorized
	}

	started := time.Now()
	out, err := s.verifier.RunVerbose(ctx, s.wheelsDir, s.verboseTimeout)
	if errors.Is(err, verifier.ErrNoWheels) {
		return "", fmt.Errorf("verbose run failed: %w", err)
	}

	s.logMu.Lock()
	s.runLog.VerboseOutput = out.CombinedLog
	s.runLog.VerboseLastRun = started
	s.logMu.Unlock()

	s.recordRun(storage.ModeVerbose, started, out, err)
	if err != nil {
		return "", fmt.Errorf("verbose run failed: %w", err)
	}
	return out.CombinedLog, nil
}

// recordRun appends the run to the history store. History is an audit trail;
// failure to write it is logged and never fails the run.
func (s *Service) recordRun(mode string, started time.Time, out verifier.RunOutput, runErr error) {
	if s.history == nil {
		return
	}

	rec := &storage.RunRecord{
		Mode:       mode,
		WheelsDir:  s.wheelsDir,
		Binary:     s.verifier.Binary(),
		StartedAt:  started,
		DurationMS: out.Duration.Milliseconds(),
		ExitCode:   out.ExitCode,
		Succeeded:  runErr == nil,
	}
	if runErr != nil {
		rec.ErrorMessage = runErr.Error()
	}
	if out.Summary != nil {
		rec.VerifiedCount = out.Summary.VerifiedCount
		rec.TotalCount = out.Summary.TotalCount
		rec.OverallCoverage = out.Summary.OverallCoverage
		rec.ArtifactCoverage = out.Summary.ArtifactCoverage
		rec.FullCoverage = out.Summary.FullCoverage()
	}

	if err := s.history.RecordRun(rec); err != nil {
		s.logger.Warn("failed to record run history", "mode", mode, "error", err)
	}
}

// Evidence is the aggregate verification evidence for one wheel.
type Evidence struct {
	Package      string                  `json:"package"`
	Version      string                  `json:"version"`
	WheelFile    string                  `json:"wheel_file"`
	Ambiguous    bool                    `json:"ambiguous,omitempty"`
	Digest       wheel.Digest            `json:"digest"`
	Manifest     *wheel.Manifest         `json:"manifest,omitempty"`
	Signature    wheel.SignatureEvidence `json:"signature"`
	Attestations *attestation.Document   `json:"attestations,omitempty"`
}

// WheelEvidence composes digest, manifest, signature, and attestation
// evidence for one wheel. Attestation-fetch failures degrade to a nil
// document rather than failing local evidence.
func (s *Service) WheelEvidence(ctx context.Context, name, version string) (*Evidence, error) {
	loc, err := wheel.Find(s.wheelsDir, name, version)
	if err != nil {
		return nil, err
	}
	if loc.Ambiguous {
		s.logger.Warn("multiple wheels match", "package", name, "version", version, "candidates", loc.Candidates)
	}

	digest, err := wheel.ComputeDigest(loc.Path)
	if err != nil {
		return nil, err
	}

	manifest, err := wheel.ExtractManifest(loc.Path, name, version)
	if err != nil {
		return nil, err
	}

	ev := &Evidence{
		Package:   name,
		Version:   version,
		WheelFile: loc.Filename,
		Ambiguous: loc.Ambiguous,
		Digest:    digest,
		Manifest:  manifest,
		Signature: wheel.CheckSignature(loc.Path, s.keyRing),
	}

	body, _, err := s.attestations.FetchProvenance(ctx, name, version, loc.Filename)
	if err != nil {
		s.logger.Debug("attestation fetch failed", "package", name, "error", err)
		return ev, nil
	}
	doc, err := attestation.Decode(body)
	if err != nil {
		s.logger.Warn("attestation decode failed", "package", name, "error", err)
		return ev, nil
	}
	ev.Attestations = doc
	return ev, nil
}

// WheelDigest computes the digest evidence for one wheel.
func (s *Service) WheelDigest(name, version string) (*wheel.Digest, error) {
	loc, err := wheel.Find(s.wheelsDir, name, version)
	if err != nil {
		return nil, err
	}
	digest, err := wheel.ComputeDigest(loc.Path)
	if err != nil {
		return nil, err
	}
	return &digest, nil
}

// WheelManifest extracts the archive manifest for one wheel.
func (s *Service) WheelManifest(name, version string) (*wheel.Manifest, error) {
	loc, err := wheel.Find(s.wheelsDir, name, version)
	if err != nil {
		return nil, err
	}
	return wheel.ExtractManifest(loc.Path, name, version)
}

// Attestations fetches and decodes the attestation bundle document for a
// wheel without the rest of the local evidence.
func (s *Service) Attestations(ctx context.Context, name, version string) (*attestation.Document, error) {
	loc, err := wheel.Find(s.wheelsDir, name, version)
	if err != nil {
		return nil, err
	}
	body, _, err := s.attestations.FetchProvenance(ctx, name, version, loc.Filename)
	if err != nil {
		return nil, err
	}
	return attestation.Decode(body)
}

// RawProvenance fetches the undecoded provenance document for a wheel,
// returning the body and the URL it came from.
func (s *Service) RawProvenance(ctx context.Context, name, version string) ([]byte, string, error) {
	loc, err := wheel.Find(s.wheelsDir, name, version)
	if err != nil {
		return nil, "", err
	}
	return s.attestations.FetchProvenance(ctx, name, version, loc.Filename)
}

// PackageSBOM loads a package's SBOM document and annotates every package
// entry that carries a git source reference with its resolved commit SHA.
// Resolution never fails the request; unresolvable tags fall back to the
// reference's object ID with the resolved flag cleared.
func (s *Service) PackageSBOM(ctx context.Context, name string) (map[string]any, error) {
	doc, err := s.sboms.LoadDocument(name)
	if err != nil {
		return nil, err
	}

	for index, info := range sbom.SourceInfos(doc) {
		ref, err := gitresolve.ParseSourceInfo(info)
		if err != nil {
			continue
		}
		res := s.resolver.ResolveTag(ctx, ref.RepoURL, ref.TagName, ref.ObjectID)
		sbom.AttachResolution(doc, index, res.CommitSHA, res.Resolved)
	}
	return doc, nil
}

// ResolveSource dereferences a tag to its commit SHA outside of any SBOM.
func (s *Service) ResolveSource(ctx context.Context, repoURL, tag, objectID string) gitresolve.Resolution {
	return s.resolver.ResolveTag(ctx, repoURL, tag, objectID)
}

// Packages lists the installed-package inventory with SBOM provenance.
func (s *Service) Packages() ([]sbom.InstalledPackage, error) {
	return s.sboms.Inventory()
}

// RunHistory lists recorded verification runs, newest first.
func (s *Service) RunHistory(limit int) ([]*storage.RunRecord, error) {
	if s.history == nil {
		return nil, nil
	}
	return s.history.ListRuns(limit)
}
