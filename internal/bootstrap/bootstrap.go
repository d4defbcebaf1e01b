// Package bootstrap brings a host from an unknown state to one where the
// vendor's API sample scripts can run: system packages present, the
// sample repository checked out, a virtual environment provisioned, and
// its dependencies installed. Every step is idempotent, so the procedure
// can be re-run after a partial completion without duplicating work.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/mammoth-cyber/mammothctl/internal/ctxlog"
)

// ErrRequirementsMissing is returned when the dependency manifest named
// by the bootstrap manifest does not exist in the repository checkout.
var ErrRequirementsMissing = errors.New("requirements file not found")

// Bootstrap executes the environment setup procedure described by a
// Manifest. The host-introspection fields default to the real host in
// New and exist as seams for tests.
type Bootstrap struct {
	manifest *Manifest
	runner   Runner
	out      io.Writer

	goos   string
	getenv func(string) string
	getwd  func() (string, error)
	home   func() (string, error)
}

// Option adjusts host introspection, primarily for tests.
type Option func(*Bootstrap)

// WithGOOS overrides the detected operating system.
func WithGOOS(goos string) Option {
	return func(b *Bootstrap) { b.goos = goos }
}

// WithGetenv overrides environment lookups.
func WithGetenv(fn func(string) string) Option {
	return func(b *Bootstrap) { b.getenv = fn }
}

// WithWorkingDir overrides working-directory detection.
func WithWorkingDir(dir string) Option {
	return func(b *Bootstrap) { b.getwd = func() (string, error) { return dir, nil } }
}

// WithHomeDir overrides home-directory detection.
func WithHomeDir(dir string) Option {
	return func(b *Bootstrap) { b.home = func() (string, error) { return dir, nil } }
}

// New builds a Bootstrap for the given manifest and tool runner. Progress
// and guidance are written to out.
func New(manifest *Manifest, runner Runner, out io.Writer, opts ...Option) *Bootstrap {
	b := &Bootstrap{
		manifest: manifest,
		runner:   runner,
		out:      out,
		goos:     runtime.GOOS,
		getenv:   os.Getenv,
		getwd:    os.Getwd,
		home:     os.UserHomeDir,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run executes the procedure: package check, repository resolution,
// virtual environment provisioning, activation check, dependency
// installation, and completion guidance. Steps run strictly in order and
// the first failure halts the sequence.
func (b *Bootstrap) Run(ctx context.Context) error {
	if err := b.ensurePackages(ctx); err != nil {
		return err
	}

	repoPath, err := b.resolveRepository(ctx)
	if err != nil {
		return err
	}

	venvPath, err := b.ensureVenv(ctx, repoPath)
	if err != nil {
		return err
	}

	pip := b.activationCheck(ctx, venvPath)

	if err := b.installRequirements(ctx, repoPath, pip); err != nil {
		return err
	}

	b.printGuidance(repoPath)
	return nil
}

// ensurePackages installs the required system packages on Linux hosts.
// Non-Linux hosts skip the step entirely; hosts where every required
// binary already resolves skip it with a notice.
func (b *Bootstrap) ensurePackages(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	pkgs := b.manifest.Packages

	if b.goos != "linux" {
		logger.Debug("package step skipped", "goos", b.goos)
		fmt.Fprintln(b.out, "Not a Linux host, skipping system package install.")
		return nil
	}

	var missing []string
	for _, bin := range pkgs.Require {
		if _, err := b.runner.LookPath(bin); err != nil {
			missing = append(missing, bin)
		}
	}
	if len(missing) == 0 {
		fmt.Fprintln(b.out, "System packages already installed, skipping.")
		return nil
	}

	logger.Info("installing system packages", "manager", pkgs.Manager, "missing", missing)
	if err := b.runner.Run(ctx, "sudo", pkgs.Manager, "update"); err != nil {
		return fmt.Errorf("package index update: %w", err)
	}
	args := append([]string{pkgs.Manager, "install", "-y"}, pkgs.Packages...)
	if err := b.runner.Run(ctx, "sudo", args...); err != nil {
		return fmt.Errorf("package install: %w", err)
	}
	return nil
}

// resolveRepository locates the sample-script checkout. A working
// directory that already carries version-control metadata is used in
// place; otherwise an existing clone under the configured parent is
// updated, or a fresh clone is made.
func (b *Bootstrap) resolveRepository(ctx context.Context) (string, error) {
	logger := ctxlog.FromContext(ctx)
	repo := b.manifest.Repository

	cwd, err := b.getwd()
	if err != nil {
		return "", fmt.Errorf("determine working directory: %w", err)
	}
	if dirExists(filepath.Join(cwd, ".git")) {
		logger.Debug("working directory is a repository checkout", "path", cwd)
		fmt.Fprintf(b.out, "Current directory is already a repository checkout, using %s\n", cwd)
		return cwd, nil
	}

	parent, err := b.expandHome(repo.Parent)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", fmt.Errorf("create parent directory %s: %w", parent, err)
	}

	repoPath := filepath.Join(parent, repo.Name)
	if dirExists(filepath.Join(repoPath, ".git")) {
		fmt.Fprintf(b.out, "Updating existing clone in %s\n", repoPath)
		if err := b.runner.Run(ctx, "git", "-C", repoPath, "pull"); err != nil {
			return "", fmt.Errorf("update repository: %w", err)
		}
		return repoPath, nil
	}

	logger.Info("cloning repository", "remote", repo.Remote, "path", repoPath)
	fmt.Fprintf(b.out, "Cloning %s into %s\n", repo.Remote, repoPath)
	if err := b.runner.Run(ctx, "git", "clone", repo.Remote, repoPath); err != nil {
		return "", fmt.Errorf("clone repository: %w", err)
	}
	return repoPath, nil
}

// ensureVenv creates the virtual environment unless the directory already
// exists, in which case it is reused as-is.
func (b *Bootstrap) ensureVenv(ctx context.Context, repoPath string) (string, error) {
	venv := b.manifest.Venv
	venvPath := filepath.Join(repoPath, venv.Name)

	if dirExists(venvPath) {
		fmt.Fprintf(b.out, "Virtual environment %s already exists, reusing it.\n", venv.Name)
		return venvPath, nil
	}

	fmt.Fprintf(b.out, "Creating virtual environment %s\n", venv.Name)
	if err := b.runner.Run(ctx, "python3", "-m", "venv", venvPath); err != nil {
		return "", fmt.Errorf("create virtual environment: %w", err)
	}
	return venvPath, nil
}

// activationCheck returns the pip binary to install through. Activation
// inside this process cannot persist to the invoking shell, so when no
// environment is active the venv's own interpreter tree is used directly
// and the user is pointed at the activation command afterwards.
func (b *Bootstrap) activationCheck(ctx context.Context, venvPath string) string {
	if active := b.getenv("VIRTUAL_ENV"); active != "" {
		ctxlog.FromContext(ctx).Debug("virtual environment active", "path", active)
		fmt.Fprintln(b.out, "Virtual environment is already activated.")
		return "pip"
	}
	return filepath.Join(venvPath, "bin", "pip")
}

// installRequirements installs the dependency manifest into the
// environment. A missing manifest is the one fatal, explicitly-reported
// error of the procedure.
func (b *Bootstrap) installRequirements(ctx context.Context, repoPath, pip string) error {
	venv := b.manifest.Venv
	reqPath := filepath.Join(repoPath, venv.Requirements)

	if _, err := os.Stat(reqPath); err != nil {
		fmt.Fprintf(b.out, "Error: %s not found!\n", venv.Requirements)
		return fmt.Errorf("%w: %s", ErrRequirementsMissing, reqPath)
	}

	fmt.Fprintf(b.out, "Installing dependencies from %s\n", venv.Requirements)
	if err := b.runner.Run(ctx, pip, "install", "-r", reqPath); err != nil {
		return fmt.Errorf("install dependencies: %w", err)
	}
	return nil
}

// printGuidance prints the follow-up commands the user must run in their
// own shell, since activation performed here does not outlive the process.
func (b *Bootstrap) printGuidance(repoPath string) {
	venvName := b.manifest.Venv.Name
	fmt.Fprintf(b.out, `
Setup complete. To work in the environment, run:

  cd %s
  source %s/bin/activate
`, repoPath, venvName)
}

// expandHome resolves a leading "~" to the user's home directory.
func (b *Bootstrap) expandHome(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := b.home()
		if err != nil {
			return "", fmt.Errorf("determine home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
