package bootstrap

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

//go:embed default.hcl
var defaultManifest []byte

// Manifest is the declarative description of the bootstrap procedure.
type Manifest struct {
	Packages   *PackagesConfig   `hcl:"packages,block"`
	Repository *RepositoryConfig `hcl:"repository,block"`
	Venv       *VenvConfig       `hcl:"venv,block"`
}

// PackagesConfig describes the system packages required on Linux hosts.
type PackagesConfig struct {
	// Manager is the package manager binary, invoked through sudo.
	Manager string `hcl:"manager,optional"`
	// Require lists binaries that must resolve on PATH; when they all do,
	// the install is skipped.
	Require  []string `hcl:"require,optional"`
	Packages []string `hcl:"packages,optional"`
}

// RepositoryConfig describes where the sample-script checkout lives.
type RepositoryConfig struct {
	Remote string `hcl:"remote"`
	// Parent is the directory the repository is cloned under. A leading
	// "~" expands to the invoking user's home directory.
	Parent string `hcl:"parent,optional"`
	Name   string `hcl:"name,optional"`
}

// VenvConfig describes the virtual environment and its dependency manifest.
type VenvConfig struct {
	Name         string `hcl:"name,optional"`
	Requirements string `hcl:"requirements,optional"`
}

// DefaultManifest returns the compiled-in manifest mirroring the stock
// install script.
func DefaultManifest() (*Manifest, error) {
	return parseManifest("default.hcl", defaultManifest)
}

// LoadManifest reads and decodes a manifest file from disk.
func LoadManifest(path string) (*Manifest, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return parseManifest(path, src)
}

func parseManifest(filename string, src []byte) (*Manifest, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse %s: %w", filename, diags)
	}

	var m Manifest
	if diags := gohcl.DecodeBody(file.Body, evalContext(), &m); diags.HasErrors() {
		return nil, fmt.Errorf("decode %s: %w", filename, diags)
	}

	m.applyDefaults()
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return &m, nil
}

// evalContext exposes the variables manifest expressions may reference:
// the invoking user's home directory and login name.
func evalContext() *hcl.EvalContext {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "~"
	}
	user := os.Getenv("USER")
	if user == "" {
		user = os.Getenv("USERNAME")
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"home": cty.StringVal(home),
			"user": cty.StringVal(user),
		},
	}
}

// applyDefaults fills in anything a user manifest leaves out, so partial
// overrides still produce a runnable plan.
func (m *Manifest) applyDefaults() {
	if m.Packages == nil {
		m.Packages = &PackagesConfig{}
	}
	if m.Packages.Manager == "" {
		m.Packages.Manager = "apt-get"
	}
	if len(m.Packages.Require) == 0 {
		m.Packages.Require = []string{"python3", "pip3", "git"}
	}
	if len(m.Packages.Packages) == 0 {
		m.Packages.Packages = []string{"python3", "python3-pip", "python3-venv", "git"}
	}
	if m.Repository == nil {
		m.Repository = &RepositoryConfig{
			Remote: "https://github.com/mammoth-cyber/api-script-samples.git",
		}
	}
	if m.Repository.Parent == "" {
		m.Repository.Parent = "~/mammoth-api"
	}
	if m.Repository.Name == "" {
		m.Repository.Name = "api-script-samples"
	}
	if m.Venv == nil {
		m.Venv = &VenvConfig{}
	}
	if m.Venv.Name == "" {
		m.Venv.Name = "apienv"
	}
	if m.Venv.Requirements == "" {
		m.Venv.Requirements = "requirements.txt"
	}
}

func (m *Manifest) validate() error {
	if m.Repository.Remote == "" {
		return fmt.Errorf("repository remote must not be empty")
	}
	return nil
}
