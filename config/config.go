package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/notargets/BEMKernel/kernel"
	"github.com/notargets/BEMKernel/precond"
	"github.com/notargets/BEMKernel/quadrature"
	"github.com/notargets/BEMKernel/tree"
	"github.com/notargets/BEMKernel/utils"
	"gopkg.in/yaml.v3"
)

// Constants holds the physical constants used to scale potentials
type Constants struct {
	Qe float64 `yaml:"qe"`  // elementary charge [C]
	Na float64 `yaml:"Na"`  // Avogadro's number [1/mol]
	E0 float64 `yaml:"E_0"` // vacuum permittivity [F/m]
}

// DefaultConstants returns the values used throughout the solver
func DefaultConstants() Constants {
	return Constants{
		Qe: 1.60217646e-19,
		Na: 6.0221415e23,
		E0: 8.854187818e-12,
	}
}

// CalToJoule converts calories to joules
const CalToJoule = 4.184

// Validate checks that every constant is finite and positive
func (c Constants) Validate() error {
	for name, v := range map[string]float64{"qe": c.Qe, "Na": c.Na, "E_0": c.E0} {
		if !(v > 0) || math.IsInf(v, 0) {
			return utils.ConfigErrorf("constant %s must be finite and positive, got %g", name, v)
		}
	}
	return nil
}

// EnergyScale converts q²/(ε r), with charges in e and lengths in Å, to
// kcal/mol
func (c Constants) EnergyScale() float64 {
	return c.Qe * c.Qe * c.Na * 1e-3 * 1e10 / (CalToJoule * c.E0)
}

// Config holds the options of one surface setup
type Config struct {

	// quadrature
	K     int `yaml:"K"`      // far-field gauss points per panel: 1, 3, 4 or 7
	KFine int `yaml:"K_fine"` // near-field gauss points per panel
	Nk    int `yaml:"Nk"`     // gauss points per edge for the semi-analytical integrals

	// tree
	NCRIT    int `yaml:"NCRIT"`     // maximum panels per twig
	MaxLevel int `yaml:"max_level"` // deepest tree level
	Workers  int `yaml:"workers"`   // goroutines for per-panel work; <= 0 means every CPU

	// regions on either side of the surface
	KappaIn   float64 `yaml:"kappa_in"`   // inverse Debye length inside
	KappaOut  float64 `yaml:"kappa_out"`  // inverse Debye length outside
	EHat      float64 `yaml:"E_hat"`      // interior over exterior permittivity
	SurfType  string  `yaml:"surf_type"`  // internal_cavity, dielectric_interface, dirichlet_surface, neumann_surface or asc_surface
	KernelIn  string  `yaml:"kernel_in"`  // laplace or yukawa; empty selects by kappa_in
	KernelOut string  `yaml:"kernel_out"` // laplace or yukawa; empty selects by kappa_out

	Constants Constants `yaml:"constants"`
}

// Default returns the configuration used when a key is absent
func Default() Config {
	return Config{
		K:         4,
		KFine:     37,
		Nk:        9,
		NCRIT:     300,
		MaxLevel:  tree.DefaultMaxLevel,
		KappaIn:   0,
		KappaOut:  0.125,
		EHat:      1,
		SurfType:  "internal_cavity",
		Constants: DefaultConstants(),
	}
}

// Load reads a YAML configuration on top of the defaults. Unknown keys are
// rejected.
func Load(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: decoding configuration: %v", utils.ErrConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile reads a YAML configuration file
func LoadFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("opening configuration: %w", err)
	}
	defer f.Close()
	cfg, err := Load(f)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every option before any computation starts
func (c Config) Validate() error {
	if _, err := quadrature.Far(c.K); err != nil {
		return err
	}
	switch {
	case c.KFine < 1:
		return utils.ConfigErrorf("K_fine must be positive, got %d", c.KFine)
	case c.Nk < 1:
		return utils.ConfigErrorf("Nk must be positive, got %d", c.Nk)
	case c.NCRIT < 1:
		return utils.ConfigErrorf("NCRIT must be positive, got %d", c.NCRIT)
	case c.MaxLevel < 1:
		return utils.ConfigErrorf("max_level must be at least 1, got %d", c.MaxLevel)
	case math.IsNaN(c.EHat) || math.IsInf(c.EHat, 0):
		return utils.ConfigErrorf("E_hat must be finite, got %g", c.EHat)
	}
	if err := c.Constants.Validate(); err != nil {
		return err
	}
	if _, err := c.Boundary(); err != nil {
		return err
	}
	return nil
}

// Media returns the interior and exterior media. Without an explicit kernel
// a positive kappa selects Yukawa, otherwise Laplace.
func (c Config) Media() (in, out precond.Medium, err error) {
	if in, err = medium(c.KernelIn, c.KappaIn); err != nil {
		return in, out, fmt.Errorf("interior: %w", err)
	}
	if out, err = medium(c.KernelOut, c.KappaOut); err != nil {
		return in, out, fmt.Errorf("exterior: %w", err)
	}
	return in, out, nil
}

func medium(name string, kappa float64) (precond.Medium, error) {
	if kappa < 0 || math.IsNaN(kappa) || math.IsInf(kappa, 0) {
		return precond.Medium{}, utils.ConfigErrorf("kappa must be finite and non-negative, got %g", kappa)
	}
	m := precond.Medium{Kind: kernel.Laplace, Kappa: kappa}
	if name == "" {
		if kappa > 0 {
			m.Kind = kernel.Yukawa
		}
		return m, nil
	}
	var err error
	m.Kind, err = kernel.ParseKind(name)
	return m, err
}

// Boundary returns the surface type with its media
func (c Config) Boundary() (precond.Boundary, error) {
	in, out, err := c.Media()
	if err != nil {
		return nil, err
	}
	return precond.ParseBoundary(c.SurfType, in, out)
}

// TreeOptions returns the partition options
func (c Config) TreeOptions() tree.Options {
	return tree.Options{NCRIT: c.NCRIT, MaxLevel: c.MaxLevel}
}
