// Package config loads the parameters of the square lattice and Hubbard dimer scenarios
// from a configuration file, TPRF_ environment variables and flags.
package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/fumin/tprf"
	"github.com/fumin/tprf/errs"
	"github.com/fumin/tprf/gw"
	"github.com/fumin/tprf/interaction"
)

const EnvPrefix = "TPRF"

type Config struct {
	// DB is the sqlite file the runs are stored in, empty to not store them.
	DB       string `mapstructure:"db" yaml:"db"`
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	// Export is the directory the pair space interaction matrix is written to in COO format, empty to skip it.
	Export string `mapstructure:"export" yaml:"export"`

	Chi00 Chi00 `mapstructure:"chi00" yaml:"chi00"`
	Dimer Dimer `mapstructure:"dimer" yaml:"dimer"`
}

type Chi00 struct {
	NK        int     `mapstructure:"nk" yaml:"nk"`
	Beta      float64 `mapstructure:"beta" yaml:"beta"`
	Mu        float64 `mapstructure:"mu" yaml:"mu"`
	NwG       int     `mapstructure:"nw_g" yaml:"nw_g"`
	NNu       int     `mapstructure:"nnu" yaml:"nnu"`
	Nw        int     `mapstructure:"nw" yaml:"nw"`
	NTau      int     `mapstructure:"ntau" yaml:"ntau"`
	TailOrder int     `mapstructure:"tail_order" yaml:"tail_order"`
}

type Dimer struct {
	T    float64 `mapstructure:"t" yaml:"t"`
	U    float64 `mapstructure:"u" yaml:"u"`
	Beta float64 `mapstructure:"beta" yaml:"beta"`
	Mu   float64 `mapstructure:"mu" yaml:"mu"`
	Nw   int     `mapstructure:"nw" yaml:"nw"`
	NTau int     `mapstructure:"ntau" yaml:"ntau"`

	MaxIter int     `mapstructure:"maxiter" yaml:"maxiter"`
	Tol     float64 `mapstructure:"tol" yaml:"tol"`
	Mixing  float64 `mapstructure:"mixing" yaml:"mixing"`

	GW              bool `mapstructure:"gw" yaml:"gw"`
	Hartree         bool `mapstructure:"hartree" yaml:"hartree"`
	Fock            bool `mapstructure:"fock" yaml:"fock"`
	SelfInteraction bool `mapstructure:"self_interaction" yaml:"self_interaction"`
	// Interaction is a directory holding a pair space interaction matrix in COO format, empty for the Hubbard U.
	Interaction string `mapstructure:"interaction" yaml:"interaction"`
}

// New returns a viper instance with the defaults set and environment variables such as TPRF_DIMER_U bound.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("export", "")

	sq := tprf.DefaultSquareLattice
	v.SetDefault("chi00.nk", sq.NK)
	v.SetDefault("chi00.beta", sq.Beta)
	v.SetDefault("chi00.mu", sq.Mu)
	v.SetDefault("chi00.nw_g", sq.NwG)
	v.SetDefault("chi00.nnu", sq.NNu)
	v.SetDefault("chi00.nw", sq.Nw)
	v.SetDefault("chi00.ntau", sq.NTau)
	v.SetDefault("chi00.tail_order", sq.TailOrder)

	d := tprf.DefaultDimer
	v.SetDefault("dimer.t", d.T)
	v.SetDefault("dimer.u", d.U)
	v.SetDefault("dimer.beta", d.Beta)
	v.SetDefault("dimer.mu", d.Mu)
	v.SetDefault("dimer.nw", d.NMax)
	v.SetDefault("dimer.ntau", d.Options.NTau)
	v.SetDefault("dimer.maxiter", d.Options.MaxIter)
	v.SetDefault("dimer.tol", d.Options.Tol)
	v.SetDefault("dimer.mixing", d.Options.Mixing)
	v.SetDefault("dimer.gw", d.Options.GW)
	v.SetDefault("dimer.hartree", d.Options.Hartree)
	v.SetDefault("dimer.fock", d.Options.Fock)
	v.SetDefault("dimer.self_interaction", d.SelfInteraction)
	v.SetDefault("dimer.interaction", "")
}

// Load reads the configuration file at path, if any, on top of the defaults of v.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrap(err, path)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, errors.Wrap(err, "")
	}
	if err := c.validate(); err != nil {
		return Config{}, errors.Wrap(err, "")
	}
	return c, nil
}

func (c Config) validate() error {
	switch {
	case c.Chi00.NK < 1:
		return errs.Config("chi00.nk", "%d", c.Chi00.NK)
	case !(c.Chi00.Beta > 0):
		return errs.Config("chi00.beta", "%v", c.Chi00.Beta)
	case c.Chi00.Nw < 1 || c.Chi00.NNu < 1 || c.Chi00.NNu+c.Chi00.Nw-1 > c.Chi00.NwG:
		return errs.Config("chi00.nnu", "nw_g %d nnu %d nw %d", c.Chi00.NwG, c.Chi00.NNu, c.Chi00.Nw)
	case c.Chi00.TailOrder != 0 && c.Chi00.TailOrder != 2 && c.Chi00.TailOrder != 4:
		return errs.Config("chi00.tail_order", "%d not in {0, 2, 4}", c.Chi00.TailOrder)
	case !(c.Dimer.Beta > 0):
		return errs.Config("dimer.beta", "%v", c.Dimer.Beta)
	case c.Dimer.Nw < 1:
		return errs.Config("dimer.nw", "%d", c.Dimer.Nw)
	}
	return nil
}

func (c Chi00) Params() tprf.SquareLattice {
	p := tprf.DefaultSquareLattice
	p.NK, p.Beta, p.Mu = c.NK, c.Beta, c.Mu
	p.NwG, p.NNu, p.Nw, p.NTau = c.NwG, c.NNu, c.Nw, c.NTau
	p.TailOrder = c.TailOrder
	return p
}

// Load returns the dimer parameters with the interaction read from the Interaction directory, if any.
func (c Dimer) Load() (tprf.Dimer, error) {
	p := c.Params()
	if c.Interaction == "" {
		return p, nil
	}
	v, err := interaction.ReadCOO(c.Interaction)
	if err != nil {
		return tprf.Dimer{}, errors.Wrap(err, c.Interaction)
	}
	p.V = &v
	return p, nil
}

func (c Dimer) Params() tprf.Dimer {
	opts := gw.DefaultOptions
	opts.GW, opts.Hartree, opts.Fock = c.GW, c.Hartree, c.Fock
	opts.MaxIter, opts.Tol, opts.Mixing, opts.NTau = c.MaxIter, c.Tol, c.Mixing, c.NTau
	return tprf.Dimer{T: c.T, U: c.U, Beta: c.Beta, Mu: c.Mu, NMax: c.Nw, SelfInteraction: c.SelfInteraction, Options: opts}
}
