package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gonum.org/v1/gonum/floats"
	"gopkg.in/yaml.v3"

	"github.com/fumin/tprf"
	"github.com/fumin/tprf/config"
	"github.com/fumin/tprf/gf"
	"github.com/fumin/tprf/store"
)

var (
	cfgFile string
	cfg     = config.New()
)

// Summary is printed as YAML after each scenario.
type Summary struct {
	Run        string   `yaml:"run,omitempty"`
	Scenario   string   `yaml:"scenario"`
	Status     string   `yaml:"status,omitempty"`
	Iterations int      `yaml:"iterations,omitempty"`
	Residual   float64  `yaml:"residual,omitempty"`
	Warnings   []string `yaml:"warnings,omitempty"`
	// MaxDeviation is the largest deviation over the comparisons.
	MaxDeviation float64           `yaml:"max_deviation,omitempty"`
	Comparisons  []ComparisonEntry `yaml:"comparisons"`
}

type ComparisonEntry struct {
	Name      string  `yaml:"name"`
	Decimal   int     `yaml:"decimal"`
	Deviation float64 `yaml:"deviation"`
	Pass      bool    `yaml:"pass"`
}

var rootCmd = &cobra.Command{
	Use:   "run",
	Short: "Cross check bare bubbles and run GW on reference models.",
	Long: `run computes the bare particle hole bubble of a two orbital square lattice in three ways,
or one or more GW iterations of the Hubbard dimer, and compares them with closed forms.
Parameters come from the file given by --config, from TPRF_ environment variables such as
TPRF_DIMER_U, and from flags.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		lvl, err := logrus.ParseLevel(cfg.GetString("log_level"))
		if err != nil {
			return errors.Wrap(err, "")
		}
		logrus.SetLevel(lvl)
		return nil
	},
}

var chi00Cmd = &cobra.Command{
	Use:   "chi00",
	Short: "Compare the imaginary time and Matsubara sum bubbles with the analytic one.",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(cfg, cfgFile)
		if err != nil {
			return errors.Wrap(err, "")
		}
		return chi00(cmd.Context(), c)
	},
}

var dimerCmd = &cobra.Command{
	Use:   "dimer",
	Short: "Run GW on the Hubbard dimer.",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(cfg, cfgFile)
		if err != nil {
			return errors.Wrap(err, "")
		}
		return dimer(cmd.Context(), c)
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List the stored runs.",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(cfg, cfgFile)
		if err != nil {
			return errors.Wrap(err, "")
		}
		return listRuns(cmd.Context(), c)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "configuration file")
	rootCmd.PersistentFlags().String("db", "", "sqlite file to store the run in")
	rootCmd.PersistentFlags().String("log_level", "info", "logrus level")
	dimerCmd.Flags().String("export", "", "directory to write the pair space interaction matrix to")
	dimerCmd.Flags().String("interaction", "", "directory to read a pair space interaction matrix from, in place of U")
	dimerCmd.Flags().Float64("u", tprf.DefaultDimer.U, "on-site interaction")
	dimerCmd.Flags().Int("maxiter", tprf.DefaultDimer.Options.MaxIter, "maximum number of GW iterations")
	chi00Cmd.Flags().Int("tail_order", tprf.DefaultSquareLattice.TailOrder, "tail correction order of the Matsubara sum")

	for key, cmd := range map[string]*cobra.Command{"db": rootCmd, "log_level": rootCmd, "export": dimerCmd} {
		if err := bind(cfg, key, cmd, key); err != nil {
			panic(fmt.Sprintf("%+v", err))
		}
	}
	for key, flag := range map[string]string{"dimer.u": "u", "dimer.maxiter": "maxiter", "dimer.interaction": "interaction"} {
		if err := bind(cfg, key, dimerCmd, flag); err != nil {
			panic(fmt.Sprintf("%+v", err))
		}
	}
	if err := bind(cfg, "chi00.tail_order", chi00Cmd, "tail_order"); err != nil {
		panic(fmt.Sprintf("%+v", err))
	}

	rootCmd.AddCommand(chi00Cmd, dimerCmd, runsCmd)
}

func bind(v *viper.Viper, key string, cmd *cobra.Command, flag string) error {
	f := cmd.Flags().Lookup(flag)
	if f == nil {
		f = cmd.PersistentFlags().Lookup(flag)
	}
	if err := v.BindPFlag(key, f); err != nil {
		return errors.Wrap(err, key)
	}
	return nil
}

func chi00(ctx context.Context, c config.Config) error {
	p := c.Chi00.Params()
	res, err := tprf.SquareLatticeChi00(ctx, p)
	if err != nil {
		return errors.Wrap(err, "")
	}
	summary := newSummary("chi00", res.Comparisons)

	if c.DB != "" {
		id, err := save(ctx, c.DB, "chi00", c.Chi00, "", map[string]*gf.Gf{
			"chi0_analytic": res.Analytic,
			"chi0_imtime":   res.ImTime,
			"chi0_imfreq":   res.ImFreq,
		}, res.Comparisons)
		if err != nil {
			return errors.Wrap(err, "")
		}
		summary.Run = id.String()
	}
	return printSummary(summary)
}

func dimer(ctx context.Context, c config.Config) error {
	p, err := c.Dimer.Load()
	if err != nil {
		return errors.Wrap(err, "")
	}
	if c.Export != "" {
		if err := export(c.Export, p); err != nil {
			return errors.Wrap(err, "")
		}
	}

	res, err := tprf.HubbardDimer(ctx, p)
	if err != nil {
		return errors.Wrap(err, "")
	}
	// The closed forms hold for one iteration of GW alone on the self interacting Hubbard dimer.
	var cmps []tprf.Comparison
	if res.Iterations == 1 && p.Options.GW && !p.Options.Hartree && !p.Options.Fock && p.SelfInteraction && p.Mu == 0 && p.V == nil {
		cmps = tprf.DimerComparisons(p, res, 6)
	}
	summary := newSummary("dimer", cmps)
	summary.Status, summary.Iterations = res.Status.String(), res.Iterations
	summary.Residual = res.Residuals[len(res.Residuals)-1]
	for _, w := range res.Warnings {
		summary.Warnings = append(summary.Warnings, w.Error())
	}

	if c.DB != "" {
		gfs := map[string]*gf.Gf{"G0_wr": res.G0WR, "G_wr": res.GWR, "Sigma_wr": res.SigmaWR, "V_k": res.VK}
		if res.PWR != nil {
			gfs["P_wr"], gfs["W_wr"] = res.PWR, res.WWR
		}
		id, err := save(ctx, c.DB, "dimer", c.Dimer, res.Status.String(), gfs, cmps)
		if err != nil {
			return errors.Wrap(err, "")
		}
		summary.Run = id.String()
	}
	return printSummary(summary)
}

// export writes the local interaction as an n²×n² pair space matrix with rows (a, b) and columns (c, d).
// The directory can be passed back with --interaction.
func export(dir string, p tprf.Dimer) error {
	v, err := p.Interaction()
	if err != nil {
		return errors.Wrap(err, "")
	}
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return errors.Wrap(err, "")
	}
	if err := v.WriteCOO(dir); err != nil {
		return errors.Wrap(err, "")
	}
	logrus.WithFields(logrus.Fields{"dir": dir, "interaction": v.String()}).Info("export")
	return nil
}

func save(ctx context.Context, dbPath, kind string, params any, status string, gfs map[string]*gf.Gf, cmps []tprf.Comparison) (uuid.UUID, error) {
	s, err := store.Open(dbPath)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "")
	}
	defer s.Close()

	id, err := s.NewRun(ctx, kind, params)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "")
	}
	for name, g := range gfs {
		if err := s.PutGf(ctx, id, name, g); err != nil {
			return uuid.Nil, errors.Wrap(err, name)
		}
	}
	if err := s.PutComparisons(ctx, id, cmps); err != nil {
		return uuid.Nil, errors.Wrap(err, "")
	}
	if err := s.SetStatus(ctx, id, status); err != nil {
		return uuid.Nil, errors.Wrap(err, "")
	}
	logrus.WithFields(logrus.Fields{"run": id, "db": dbPath}).Info("saved")
	return id, nil
}

func listRuns(ctx context.Context, c config.Config) error {
	if c.DB == "" {
		return errors.Errorf("no db")
	}
	s, err := store.Open(c.DB)
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer s.Close()
	runs, err := s.Runs(ctx)
	if err != nil {
		return errors.Wrap(err, "")
	}
	for _, r := range runs {
		cmps, err := s.Comparisons(ctx, r.ID)
		if err != nil {
			return errors.Wrap(err, "")
		}
		pass := true
		for _, cmp := range cmps {
			pass = pass && cmp.Pass
		}
		fmt.Printf("%s %s %s %s comparisons=%d pass=%t\n", r.ID, r.Created.Format("2006-01-02T15:04:05"), r.Kind, r.Status, len(cmps), pass)
	}
	return nil
}

func newSummary(scenario string, cmps []tprf.Comparison) Summary {
	s := Summary{Scenario: scenario, Comparisons: make([]ComparisonEntry, 0, len(cmps))}
	devs := make([]float64, 0, len(cmps))
	for _, c := range cmps {
		s.Comparisons = append(s.Comparisons, ComparisonEntry{Name: c.Name, Decimal: c.Decimal, Deviation: c.MaxDeviation, Pass: c.Pass})
		devs = append(devs, c.MaxDeviation)
	}
	if len(devs) > 0 {
		s.MaxDeviation = floats.Max(devs)
	}
	return s
}

func printSummary(s Summary) error {
	b, err := yaml.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "")
	}
	fmt.Print(string(b))
	return nil
}

func main() {
	log.SetFlags(log.Lmicroseconds | log.Llongfile | log.LstdFlags)

	if err := mainWithErr(); err != nil {
		log.Fatalf("%+v", err)
	}
}

func mainWithErr() error {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}
