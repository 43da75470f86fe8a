package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/wokdav/certgen/generator"
	"github.com/wokdav/certgen/generator/config"
	"github.com/wokdav/certgen/generator/engine"
	"github.com/wokdav/certgen/generator/store"
	"github.com/wokdav/certgen/logging"

	_ "github.com/wokdav/certgen/generator/config/v1"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "certgen",
	Short: "Create self-signed certificates and PFX containers",
	Long: `certgen creates a self-signed X.509 certificate together with a
password protected PKCS#12 container for its private key.

Certificates are only replaced when needed, so certgen can run on every
start of a service and keep the same certificate until it expires.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if debug {
			logging.Initialize(logging.LevelDebug, nil, nil)
		} else if verbose {
			logging.Initialize(logging.LevelInfo, nil, nil)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

type generateContext struct {
	mode     *string
	issuer   *string
	subject  *string
	serial   *int64
	years    *int
	dir      *string
	cert     *string
	pem      *string
	pfx      *string
	password *string

	genMissing     *bool
	genAll         *bool
	genExpired     *bool
	genNewerConfig *bool
}

var verbose bool
var debug bool

func (ctx generateContext) strategy() store.UpdateStrategy {
	var strat store.UpdateStrategy = store.UpdateNone

	if *ctx.genAll {
		strat |= store.UpdateAll
	}
	if *ctx.genMissing {
		strat |= store.UpdateMissing
	}
	if *ctx.genExpired {
		strat |= store.UpdateExpired
	}
	if *ctx.genNewerConfig {
		strat |= store.UpdateNewerConfig
	}

	return strat
}

// content reads the config file, if there is one, and lets explicitly set
// flags override it.
func (ctx generateContext) content(cmd *cobra.Command, args []string) (*config.CertificateContent, time.Time, error) {
	c := &config.CertificateContent{Mode: engine.DefaultMode}
	var modTime time.Time

	if len(args) > 0 {
		f, err := os.Open(args[0])
		if err != nil {
			return nil, modTime, err
		}
		defer f.Close()

		fi, err := f.Stat()
		if err != nil {
			return nil, modTime, err
		}
		modTime = fi.ModTime()

		c, err = config.ParseConfig(f)
		if err != nil {
			return nil, modTime, fmt.Errorf("%s: %w", args[0], err)
		}
	}

	flags := cmd.Flags()
	if flags.Changed("mode") {
		m, err := engine.ParseMode(*ctx.mode)
		if err != nil {
			return nil, modTime, err
		}
		c.Mode = m
	}
	if flags.Changed("issuer") {
		c.Issuer = *ctx.issuer
	}
	if flags.Changed("subject") {
		c.Subject = *ctx.subject
	}
	if flags.Changed("serial") {
		c.SerialNumber = *ctx.serial
	}
	if flags.Changed("years") {
		if !c.ValidFrom.IsZero() && !c.ValidUntil.IsZero() {
			return nil, modTime, errors.New(`--years can't be used when the config sets both "from" and "until"`)
		}
		c.ValidYears = *ctx.years
	}
	if flags.Changed("cert") {
		c.Output.Certificate = *ctx.cert
	}
	if flags.Changed("pem") {
		c.Output.Pem = *ctx.pem
	}
	if flags.Changed("pfx") {
		c.Output.Pfx = *ctx.pfx
	}
	if flags.Changed("password") {
		pw, err := config.ResolveSecret(*ctx.password)
		if err != nil {
			return nil, modTime, err
		}
		c.Output.Password = pw
	}

	if len(c.Output.Certificate) == 0 {
		c.Output.Certificate = defaultName(c) + ".cer"
	}

	return c, modTime, nil
}

func defaultName(c *config.CertificateContent) string {
	switch {
	case len(c.Subject) > 0:
		return c.Subject
	case len(c.Issuer) > 0:
		return c.Issuer
	}
	return "certificate"
}

func runGenerate(ctx generateContext, cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	strat := ctx.strategy()
	if strat == store.UpdateNone {
		fmt.Fprintln(out, "all generate-flags set to false. nothing to do.")
		return nil
	}

	c, modTime, err := ctx.content(cmd, args)
	if err != nil {
		return err
	}

	dir, err := filepath.Abs(*ctx.dir)
	if err != nil {
		return err
	}

	g := generator.FromConfig(c)
	res, err := g.GenerateCertificate(store.NewNativeFs(dir), generator.Options{
		Certificate:  c.Output.Certificate,
		Pem:          c.Output.Pem,
		Pfx:          c.Output.Pfx,
		Password:     c.Output.Password,
		Strategy:     strat,
		ConfigUpdate: modTime,
	})

	if verbose || debug {
		for _, line := range g.DebugLog {
			fmt.Fprintln(out, line)
		}
	}

	if err != nil {
		return err
	}

	state := "generated"
	if res.Reused {
		state = "kept"
	}
	mode := "unknown mode"
	if res.Mode != engine.ModeUnknown {
		mode = res.Mode.String()
	}
	fmt.Fprintf(out, "%s %s: serial %d, %s, valid %s - %s\n", state, c.Output.Certificate,
		res.SerialNumber, mode, res.NotBefore.Format(time.DateOnly), res.NotAfter.Format(time.DateOnly))

	return nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "a LOT more verbose output (overrides -v)")

	ctx := generateContext{}
	cmdGenerate := cobra.Command{
		Use:   "generate [config.yaml]",
		Short: "(Re-)generate a certificate",
		Long: `Generates a self-signed certificate and its PFX container, unless
a certificate already exists and the generate-flags do not demand a new one.
Settings come from the optional config file and the flags, flags winning.`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(ctx, cmd, args)
		},
	}

	flags := cmdGenerate.Flags()
	ctx.mode = flags.String("mode", engine.DefaultMode.String(), "signing mode, see 'certgen modes'")
	ctx.issuer = flags.String("issuer", "", "issuer common name (default random)")
	ctx.subject = flags.String("subject", "", "subject common name (default issuer)")
	ctx.serial = flags.Int64("serial", 0, "serial number (default random)")
	ctx.years = flags.Int("years", generator.DefaultValidYears, "validity in years")
	ctx.dir = flags.String("dir", ".", "output directory")
	ctx.cert = flags.String("cert", "", "DER certificate file (default <subject>.cer)")
	ctx.pem = flags.String("pem", "", "PEM certificate file")
	ctx.pfx = flags.String("pfx", "", "PKCS#12 file for key and certificate")
	ctx.password = flags.String("password", "", "PFX password, literal or env:VARIABLE")

	ctx.genMissing = flags.BoolP("generate-missing", "m", true, "generate the certificate if missing")
	ctx.genAll = flags.BoolP("generate-all", "a", false, "always generate a new certificate")
	ctx.genExpired = flags.BoolP("generate-expired", "e", true, "regenerate the certificate if expired")
	ctx.genNewerConfig = flags.BoolP("generate-outdated", "o", false, "regenerate the certificate if the config is newer")

	cmdModes := cobra.Command{
		Use:   "modes",
		Short: "List signing modes",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, m := range engine.Modes() {
				e, err := engine.New(m, engine.NewSoftwareProvider())
				if err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%-18s %v\n", m, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-18s %s\n", m, e.SignatureOID())
				e.Close()
			}
		},
	}

	cmdDoc := cobra.Command{
		Use:   "doc",
		Short: "Show Documentation",
		Long:  "Get help on various topics.",
	}

	cmdDoc.AddCommand(&cobra.Command{
		Use:   "example",
		Short: "Show an example config file",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			c, err := config.GetConfigurator(1)
			if err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), err.Error())
				return
			}
			fmt.Fprintln(cmd.OutOrStdout(), c.CertificateExample())
		},
	})

	rootCmd.AddCommand(&cmdGenerate)
	rootCmd.AddCommand(&cmdModes)
	rootCmd.AddCommand(&cmdDoc)
}
