package options

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/workbench/pkg/config"
	"mercator-hq/workbench/pkg/security/auth/local"
)

// ProgramName is the command name shown in usage output.
const ProgramName = "workbench-server"

// ExitInvalidOptions is the exit code for a bad command line or
// configuration.
const ExitInvalidOptions = 2

// ProgramStatus is the outcome of parsing: keep running, or exit now with
// a code.
type ProgramStatus struct {
	exit bool
	code int
}

// Run is the status that lets startup continue.
func Run() ProgramStatus { return ProgramStatus{} }

// Exit is the status that ends the program with code.
func Exit(code int) ProgramStatus { return ProgramStatus{exit: true, code: code} }

// Exit reports whether the program should exit.
func (s ProgramStatus) Exit() bool { return s.exit }

// Code is the exit code when Exit is true.
func (s ProgramStatus) Code() int { return s.code }

// Options are the parsed command line and the configuration it selects.
type Options struct {
	ConfigFile         string
	VerifyInstallation bool

	// Config is the loaded configuration with command-line overrides
	// applied.
	Config *config.Config
}

// flags holds raw flag values; only flags that were set override the
// configuration.
type flags struct {
	configFile string
	address    string
	port       int
	daemonize  bool
	offline    bool
	serverUser string
	verify     bool
	logLevel   string
	hashTime   uint32
	hashMemory uint32
}

// Parse parses args (without the program name) and loads configuration.
// Usage, version and errors are written to stdout and stderr.
func Parse(args []string, stdin io.Reader, stdout, stderr io.Writer) (*Options, ProgramStatus) {
	var (
		f       flags
		ran     bool
		loadErr error
		opts    *Options
	)
	status := Exit(0)

	root := &cobra.Command{
		Use:   ProgramName,
		Short: "Workbench front-end server",
		Long: `workbench-server accepts browser connections, authenticates them, and
proxies each user's requests to their own back-end session process.

Configuration is read from a YAML file (--config) and WORKBENCH_SECTION_FIELD
environment variables. Command-line flags override both.`,
		Version:       versionString(),
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ran = true
			cfg, err := config.LoadConfigWithEnvOverrides(f.configFile)
			if err != nil {
				loadErr = err
				return nil
			}
			if err := applyFlags(cmd, &f, cfg); err != nil {
				loadErr = err
				return nil
			}
			opts = &Options{
				ConfigFile:         f.configFile,
				VerifyInstallation: f.verify,
				Config:             cfg,
			}
			status = Run()
			return nil
		},
	}
	root.SetVersionTemplate("{{.Name}} {{.Version}}")
	root.CompletionOptions.DisableDefaultCmd = true

	fs := root.Flags()
	fs.StringVarP(&f.configFile, "config", "c", config.DefaultPath, "configuration file path")
	fs.StringVar(&f.address, "www-address", "", "address to listen on (overrides server.address)")
	fs.IntVar(&f.port, "www-port", 0, "port to listen on (overrides server.port)")
	fs.BoolVar(&f.daemonize, "daemonize", false, "detach from the controlling terminal")
	fs.BoolVar(&f.offline, "offline", false, "serve only the offline page")
	fs.StringVar(&f.serverUser, "server-user", "", "unprivileged user to run as when started as root")
	fs.BoolVar(&f.verify, "verify-installation", false, "run the session installation check and exit")
	fs.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")

	hash := &cobra.Command{
		Use:   "hash-password",
		Short: "Hash a password for the users file",
		Long: `Read a password from standard input and print an argon2id hash suitable
for a line of the users file ("username:<hash>").

Example:
  echo -n 's3cret' | workbench-server hash-password`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ran = true
			password, err := readPassword(stdin)
			if err != nil {
				status = Exit(1)
				return err
			}
			params := local.DefaultParams
			if cmd.Flags().Changed("time") {
				params.Time = f.hashTime
			}
			if cmd.Flags().Changed("memory") {
				params.Memory = f.hashMemory
			}
			hashed, err := local.HashPasswordWithParams(password, params)
			if err != nil {
				status = Exit(1)
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hashed)
			status = Exit(0)
			return nil
		},
	}
	hash.Flags().Uint32Var(&f.hashTime, "time", local.DefaultParams.Time, "argon2id iterations")
	hash.Flags().Uint32Var(&f.hashMemory, "memory", local.DefaultParams.Memory, "argon2id memory in KiB")
	root.AddCommand(hash)

	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	switch {
	case err != nil && status.Exit() && status.Code() != 0:
		fmt.Fprintf(stderr, "%s: %v\n", ProgramName, err)
		return nil, status
	case err != nil:
		fmt.Fprintf(stderr, "%s: %v\n", ProgramName, err)
		fmt.Fprintf(stderr, "Run '%s --help' for usage.\n", ProgramName)
		return nil, Exit(ExitInvalidOptions)
	case loadErr != nil:
		fmt.Fprintf(stderr, "%s: %v\n", ProgramName, loadErr)
		return nil, Exit(ExitInvalidOptions)
	case !ran:
		// --help or --version
		return nil, Exit(0)
	}
	return opts, status
}

func applyFlags(cmd *cobra.Command, f *flags, cfg *config.Config) error {
	changed := cmd.Flags().Changed
	if changed("www-address") {
		cfg.Server.Address = f.address
	}
	if changed("www-port") {
		cfg.Server.Port = f.port
	}
	if changed("daemonize") {
		cfg.Server.Daemonize = f.daemonize
	}
	if changed("offline") {
		cfg.Server.Offline = f.offline
	}
	if changed("server-user") {
		cfg.Server.ServerUser = f.serverUser
	}
	if changed("log-level") {
		cfg.Telemetry.Logging.Level = f.logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid command line: %w", err)
	}
	return nil
}

func readPassword(r io.Reader) (string, error) {
	if r == nil {
		return "", errors.New("no password on standard input")
	}
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("no password on standard input")
	}
	return password, nil
}
