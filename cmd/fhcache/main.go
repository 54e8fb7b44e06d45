package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	flag "github.com/spf13/pflag"

	filehashcache "github.com/mattkeenan/filehashcache/pkg"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// globalOptions are the parsed command-line flags.
type globalOptions struct {
	root           string
	configPath     string
	compareEngines bool
	checkIgnored   bool
	algorithm      string
	verbose        int
	debug          string
	overrides      []string
}

func newFlagSet(opts *globalOptions) *flag.FlagSet {
	flagSet := flag.NewFlagSet("fhcache", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.SetInterspersed(false)

	flagSet.StringVar(&opts.root, "root", ".", "Project root directory")
	flagSet.StringVar(&opts.configPath, "config", "", "Configuration file (default ROOT/.fhcache/config)")
	flagSet.BoolVar(&opts.compareEngines, "compare-engines", false, "Run both cache engines and report disagreements")
	flagSet.BoolVar(&opts.checkIgnored, "check-ignored", false, "Reject ignored paths instead of reading through")
	flagSet.StringVar(&opts.algorithm, "algorithm", "", "Hash algorithm (sha1, sha256, sha512)")
	flagSet.CountVarP(&opts.verbose, "verbose", "v", "Increase verbosity (repeatable)")
	flagSet.StringVar(&opts.debug, "debug", "", "Debug flags (engine,combo,hash)")
	flagSet.StringArrayVar(&opts.overrides, "set", nil, "Configuration override key:value (repeatable)")
	return flagSet
}

func showUsage(errOut io.Writer) {
	fmt.Fprintf(errOut, "Usage: fhcache [options] <command> [args...]\n")
	fmt.Fprintf(errOut, "Try 'fhcache --help' for more information.\n")
}

func showHelp(out io.Writer) {
	var opts globalOptions
	flagSet := newFlagSet(&opts)

	fmt.Fprintf(out, "fhcache - content hashes of files, directories and archives\n\n")
	fmt.Fprintf(out, "Usage: fhcache [options] <command> [args...]\n\n")
	fmt.Fprintf(out, "COMMANDS:\n")
	fmt.Fprintf(out, "  hash <paths...>         Print the digest of each path\n")
	fmt.Fprintf(out, "  size <paths...>         Print the total size in bytes of each path\n")
	fmt.Fprintf(out, "  verify <paths...>       Hash the paths, then re-check every cached entry\n")
	fmt.Fprintf(out, "  dump <out> <paths...>   Hash the paths and write the project cache to OUT\n\n")
	fmt.Fprintf(out, "Archive members are addressed as ARCHIVE!/MEMBER.\n\n")
	fmt.Fprintf(out, "OPTIONS:\n")
	fmt.Fprint(out, flagSet.FlagUsages())
}

// run executes one invocation and returns the process exit code.
func run(args []string, out, errOut io.Writer) int {
	var opts globalOptions
	flagSet := newFlagSet(&opts)
	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			showHelp(out)
			return 0
		}
		fmt.Fprintf(errOut, "fhcache: %v\n", err)
		showUsage(errOut)
		return 1
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		showUsage(errOut)
		return 1
	}
	if rest[0] == "help" {
		showHelp(out)
		return 0
	}

	app, err := newApp(opts, out, errOut)
	if err != nil {
		fmt.Fprintf(errOut, "fhcache: %v\n", err)
		return 1
	}
	shutdown, stop := setupSignalHandler(errOut)
	defer stop()
	app.shutdown = shutdown

	command, cmdArgs := rest[0], rest[1:]
	switch command {
	case "hash":
		err = app.cmdHash(cmdArgs)
	case "size":
		err = app.cmdSize(cmdArgs)
	case "verify":
		err = app.cmdVerify(cmdArgs)
	case "dump":
		err = app.cmdDump(cmdArgs)
	default:
		err = fmt.Errorf("unknown command '%s'", command)
	}
	app.reportStats()
	if err != nil {
		fmt.Fprintf(errOut, "fhcache: %v\n", err)
		return 1
	}
	return 0
}

// loadConfig reads the configuration and folds the flags into it as
// overrides, so flags always win over the file.
func loadConfig(opts globalOptions, root string) (*filehashcache.Config, error) {
	configPath := opts.configPath
	if configPath == "" {
		configPath = filehashcache.DefaultConfigPath(root)
	}
	cfg, err := filehashcache.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	overrides := append([]string(nil), opts.overrides...)
	if opts.compareEngines {
		overrides = append(overrides, "compare_engines:true")
	}
	if opts.checkIgnored {
		overrides = append(overrides, "check_ignored_paths:true")
	}
	if opts.algorithm != "" {
		overrides = append(overrides, "default:"+opts.algorithm)
	}
	if opts.verbose > 0 {
		overrides = append(overrides, fmt.Sprintf("level:%d", min(opts.verbose, 3)))
	}
	if opts.debug != "" {
		overrides = append(overrides, "debug:"+opts.debug)
	}
	if len(overrides) > 0 {
		if err := cfg.ApplyOverrides(overrides); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// parseTarget splits "archive!/member" into its parts.
func parseTarget(arg string) (string, string, bool) {
	archive, member, found := strings.Cut(arg, "!/")
	return archive, member, found
}

// absPath resolves a command-line path against the working directory.
func absPath(p string) (string, error) {
	if filepath.IsAbs(p) {
		return filepath.Clean(p), nil
	}
	return filepath.Abs(p)
}
