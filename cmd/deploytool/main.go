// Program deploytool stages an application's native-code dependencies
// into a self-contained deployment tree: it discovers binaries, walks
// their dynamic-link imports, resolves system libraries, copies them
// into the tree, and rewrites embedded library-search metadata so the
// result runs without the build host's library layout.
//
// Example usage:
//	deploytool -config=deploy.ini -data-dir=./AppDir -verbose
package main

import (
	"flag"
	"log"
	"os"

	"golang.org/x/xerrors"

	"github.com/webcamoid/DeployTools/internal/config"
	"github.com/webcamoid/DeployTools/internal/exclude"
	"github.com/webcamoid/DeployTools/internal/orchestrator"
)

var (
	configPath = flag.String("config", "deploy.ini", "path to the INI deployment settings file")
	dataDir    = flag.String("data-dir", "", "staging tree root (required)")
	dataDir2   = flag.String("datadir", "", "alias for -data-dir")
	excludeDir = flag.String("exclude-dir", "", "directory containing <target>.txt exclusion lists")
	sweepDir   = flag.String("sweep-dir", "", "directory containing <target>-unneeded.txt sweep lists")
	launcher   = flag.Bool("launcher", true, "emit a launcher script at the staging root (POSIX/Android only)")
	buildInfo  = flag.Bool("build-info", true, "emit a build-info.txt provenance record")
	verbose    = flag.Bool("verbose", false, "inherit stdio from external tools instead of capturing their output")
)

func resolveDataDir() string {
	if *dataDir != "" {
		return *dataDir
	}
	return *dataDir2
}

func logic() error {
	settings, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	root := resolveDataDir()
	if root == "" {
		return xerrors.New("deploytool: -data-dir is required")
	}

	run := orchestrator.New(settings, root)
	run.Verbose = *verbose

	if *excludeDir != "" {
		excl, err := exclude.LoadFile(settings.TargetPlatform, *excludeDir)
		if err != nil {
			return err
		}
		run.ExcludeList = excl
	} else {
		run.ExcludeList = &exclude.List{}
	}

	if *sweepDir != "" {
		sweep, err := config.LoadSweepFile(settings.TargetPlatform, *sweepDir)
		if err != nil {
			return err
		}
		run.Sweep = sweep
	}

	if *launcher {
		run.PostHooks = append(run.PostHooks, orchestrator.EmitLauncher)
	}
	if *buildInfo {
		run.PostHooks = append(run.PostHooks, orchestrator.EmitBuildInfo)
	}

	return run.Execute()
}

func main() {
	log.SetFlags(0)
	flag.Parse()
	if *verbose {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}
	if err := logic(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}
