// Command bpfloader loads eBPF object files from a set of configured
// locations into the kernel and pins the resulting maps and programs under
// a bpf filesystem hierarchy.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/netprep/bpfloader/bpfloader"
)

// defaultLocations mirrors NetBpfLoad.cpp's hardcoded `locations[]`: the
// five Tethering mainline module directories, each with its own pin-path
// prefix. Unlike the original these are only the default — --location
// overrides them entirely, since this loader is not Android-specific.
var defaultLocations = []bpfloader.SearchLocation{
	{Dir: "/apex/com.android.tethering/etc/bpf/", Prefix: "tethering/"},
	{Dir: "/apex/com.android.tethering/etc/bpf/netd_shared/", Prefix: "netd_shared/"},
	{Dir: "/apex/com.android.tethering/etc/bpf/netd_readonly/", Prefix: "netd_readonly/"},
	{Dir: "/apex/com.android.tethering/etc/bpf/net_shared/", Prefix: "net_shared/"},
	{Dir: "/apex/com.android.tethering/etc/bpf/net_private/", Prefix: "net_private/"},
}

type locationFlags []string

func (l *locationFlags) String() string { return strings.Join(*l, ",") }
func (l *locationFlags) Set(v string) error {
	*l = append(*l, v)
	return nil
}
func (l *locationFlags) Type() string { return "dir=prefix" }

func parseLocations(raw []string) ([]bpfloader.SearchLocation, error) {
	var out []bpfloader.SearchLocation
	for _, r := range raw {
		parts := strings.SplitN(r, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("invalid --location %q, want dir=prefix", r)
		}
		out = append(out, bpfloader.SearchLocation{Dir: parts[0], Prefix: parts[1]})
	}
	return out, nil
}

func main() {
	var (
		locations     locationFlags
		bpffsRoot     string
		dryRun        bool
		loaderVersion uint32
		loadFailed    bool
	)

	log := logrus.StandardLogger()

	root := &cobra.Command{
		Use:   "bpfloader",
		Short: "Load eBPF objects and pin their maps and programs",
		RunE: func(cmd *cobra.Command, args []string) error {
			locs, err := parseLocations(locations)
			if err != nil {
				return err
			}
			if len(locs) == 0 {
				locs = defaultLocations
			}

			env, err := bpfloader.ProbeEnvironment(nil, nil)
			if err != nil {
				return err
			}
			if loaderVersion != 0 {
				env.LoaderVersion = loaderVersion
			}
			log.Debugf("environment: %+v", env)

			if dryRun {
				log.Infof("dry run: would load from %d location(s)", len(locs))
				return nil
			}

			orch := &bpfloader.Orchestrator{
				Env:       env,
				BPFFSRoot: bpffsRoot,
				PageSize:  uint32(unix.Getpagesize()),
				Log:       log,
			}
			if err := orch.Run(locs); err != nil {
				loadFailed = true
				return err
			}
			return nil
		},
	}

	root.Flags().VarP(&locations, "location", "l", "dir=prefix pair to search for .o objects; repeatable")
	root.Flags().StringVar(&bpffsRoot, "bpffs-root", "/sys/fs/bpf", "root of the mounted bpf filesystem")
	root.Flags().BoolVar(&dryRun, "dry-run", false, "probe the environment and report how many locations would be searched, without loading anything")
	root.Flags().Uint32Var(&loaderVersion, "loader-version", 0, "override the probed loader_version (for testing); 0 keeps the probed value")

	if err := root.Execute(); err != nil {
		log.Error(err)
		if bpfloader.IsFatal(err) || loadFailed {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
