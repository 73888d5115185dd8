package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/opendosm/internal/render"
)

// Version and BuildTime are set by release builds:
//
//	go build -ldflags "-X github.com/derickschaefer/opendosm/cmd.Version=v0.2.0 \
//	    -X github.com/derickschaefer/opendosm/cmd.BuildTime=2026-10-01T12:00:00Z"
var (
	Version   = "v0.1.0-dev"
	BuildTime = ""
)

type versionInfo struct {
	Version   string `json:"version"`
	Revision  string `json:"revision,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	BuildTime string `json:"build_time,omitempty"`
}

// currentVersion fills in the VCS stamp the toolchain embeds when built
// from a checkout.
func currentVersion() versionInfo {
	info := versionInfo{
		Version:   Version,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		BuildTime: BuildTime,
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			info.Revision = s.Value
		case "vcs.modified":
			info.Modified = s.Value == "true"
		case "vcs.time":
			if info.BuildTime == "" {
				info.BuildTime = s.Value
			}
		}
	}
	return info
}

func writeVersion(w io.Writer, info versionInfo, format string) error {
	switch format {
	case render.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	case render.FormatJSONL:
		b, err := json.Marshal(info)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s\n", b)
		return err
	}
	rev := info.Revision
	if len(rev) > 12 {
		rev = rev[:12]
	}
	if rev != "" && info.Modified {
		rev += "+dirty"
	}
	fmt.Fprintf(w, "opendosm %s\n", info.Version)
	if rev != "" {
		fmt.Fprintf(w, "commit   %s\n", rev)
	}
	fmt.Fprintf(w, "go       %s\n", info.GoVersion)
	fmt.Fprintf(w, "os       %s\n", info.Platform)
	if info.BuildTime != "" {
		fmt.Fprintf(w, "built    %s\n", info.BuildTime)
	}
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build information",
	Long: `Print the opendosm version, commit and toolchain.

Examples:
  opendosm version
  opendosm version --format json | jq -r .revision`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeVersion(cmd.OutOrStdout(), currentVersion(), globalFlags.Format)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
