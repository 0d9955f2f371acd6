// pkg/version/version.go - build information for wslbootstrap.

package version

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
)

// Set with -ldflags "-X github.com/windowsadmins/wslbootstrap/pkg/version.version=..."
var (
	version   = "unknown"
	branch    = "unknown"
	revision  = "unknown"
	buildDate = "unknown"
	appName   = "wslbootstrap"
)

// Info is the build information of the running binary.
type Info struct {
	AppName   string `json:"app_name"`
	Version   string `json:"version"`
	Branch    string `json:"branch"`
	Revision  string `json:"revision"`
	GoVersion string `json:"go_version"`
	BuildDate string `json:"build_date"`
}

// Version returns the build information, filling gaps from the embedded module data.
func Version() Info {
	info := Info{
		AppName:   appName,
		Version:   version,
		Branch:    branch,
		Revision:  revision,
		GoVersion: runtime.Version(),
		BuildDate: buildDate,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		if info.Version == "unknown" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			info.Version = bi.Main.Version
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.Revision == "unknown" {
					info.Revision = s.Value
				}
			case "vcs.time":
				if info.BuildDate == "unknown" {
					info.BuildDate = s.Value
				}
			}
		}
	}
	return info
}

// Fprint writes the application name and version.
func Fprint(w io.Writer) {
	v := Version()
	fmt.Fprintf(w, "%s %s\n", v.AppName, v.Version)
}

// FprintFull writes the application name and detailed build information.
func FprintFull(w io.Writer) {
	v := Version()
	fmt.Fprintf(w, "%s %s\n", v.AppName, v.Version)
	fmt.Fprintf(w, "  branch: \t%s\n", v.Branch)
	fmt.Fprintf(w, "  revision: \t%s\n", v.Revision)
	fmt.Fprintf(w, "  build date: \t%s\n", v.BuildDate)
	fmt.Fprintf(w, "  go version: \t%s\n", v.GoVersion)
}
