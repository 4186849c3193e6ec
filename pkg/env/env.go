package env

import (
	"fmt"
	"net/http"

	"github.com/carlmjohnson/versioninfo"
)

// Overridden at link time for release builds: -ldflags "-X github.com/modwarden/warden/pkg/env.Version=v1.2.3"
var Version = ""

// Release version if set, otherwise the VCS revision the binary was built from.
func GetVersion() string {
	if Version != "" {
		return Version
	}
	return versioninfo.Short()
}

func VersionHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "%s\n", GetVersion()) // nolint:errcheck
}

func IsProd() bool {
	return Version != ""
}
