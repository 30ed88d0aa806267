package main

import (
	"fmt"
	"io"
	"runtime"
)

// Version information set by build flags
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// VersionInfo contains version information
type VersionInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
}

// GetVersionInfo returns the version information
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}
}

func printVersion(w io.Writer) {
	info := GetVersionInfo()
	fmt.Fprintf(w, "cdmcheck version %s\n", info.Version)
	fmt.Fprintf(w, "Git commit: %s\n", info.GitCommit)
	fmt.Fprintf(w, "Build date: %s\n", info.BuildDate)
	fmt.Fprintf(w, "Go version: %s\n", info.GoVersion)
}
