package cmd

import (
	"fmt"
	"runtime/debug"
	"strings"
)

type (
	VCSBuildInfo struct {
		GoVersion  string
		ModVersion string
		VCS        string
		Commit     string
		CommitTime string
		Modified   bool
	}
)

// ReadVCSBuildInfo reads module and vcs info embedded by the go toolchain
func ReadVCSBuildInfo() VCSBuildInfo {
	info := VCSBuildInfo{
		ModVersion: "dev",
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	info.GoVersion = bi.GoVersion
	if v := bi.Main.Version; v != "" && v != "(devel)" {
		info.ModVersion = v
	}
	for _, i := range bi.Settings {
		switch i.Key {
		case "vcs":
			info.VCS = i.Value
		case "vcs.revision":
			info.Commit = i.Value
		case "vcs.time":
			info.CommitTime = i.Value
		case "vcs.modified":
			info.Modified = i.Value == "true"
		}
	}
	return info
}

// VersionTemplate renders the cobra version template with build details
func (b VCSBuildInfo) VersionTemplate() string {
	s := strings.Builder{}
	s.WriteString(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}` + "\n")
	if b.GoVersion != "" {
		fmt.Fprintf(&s, "go: %s\n", b.GoVersion)
	}
	if b.VCS != "" {
		fmt.Fprintf(&s, "vcs: %s\n", b.VCS)
	}
	if b.Commit != "" {
		commit := b.Commit
		if b.Modified {
			commit += " (modified)"
		}
		fmt.Fprintf(&s, "commit: %s\n", commit)
	}
	if b.CommitTime != "" {
		fmt.Fprintf(&s, "commit time: %s\n", b.CommitTime)
	}
	return s.String()
}
