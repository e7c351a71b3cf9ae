package procbox

import (
	"fmt"
	"regexp"
)

// ErrBlockedCommand is returned when a command matches a blocked pattern.
type ErrBlockedCommand struct {
	Command string
	Reason  string
}

func (e ErrBlockedCommand) Error() string {
	return fmt.Sprintf("command %q blocked: %s", e.Command, e.Reason)
}

// blockedPattern pairs a regex with what it catches.
type blockedPattern struct {
	re     *regexp.Regexp
	reason string
}

// blockedPatterns screens commands on the no-isolation path. The namespace
// runner does not consult this list: its filesystem view already excludes
// everything these patterns protect.
var blockedPatterns = []blockedPattern{
	// Destructive recursive deletion on the host.
	{regexp.MustCompile(`(?i)\brm\s+(-[a-z]*)?-[a-z]*r[a-z]*\s+(-[a-z]*\s+)*(/|~|\$HOME|\*)\s*`), "recursive deletion with dangerous target"},
	{regexp.MustCompile(`(?i)\brm\s+(-[a-z]*\s+)*--no-preserve-root`), "rm with --no-preserve-root"},
	{regexp.MustCompile(`(?i)\brm\s+.*(/etc/passwd|/etc/shadow|/boot/)`), "removal of critical system files"},

	// Disk and filesystem destruction.
	{regexp.MustCompile(`(?i)\bmkfs\b`), "filesystem creation"},
	{regexp.MustCompile(`(?i)\bfdisk\b`), "disk partitioning"},
	{regexp.MustCompile(`(?i)\bparted\b`), "disk partitioning"},
	{regexp.MustCompile(`(?i)\bwipefs\b`), "filesystem signature removal"},
	{regexp.MustCompile(`(?i)\bshred\b`), "secure file deletion"},
	{regexp.MustCompile(`(?i)\bdd\s+.*\bof\s*=\s*/dev/(sd[a-z]|hd[a-z]|nvme|vd[a-z]|xvd[a-z])`), "dd writing to a disk device"},
	{regexp.MustCompile(`(?i)>\s*/dev/(sd[a-z]|hd[a-z]|nvme|vd[a-z])`), "redirect to a disk device"},

	// Host lifecycle.
	{regexp.MustCompile(`(?i)\bshutdown\b`), "system shutdown"},
	{regexp.MustCompile(`(?i)\breboot\b`), "system reboot"},
	{regexp.MustCompile(`(?i)\bpoweroff\b`), "system power-off"},
	{regexp.MustCompile(`(?i)\bhalt\b`), "system halt"},
	{regexp.MustCompile(`(?i)\bsystemctl\s+(halt|poweroff|reboot|shutdown)`), "systemctl power command"},

	// Fork bombs.
	{regexp.MustCompile(`:\s*\(\s*\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;`), "fork bomb"},
	{regexp.MustCompile(`(?i)\bwhile\s+true.*fork`), "fork loop"},

	// Writes into kernel interfaces.
	{regexp.MustCompile(`(?i)>\s*/proc/`), "write to /proc"},
	{regexp.MustCompile(`(?i)>\s*/sys/`), "write to /sys"},

	// Remote code piped straight into a shell.
	{regexp.MustCompile(`(?i)\bcurl\s+.*\|\s*(ba)?sh`), "curl piped to shell"},
	{regexp.MustCompile(`(?i)\bwget\s+.*\|\s*(ba)?sh`), "wget piped to shell"},
}

// GuardCommand returns a non-empty reason when the command matches a
// blocked pattern, empty when it is allowed through.
func GuardCommand(command string) string {
	for _, p := range blockedPatterns {
		if p.re.MatchString(command) {
			return p.reason
		}
	}
	return ""
}
