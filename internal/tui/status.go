package tui

import (
	"fmt"
	"strings"

	"github.com/pyxis-run/pyxis/internal/config"
)

// Status summarizes the runtime environment for the status screen.
type Status struct {
	Config *config.Config
	// ProcessBackend names the process sandbox in use ("bubblewrap"
	// or "local fallback").
	ProcessBackend string
	// ContainerEngine reports whether a container engine answered a
	// ping.
	ContainerEngine bool
}

// ShowStatus displays the current configuration and backend status.
func ShowStatus(st Status) error {
	cfg := st.Config
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("pyxis status"))
	sb.WriteString("\n")

	sb.WriteString(sectionStyle.Render("Sandbox backends"))
	sb.WriteString("\n")
	sb.WriteString(statusLine("process", backendValue(st.ProcessBackend)))
	if st.ContainerEngine {
		sb.WriteString(statusLine("container", okStyle.Render("available")))
	} else {
		sb.WriteString(statusLine("container", mutedStyle.Render("unavailable")))
	}

	sb.WriteString(sectionStyle.Render("Container"))
	sb.WriteString("\n")
	sb.WriteString(statusLine("image", cfg.Container.Image))
	sb.WriteString(statusLine("memory", fmt.Sprintf("%d MB", cfg.Container.MemoryMB)))
	sb.WriteString(statusLine("cpu", fmt.Sprintf("%.0f%%", cfg.Container.CPUPercent*100)))
	sb.WriteString(statusLine("pids", fmt.Sprintf("%d", cfg.Container.PidsLimit)))
	sb.WriteString(statusLine("user", cfg.Container.User))

	sb.WriteString(sectionStyle.Render("Notebook"))
	sb.WriteString("\n")
	sb.WriteString(statusLine("python", cfg.Notebook.Python))
	sb.WriteString(statusLine("cell timeout", fmt.Sprintf("%ds", cfg.Notebook.CellTimeout)))
	sb.WriteString(statusLine("snapshot policy", cfg.Notebook.SnapshotPolicy))

	sb.WriteString(sectionStyle.Render("Paths"))
	sb.WriteString("\n")
	sb.WriteString(statusLine("workspace", cfg.WorkspaceRoot()))
	sb.WriteString(statusLine("data", cfg.DataPath()))

	fmt.Println(boxStyle.Render(strings.TrimRight(sb.String(), "\n")))
	return nil
}

func backendValue(name string) string {
	if name == "bubblewrap" {
		return okStyle.Render(name)
	}
	return warnStyle.Render(name)
}

func statusLine(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value) + "\n"
}
