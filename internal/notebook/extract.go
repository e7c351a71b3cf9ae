package notebook

import (
	"regexp"
	"strings"
)

// Top-level import forms: "import x", "import x as y", "from x import y".
var importLine = regexp.MustCompile(`^(import\s+\S|from\s+\S+\s+import\s)`)

// Top-level def/class headers, including async and decorated forms.
var defLine = regexp.MustCompile(`^(?:async\s+)?(?:def|class)\s+([A-Za-z_][A-Za-z0-9_]*)`)
var decoratorLine = regexp.MustCompile(`^@`)

// extraction is what a cell contributes to the replayed history.
type extraction struct {
	imports     []string
	definitions []definition
}

type definition struct {
	name string
	body string
}

// extract scans cell code for top-level import statements and
// function/class definitions. Only column-zero statements count as top
// level; anything indented belongs to an enclosing block and is replayed
// as part of that block, or not at all.
func extract(code string) extraction {
	var ex extraction
	lines := strings.Split(code, "\n")

	for i := 0; i < len(lines); i++ {
		line := lines[i]

		if importLine.MatchString(line) {
			ex.imports = append(ex.imports, strings.TrimRight(line, " \t"))
			continue
		}

		// A decorator stack belongs to the def/class it precedes.
		start := i
		for i < len(lines) && decoratorLine.MatchString(lines[i]) {
			i++
		}
		if i >= len(lines) {
			break
		}

		m := defLine.FindStringSubmatch(lines[i])
		if m == nil {
			i = start
			continue
		}

		// The block runs until the next column-zero statement.
		end := i + 1
		for end < len(lines) {
			l := lines[end]
			if trimmed := strings.TrimSpace(l); trimmed != "" && !strings.HasPrefix(l, " ") && !strings.HasPrefix(l, "\t") {
				break
			}
			end++
		}

		body := strings.TrimRight(strings.Join(lines[start:end], "\n"), " \t\n")
		ex.definitions = append(ex.definitions, definition{name: m[1], body: body})
		i = end - 1
	}

	return ex
}

// mergeHistory folds a cell's extraction into the notebook's accumulated
// lists. Imports already present are not re-added. A definition reusing an
// existing name replaces the old body in place, so replay rebuilds the
// binding the later cells actually saw.
func mergeHistory(nb *Notebook, ex extraction) {
	for _, imp := range ex.imports {
		if !containsString(nb.Imports, imp) {
			nb.Imports = append(nb.Imports, imp)
		}
	}

	for _, def := range ex.definitions {
		replaced := false
		for i, existing := range nb.Definitions {
			if definitionName(existing) == def.name {
				nb.Definitions[i] = def.body
				replaced = true
				break
			}
		}
		if !replaced {
			nb.Definitions = append(nb.Definitions, def.body)
		}
	}
}

// rebuildHistory recomputes the accumulated lists from the remaining
// cells, in order. Used after a cell is deleted.
func rebuildHistory(nb *Notebook) {
	nb.Imports = nil
	nb.Definitions = nil
	for _, c := range nb.Cells {
		mergeHistory(nb, extract(c.Code))
	}
}

// definitionName extracts the defined name from a stored definition body.
func definitionName(body string) string {
	for _, line := range strings.Split(body, "\n") {
		if m := defLine.FindStringSubmatch(line); m != nil {
			return m[1]
		}
	}
	return ""
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
