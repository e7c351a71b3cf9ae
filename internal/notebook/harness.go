package notebook

// SnapshotPolicy decides what happens to a namespace binding that cannot
// be serialized at the end of a cell (open files, sockets, live clients).
type SnapshotPolicy string

const (
	// PolicyDrop silently omits the binding from the forwarded snapshot.
	PolicyDrop SnapshotPolicy = "drop"
	// PolicyMarker replaces the binding with a string placeholder naming
	// what was lost.
	PolicyMarker SnapshotPolicy = "marker"
	// PolicyFail fails the cell instead of forwarding a lossy snapshot.
	PolicyFail SnapshotPolicy = "fail"
)

// execPayload is the JSON document handed to the harness. All paths are
// relative to the working directory inside the sandbox.
type execPayload struct {
	Code        string   `json:"code"`
	Imports     []string `json:"imports"`
	Definitions []string `json:"definitions"`
	SnapshotIn  string   `json:"snapshot_in,omitempty"`
	SnapshotOut string   `json:"snapshot_out"`
	ResultPath  string   `json:"result_path"`
	Policy      string   `json:"policy"`
}

// execResult is the JSON document the harness writes back.
type execResult struct {
	OK      bool     `json:"ok"`
	Error   string   `json:"error,omitempty"`
	Stdout  string   `json:"stdout"`
	Stderr  string   `json:"stderr"`
	HTML    []string `json:"html,omitempty"`
	Tables  []string `json:"tables,omitempty"`
	Images  []string `json:"images,omitempty"`
	Dropped []string `json:"dropped,omitempty"`
}

// pyHarness runs inside the sandboxed process, and only there: it is the
// single place where untrusted code is evaluated. It restores the prior
// namespace snapshot, replays the accumulated imports and definitions,
// executes the cell, and serializes the surviving namespace back out.
const pyHarness = `import base64
import io
import json
import pickle
import sys
import traceback
import types


def load_payload(path):
    with open(path, "r") as f:
        return json.load(f)


def restore_namespace(payload):
    ns = {"__name__": "__main__"}
    snap = payload.get("snapshot_in")
    if snap:
        try:
            with open(snap, "rb") as f:
                ns.update(pickle.load(f))
        except Exception:
            pass
    return ns


def replay_history(payload, ns, stderr):
    frags = (payload.get("imports") or []) + (payload.get("definitions") or [])
    for frag in frags:
        try:
            exec(frag, ns)
        except Exception:
            stderr.write("replay failed: %s\n" % frag.splitlines()[0])


def run_cell(code, ns, stdout, stderr):
    """Execute the cell, returning (error, trailing_value).

    Like an interactive interpreter, a trailing bare expression is
    evaluated and its value returned for display.
    """
    import ast

    try:
        tree = ast.parse(code)
    except SyntaxError:
        return traceback.format_exc(limit=0), None

    trailing = None
    if tree.body and isinstance(tree.body[-1], ast.Expr):
        trailing = ast.Expression(tree.body[-1].value)
        tree.body = tree.body[:-1]

    old_out, old_err = sys.stdout, sys.stderr
    sys.stdout, sys.stderr = stdout, stderr
    try:
        exec(compile(tree, "<cell>", "exec"), ns)
        if trailing is not None:
            return None, eval(compile(trailing, "<cell>", "eval"), ns)
        return None, None
    except Exception:
        return traceback.format_exc(), None
    finally:
        sys.stdout, sys.stderr = old_out, old_err


def render_value(value, result, stdout):
    if value is None:
        return
    html = getattr(value, "_repr_html_", None)
    if callable(html):
        try:
            markup = html()
        except Exception:
            markup = None
        if markup:
            kind = "tables" if type(value).__name__ == "DataFrame" else "html"
            result.setdefault(kind, []).append(markup)
            return
    stdout.write(repr(value) + "\n")


def collect_figures(result):
    if "matplotlib" not in sys.modules:
        return
    try:
        import matplotlib.pyplot as plt
    except Exception:
        return
    for num in plt.get_fignums():
        buf = io.BytesIO()
        try:
            plt.figure(num).savefig(buf, format="png")
        except Exception:
            continue
        result.setdefault("images", []).append(
            base64.b64encode(buf.getvalue()).decode("ascii"))
    plt.close("all")


def snapshot_namespace(ns, payload, result):
    policy = payload.get("policy", "drop")
    keep = {}
    for name, value in ns.items():
        if name.startswith("__") or isinstance(value, types.ModuleType):
            continue
        try:
            pickle.dumps(value)
        except Exception:
            if policy == "fail":
                result["ok"] = False
                result["error"] = (
                    "name %r cannot be serialized for the next cell" % name)
                return False
            result.setdefault("dropped", []).append(name)
            if policy == "marker":
                keep[name] = "<unserializable: %s of type %s>" % (
                    name, type(value).__name__)
            continue
        keep[name] = value
    with open(payload["snapshot_out"], "wb") as f:
        pickle.dump(keep, f)
    return True


def main():
    payload = load_payload(sys.argv[1])
    stdout, stderr = io.StringIO(), io.StringIO()
    result = {"ok": True}

    ns = restore_namespace(payload)
    replay_history(payload, ns, stderr)
    error, value = run_cell(payload["code"], ns, stdout, stderr)

    if error is not None:
        result["ok"] = False
        result["error"] = error
    else:
        render_value(value, result, stdout)
        collect_figures(result)
        snapshot_namespace(ns, payload, result)

    result["stdout"] = stdout.getvalue()
    result["stderr"] = stderr.getvalue()
    with open(payload["result_path"], "w") as f:
        json.dump(result, f)


if __name__ == "__main__":
    main()
`
