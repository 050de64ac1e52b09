package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// Runner executes scripts from a single allow-listed directory.
type Runner struct {
	dir       string
	timeout   time.Duration
	maxOutput int
}

// NewRunner creates a runner over dir.
func NewRunner(dir string, timeout time.Duration, maxOutput int) *Runner {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	if real, err := filepath.EvalSymlinks(dir); err == nil {
		dir = real
	}
	return &Runner{dir: dir, timeout: timeout, maxOutput: maxOutput}
}

// List returns the names of the runnable scripts.
func (r *Runner) List() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}
	names := []string{}
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Run executes the named script with args and returns its combined output.
// On failure the partial output is returned together with the error.
func (r *Runner) Run(ctx context.Context, name string, args []string) (string, error) {
	path, err := r.lookup(name)
	if err != nil {
		return "", err
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	out := &cappedBuffer{max: r.maxOutput}
	if strings.EqualFold(filepath.Ext(path), ".lua") {
		err = runLua(ctx, path, args, out)
	} else {
		err = runExec(ctx, r.dir, path, args, out)
	}

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return out.String(), failure(ErrTimeout, "%s exceeded %s", name, r.timeout)
		}
		return out.String(), fmt.Errorf("%w: %s: %w", ErrToolFailure, name, err)
	}
	return out.String(), nil
}

func (r *Runner) lookup(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", failure(ErrNotAllowed, "%q", name)
	}
	path := filepath.Join(r.dir, name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", failure(ErrNotAllowed, "%q is not in %s", name, r.dir)
	}
	if real, err := filepath.EvalSymlinks(path); err != nil || !within(r.dir, real) {
		return "", failure(ErrNotAllowed, "%q resolves outside %s", name, r.dir)
	}
	return path, nil
}

func runExec(ctx context.Context, dir, path string, args []string, out *cappedBuffer) error {
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = dir
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = time.Second
	return cmd.Run()
}

// runLua runs a script with only the base, string, table and math
// libraries. print writes to out and the arguments are exposed as arg.
func runLua(ctx context.Context, path string, args []string, out *cappedBuffer) error {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()

	lua.OpenBase(L)
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("loadfile", lua.LNil)
	L.SetGlobal("load", lua.LNil)
	L.SetGlobal("loadstring", lua.LNil)
	L.SetGlobal("require", lua.LNil)
	lua.OpenString(L)
	lua.OpenTable(L)
	lua.OpenMath(L)

	L.SetGlobal("print", L.NewFunction(func(l *lua.LState) int {
		top := l.GetTop()
		parts := make([]string, 0, top)
		for i := 1; i <= top; i++ {
			parts = append(parts, l.ToStringMeta(l.Get(i)).String())
		}
		fmt.Fprintln(out, strings.Join(parts, "\t"))
		return 0
	}))

	argv := L.NewTable()
	for i, a := range args {
		argv.RawSetInt(i+1, lua.LString(a))
	}
	L.SetGlobal("arg", argv)

	L.SetContext(ctx)
	return L.DoFile(path)
}
