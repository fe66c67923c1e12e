package operators

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/epicbuild/epic/pkg/engine"
)

// Flavor selects the command-line dialect of a tool.
type Flavor string

const (
	// FlavorGNU covers gcc, clang and ar style tools.
	FlavorGNU Flavor = "gnu"

	// FlavorMSVC covers cl, lib, link and llvm-lib.
	FlavorMSVC Flavor = "msvc"
)

// msvcErrorMarkers flag failures that MSVC tools print to stdout, sometimes
// while still exiting with status zero.
var msvcErrorMarkers = []string{": error ", ": fatal error "}

// Tool is an executable with a fixed list of extra options.
type Tool struct {
	// Name is the executable name or path.
	Name string

	// Flavor is the argument dialect.
	Flavor Flavor

	// Options are appended to every invocation.
	Options []string

	// Runner starts the process. Defaults to ExecRunner.
	Runner Runner
}

// AssertExists reports a tool-not-found error if Name is not on PATH.
func (t Tool) AssertExists(ctx context.Context) error {
	if _, err := lookPath(t.Name); err != nil {
		return engine.NewToolNotFoundError(t.Name, err)
	}
	return nil
}

func (t Tool) run(ctx context.Context, args []string) error {
	runner := t.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	result, err := runner.Run(ctx, Command{Tool: t.Name, Args: args})
	if err != nil {
		return err
	}
	if t.Flavor == FlavorMSVC {
		for _, marker := range msvcErrorMarkers {
			if strings.Contains(result.Stdout, marker) {
				return engine.NewProcessError(t.Name, result.Output(),
					fmt.Errorf("tool reported %q", strings.TrimSpace(marker)))
			}
		}
	}
	return nil
}

// Compiler translates one source file into an object file.
type Compiler struct {
	Tool

	// IncludeDirs are added to the header search path.
	IncludeDirs []string

	// Defines are passed as preprocessor definitions.
	Defines map[string]string
}

// Execute compiles the single input into output.
func (c *Compiler) Execute(ctx context.Context, inputs []string, output string) error {
	if len(inputs) != 1 {
		return engine.NewGraphIntegrityError(output,
			fmt.Sprintf("compile expects one input, got %d", len(inputs))).
			WithAction(engine.ActionCompile)
	}
	return c.run(ctx, c.Args(inputs[0], output))
}

// Args returns the command line for compiling input into output.
func (c *Compiler) Args(input, output string) []string {
	var args []string
	switch c.Flavor {
	case FlavorMSVC:
		args = []string{"/c", "/EHsc", "/nologo", "/Fo" + output}
		for _, dir := range c.IncludeDirs {
			args = append(args, "/I"+dir)
		}
		args = append(args, defineFlags("/D", c.Defines)...)
	default:
		args = []string{"-c", "-o", output}
		for _, dir := range c.IncludeDirs {
			args = append(args, "-I"+dir)
		}
		args = append(args, defineFlags("-D", c.Defines)...)
	}
	args = append(args, c.Options...)
	return append(args, input)
}

// Archiver bundles object files into a static library.
type Archiver struct {
	Tool
}

// Execute archives inputs into output.
func (a *Archiver) Execute(ctx context.Context, inputs []string, output string) error {
	return a.run(ctx, a.Args(inputs, output))
}

// Args returns the command line for archiving inputs into output.
func (a *Archiver) Args(inputs []string, output string) []string {
	var args []string
	switch a.Flavor {
	case FlavorMSVC:
		args = []string{"/OUT:" + output, "/NOLOGO"}
		args = append(args, a.Options...)
	default:
		args = append([]string{"rcs"}, a.Options...)
		args = append(args, output)
	}
	return append(args, inputs...)
}

// Linker combines objects and libraries into an executable.
type Linker struct {
	Tool

	// Libraries are extra library files linked into every executable.
	Libraries []string
}

// Execute links inputs and Libraries into output.
func (l *Linker) Execute(ctx context.Context, inputs []string, output string) error {
	return l.run(ctx, l.Args(inputs, output))
}

// Args returns the command line for linking inputs into output. GNU style
// linkers resolve symbols left to right, so object files are placed before
// libraries.
func (l *Linker) Args(inputs []string, output string) []string {
	var args []string
	switch l.Flavor {
	case FlavorMSVC:
		args = []string{"/OUT:" + output, "/NOLOGO"}
		args = append(args, l.Options...)
		args = append(args, inputs...)
		args = append(args, l.Libraries...)
	default:
		objects, libraries := splitLibraries(inputs)
		args = []string{"-o", output}
		args = append(args, objects...)
		args = append(args, libraries...)
		args = append(args, l.Libraries...)
		args = append(args, l.Options...)
	}
	return args
}

func splitLibraries(inputs []string) (objects, libraries []string) {
	for _, in := range inputs {
		switch filepath.Ext(in) {
		case engine.LibraryExt, ".a":
			libraries = append(libraries, in)
		default:
			objects = append(objects, in)
		}
	}
	return objects, libraries
}

func defineFlags(prefix string, defines map[string]string) []string {
	keys := make([]string, 0, len(defines))
	for k := range defines {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	flags := make([]string, 0, len(keys))
	for _, k := range keys {
		if v := defines[k]; v != "" {
			flags = append(flags, prefix+k+"="+v)
		} else {
			flags = append(flags, prefix+k)
		}
	}
	return flags
}
