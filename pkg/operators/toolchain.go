package operators

import (
	"context"
	"fmt"
	"strings"

	"github.com/epicbuild/epic/pkg/engine"
)

// Toolchain names.
const (
	ToolchainLLVM = "llvm"
	ToolchainGNU  = "gnu"
	ToolchainMSVC = "msvc"
	ToolchainAuto = "auto"
)

// DetectionOrder is the order Detect tries toolchains in.
var DetectionOrder = []string{ToolchainLLVM, ToolchainGNU, ToolchainMSVC}

// Settings carries the per-build inputs shared by a toolchain's operators.
type Settings struct {
	// Arch and Variant select target flags; empty values add none.
	Arch    string
	Variant string

	IncludeDirs    []string
	Defines        map[string]string
	Libraries      []string
	CompileOptions []string
	ArchiveOptions []string
	LinkOptions    []string
	Runner         Runner
}

// Toolchain is a matched set of compile, archive and link operators.
type Toolchain struct {
	Name     string
	Compiler *Compiler
	Archiver *Archiver
	Linker   *Linker
}

// New creates the named toolchain.
func New(name string, s Settings) (*Toolchain, error) {
	tool := func(exe string, flavor Flavor, opts []string) Tool {
		return Tool{Name: exe, Flavor: flavor, Options: opts, Runner: s.Runner}
	}
	compileOpts := func(flavor Flavor) []string {
		return append(CompileFlags(flavor, s.Arch, s.Variant), s.CompileOptions...)
	}
	linkOpts := func(flavor Flavor) []string {
		return append(LinkFlags(flavor, s.Arch, s.Variant), s.LinkOptions...)
	}

	tc := &Toolchain{Name: name}
	switch name {
	case ToolchainLLVM:
		tc.Compiler = &Compiler{Tool: tool("clang++", FlavorGNU, compileOpts(FlavorGNU))}
		tc.Archiver = &Archiver{Tool: tool("llvm-lib", FlavorMSVC, s.ArchiveOptions)}
		tc.Linker = &Linker{Tool: tool("clang++", FlavorGNU, linkOpts(FlavorGNU))}
	case ToolchainGNU:
		tc.Compiler = &Compiler{Tool: tool("g++", FlavorGNU, compileOpts(FlavorGNU))}
		tc.Archiver = &Archiver{Tool: tool("ar", FlavorGNU, s.ArchiveOptions)}
		tc.Linker = &Linker{Tool: tool("g++", FlavorGNU, linkOpts(FlavorGNU))}
	case ToolchainMSVC:
		tc.Compiler = &Compiler{Tool: tool("cl", FlavorMSVC, compileOpts(FlavorMSVC))}
		tc.Archiver = &Archiver{Tool: tool("lib", FlavorMSVC, s.ArchiveOptions)}
		tc.Linker = &Linker{Tool: tool("link", FlavorMSVC, linkOpts(FlavorMSVC))}
	default:
		return nil, fmt.Errorf("unknown toolchain %q (want one of %s)",
			name, strings.Join(DetectionOrder, ", "))
	}

	tc.Compiler.IncludeDirs = s.IncludeDirs
	tc.Compiler.Defines = s.Defines
	tc.Linker.Libraries = s.Libraries
	return tc, nil
}

// Operators returns the engine registry for this toolchain.
func (tc *Toolchain) Operators() engine.Operators {
	return engine.Operators{
		Compile: tc.Compiler,
		Archive: tc.Archiver,
		Link:    tc.Linker,
	}
}

// Detect returns the first toolchain in DetectionOrder whose tools are all
// installed.
func Detect(ctx context.Context, s Settings) (*Toolchain, error) {
	var missing []string
	for _, name := range DetectionOrder {
		tc, err := New(name, s)
		if err != nil {
			return nil, err
		}
		if err := tc.Operators().AssertExists(ctx); err != nil {
			missing = append(missing, name)
			continue
		}
		return tc, nil
	}
	return nil, engine.NewToolNotFoundError(strings.Join(missing, ", "), nil).
		WithDetail("toolchains", missing)
}

// Resolve returns the named toolchain, or detects one when name is empty or "auto".
func Resolve(ctx context.Context, name string, s Settings) (*Toolchain, error) {
	if name == "" || name == ToolchainAuto {
		return Detect(ctx, s)
	}
	return New(name, s)
}

// CompileFlags returns the compiler flags implied by a build configuration.
func CompileFlags(flavor Flavor, arch, variant string) []string {
	var flags []string
	switch flavor {
	case FlavorMSVC:
		switch variant {
		case "debug":
			flags = append(flags, "/Zi", "/Od", "/MDd")
		case "release":
			flags = append(flags, "/O2", "/MD", "/DNDEBUG")
		}
	default:
		switch arch {
		case "x86":
			flags = append(flags, "-m32")
		case "x64":
			flags = append(flags, "-m64")
		}
		switch variant {
		case "debug":
			flags = append(flags, "-g", "-O0")
		case "release":
			flags = append(flags, "-O2", "-DNDEBUG")
		}
	}
	return flags
}

// LinkFlags returns the linker flags implied by a build configuration.
func LinkFlags(flavor Flavor, arch, variant string) []string {
	var flags []string
	switch flavor {
	case FlavorMSVC:
		switch arch {
		case "x86":
			flags = append(flags, "/MACHINE:X86")
		case "x64":
			flags = append(flags, "/MACHINE:X64")
		}
		if variant == "debug" {
			flags = append(flags, "/DEBUG")
		}
	default:
		switch arch {
		case "x86":
			flags = append(flags, "-m32")
		case "x64":
			flags = append(flags, "-m64")
		}
	}
	return flags
}
