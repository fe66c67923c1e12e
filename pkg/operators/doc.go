// Package operators runs native toolchains for the build engine.
//
// Each toolchain provides one operator per build action:
//
//	toolchain  compile   archive   link
//	llvm       clang++   llvm-lib  clang++
//	gnu        g++       ar        g++
//	msvc       cl        lib       link
//
// Operators capture tool output and report failures as engine process
// errors, so the output is available to the caller. MSVC style tools are
// also considered failed when they print an error marker to stdout.
package operators
