// Package toolchain wraps the external tools of the CE SDK: the build tool
// that compiles a test into listings and a program image, and the emulator
// harness that runs the program and reports pass or fail.
package toolchain
