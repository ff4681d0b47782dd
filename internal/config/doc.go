// Package config reads the optional suite file, autotest.hcl, that sits at
// the root of a test suite and overrides the built-in defaults of a run.
//
// Every attribute is optional. Expressions may refer to suite_dir, the
// absolute directory holding the file, and call env, join, format, lower,
// upper and coalesce:
//
//	rom           = env("CE_ROM") != "" ? env("CE_ROM") : "${suite_dir}/../testing_rom.rom"
//	workers       = 4
//	exec_timeout  = "90s"
//	build_command = ["make", "-j2"]
//
// Command-line flags that are set explicitly win over the suite file.
package config
