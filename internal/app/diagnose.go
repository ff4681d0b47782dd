package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vk/ceautotest/internal/analyzer"
	"github.com/vk/ceautotest/internal/callgraph"
	"github.com/vk/ceautotest/internal/demangle"
	"github.com/vk/ceautotest/internal/executor"
	"github.com/vk/ceautotest/internal/listing"
	"github.com/vk/ceautotest/internal/registry"
	"github.com/vk/ceautotest/internal/scheduler"
	"github.com/vk/ceautotest/internal/toolchain"
)

// diagnose prints err as a fatal error with the advice that fits its kind.
func (a *App) diagnose(err error) {
	var (
		structure   *registry.StructureError
		ignoreList  *registry.IgnoreListError
		build       *toolchain.BuildError
		parse       *listing.ParseError
		contract    *analyzer.ContractError
		demangleErr *demangle.Error
		unsatisfied *scheduler.UnsatisfiedError
		failure     *executor.FailureError
		rom         *ROMError
	)

	switch {
	case errors.As(err, &structure):
		for _, p := range structure.Missing {
			a.console.Warning(fmt.Sprintf("'%s' %s", structure.ID, p.Problem), p.Advice)
		}
		a.console.Fatal("Invalid test directory structure initiated program abort.")

	case errors.As(err, &ignoreList):
		a.console.Fatal(ignoreList.Error(),
			"The ignore list file may not exist.",
			fmt.Sprintf("Ensure the ignore list is in the root test directory '%s'.", a.cfg.TestsDir),
			fmt.Sprintf("Ensure the ignore list is named '%s'.", registry.IgnoreListFileName),
		)

	case errors.As(err, &build):
		if out := strings.TrimRight(build.Output, "\n"); out != "" {
			a.console.Println(out)
		}
		advice := "Manually build the test and fix the compiler errors."
		if build.Step == toolchain.StepClean {
			advice = "Unprecedented failure of the clean step. Investigate."
		}
		a.console.Fatal(build.Error(), advice)

	case errors.As(err, &parse):
		a.console.Fatal(parse.Error(),
			"Rebuild the test with the clean option; the listing may be truncated.",
		)

	case errors.As(err, &contract):
		a.console.Missing(contract.ID, contract.Missing)
		a.console.Fatal(
			"Test does not have all of the functions it claims to evaluate. The missing functions are listed above this message.",
			"Update the test with code to evaluate the missing functions, or",
			"Remove the names of the missing functions from the list of functions the test claims to evaluate.",
		)

	case errors.As(err, &demangleErr):
		a.console.Fatal(demangleErr.Error(), "Check that the demangler is installed and on the PATH.")

	case errors.Is(err, callgraph.ErrNoEntryPoint):
		a.console.Fatal(err.Error(), fmt.Sprintf("Check that the test defines %s.", a.cfg.EntryPoint))

	case errors.As(err, &unsatisfied):
		a.console.Fatal("Some tests have untested dependencies.",
			"Review the list of tests above and add tests whose targets evaluate the dependency functions listed.",
		)

	case errors.As(err, &failure):
		a.console.Fatal(failure.Error())

	case errors.As(err, &rom):
		a.console.Fatal(rom.Error(),
			"Place the testing ROM at the configured location, or",
			"Point the rom setting at an existing ROM image.",
		)

	case errors.Is(err, context.Canceled):
		a.console.Fatal("Testing was interrupted.")

	default:
		a.console.Fatal(err.Error())
	}
}
