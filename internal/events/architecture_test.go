package events

import (
	"testing"

	"datamarket/testutil"
)

func TestEventsDependOnlyOnDomain(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".",
		testutil.ModuleImport("internal"),
		"sinks and the dispatcher see events through pkg/domain and the Source interface",
	)
}
