package core

import (
	"testing"

	"datamarket/testutil"
)

func TestCoreStaysTransportFree(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".",
		testutil.ModuleImport("internal/adapters", "internal/app", "internal/config", "internal/events", "internal/infra/blob"),
		"core reaches blobs through internal/blob and never imports delivery layers",
	)
}
