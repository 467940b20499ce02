package sync

import (
	"context"
	"testing"
)

func TestListenForCatalogChangesRequiresPoolAndChannel(t *testing.T) {
	t.Parallel()

	if err := ListenForCatalogChanges(context.Background(), nil, "scopenav_catalog_changed", make(chan struct{}, 1)); err == nil {
		t.Fatal("ListenForCatalogChanges(nil pool) error = nil")
	}
}
