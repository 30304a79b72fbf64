package memory_test

import (
	"testing"

	"github.com/c360studio/semplan/storage"
	"github.com/c360studio/semplan/storage/memory"
	"github.com/c360studio/semplan/storage/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(*testing.T) storage.Store {
		return memory.NewStore()
	})
}
