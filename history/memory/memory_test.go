package memory

import (
	"testing"

	"github.com/jmcleod/chiralgate/history"
	"github.com/jmcleod/chiralgate/history/historytest"
)

func TestMemoryStore(t *testing.T) {
	historytest.Run(t, func(t *testing.T) history.Store { return New() })
}
