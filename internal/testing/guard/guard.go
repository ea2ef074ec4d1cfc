package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("LODESTAR_TEST_MODE") == "" {
			_ = os.Setenv("LODESTAR_TEST_MODE", "1")
		}
	})
}
