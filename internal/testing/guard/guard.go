package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("NUMERA_TEST_MODE") == "" {
			_ = os.Setenv("NUMERA_TEST_MODE", "1")
		}
	})
}
