package main

import (
	"fmt"
	"log"
	"time"

	"github.com/presbrey/projectenv/syncmap"
)

func main() {
	env := syncmap.New().WithSetCallback(func(key, value, previous string, existed bool) {
		if existed {
			log.Printf("override %s: %q -> %q", key, previous, value)
		}
	})

	env.Set("MODE", "prod")
	env.Set("MODE", "dev")
	env.Set("TIMEOUT", "30s")

	fmt.Printf("MODE=%s\n", env.GetWithDefault("MODE", "unknown"))
	fmt.Printf("TIMEOUT=%v\n", env.GetDurationWithDefault("TIMEOUT", 10*time.Second))
	fmt.Printf("WORKERS=%d\n", env.GetIntWithDefault("WORKERS", 4))

	env.ForEach(func(key, value string) {
		fmt.Printf("%s=%s\n", key, value)
	})
}
