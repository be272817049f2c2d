package core

import (
	"log"
	"os"
	"sync"

	"go.uber.org/dig"
)

var Container = dig.New()

const (
	NO_INIT = "PGLOCKS_MUTED"
)

var cc = sync.Once{}

func Ignored() bool {
	return os.Getenv(NO_INIT) == "true"
}

// Provide registers constructors unless PGLOCKS_MUTED=true. A constructor that dig rejects
// is a programming error, so it panics.
func Provide(constructor ...interface{}) {
	if Ignored() {
		cc.Do(func() {
			log.Println("Init is disabled.")
		})
		return
	}

	for _, item := range constructor {
		if err := GetContainer().Provide(item); err != nil {
			panic(err)
		}
	}
}

func GetContainer() *dig.Container {
	return Container
}
