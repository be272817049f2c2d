package orm

import (
	"sort"
	"sync"

	"gorm.io/gorm"
)

const DefaultConnection = "default"

var (
	connMu      sync.RWMutex
	connections = make(map[string]*gorm.DB)
)

// Register makes db available to Connection under name. An empty name is the default.
func Register(name string, db *gorm.DB) {
	if name == "" {
		name = DefaultConnection
	}
	connMu.Lock()
	defer connMu.Unlock()
	connections[name] = db
}

func Unregister(name string) {
	if name == "" {
		name = DefaultConnection
	}
	connMu.Lock()
	defer connMu.Unlock()
	delete(connections, name)
}

func Connection(name string) (*gorm.DB, bool) {
	if name == "" {
		name = DefaultConnection
	}
	connMu.RLock()
	defer connMu.RUnlock()
	db, ok := connections[name]
	return db, ok && db != nil
}

func ConnectionNames() []string {
	connMu.RLock()
	defer connMu.RUnlock()
	names := make([]string, 0, len(connections))
	for k := range connections {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
