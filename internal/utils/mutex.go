package utils

import "sync"

// GDAL dataset handles are not safe for concurrent use, so every decode shares one lock.
var gdalMu sync.Mutex

func WithGDAL(fn func() error) error {
	gdalMu.Lock()
	defer gdalMu.Unlock()
	return fn()
}
