package render

import (
	"fmt"
	"log"
	"sync"

	"gocv.io/x/gocv"
)

// Asset is an image loaded once in the background. Drawing code must skip
// it until Ready reports true.
type Asset struct {
	mu    sync.RWMutex
	mat   gocv.Mat
	ready bool
}

// NewAsset creates an empty, not yet loaded asset.
func NewAsset() *Asset {
	return &Asset{}
}

// LoadAssetAsync creates an asset and starts loading path in a goroutine.
// Load failures are logged and leave the asset not ready.
func LoadAssetAsync(path string) *Asset {
	a := NewAsset()
	go func() {
		if err := a.Load(path); err != nil {
			log.Printf("Failed to load asset: %v", err)
			return
		}
		log.Printf("Loaded asset %s", path)
	}()
	return a
}

// Load reads the image at path.
func (a *Asset) Load(path string) error {
	mat := gocv.IMRead(path, gocv.IMReadColor)
	if mat.Empty() {
		mat.Close()
		return fmt.Errorf("read image %s: empty or unsupported", path)
	}
	a.Set(mat)
	return nil
}

// Set installs mat as the asset image, taking ownership of it.
func (a *Asset) Set(mat gocv.Mat) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ready {
		a.mat.Close()
	}
	a.mat = mat
	a.ready = true
}

// Ready reports whether the image has finished loading.
func (a *Asset) Ready() bool {
	if a == nil {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ready
}

// Mat returns the loaded image. The Mat stays owned by the asset.
func (a *Asset) Mat() (gocv.Mat, bool) {
	if a == nil {
		return gocv.Mat{}, false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.mat, a.ready
}

// Close releases the image.
func (a *Asset) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ready {
		a.mat.Close()
		a.ready = false
	}
	return nil
}
