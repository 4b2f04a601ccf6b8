package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const cacheExt = ".jsonl.zst"

// Cache is the on-disk session cache. Files are zstd-compressed JSONL,
// staged through a temp path and renamed into place so a partial download
// never surfaces as cached data.
type Cache struct {
	dir     string
	decoder *zstd.Decoder
}

func NewCache(dir string) (*Cache, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Cache{dir: dir, decoder: dec}, nil
}

func (c *Cache) Dir() string {
	return c.dir
}

func (c *Cache) SessionDir(desc Descriptor) string {
	return filepath.Join(c.dir, strconv.Itoa(desc.Year), desc.Event, desc.Session)
}

func (c *Cache) TelemetryPath(desc Descriptor, driver string) string {
	return filepath.Join(c.SessionDir(desc), "telemetry", driver+cacheExt)
}

func (c *Cache) LapsPath(desc Descriptor) string {
	return filepath.Join(c.SessionDir(desc), "laps"+cacheExt)
}

func (c *Cache) Has(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Drivers lists the drivers with cached telemetry for a session, sorted
// ascending. A session with no cache directory yields an empty list, not an
// error.
func (c *Cache) Drivers(desc Descriptor) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(c.SessionDir(desc), "telemetry"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var drivers []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, cacheExt) {
			continue
		}
		drivers = append(drivers, strings.TrimSuffix(name, cacheExt))
	}
	sort.Strings(drivers)
	return drivers, nil
}

// Stage writes the output of fetch to path, compressing on the fly. The
// temp file is renamed into place only after fetch and both closes succeed.
func (c *Cache) Stage(path string, fetch func(io.Writer) (int64, error)) (int64, error) {
	// Create parent directories
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return 0, fmt.Errorf("creating directories: %w", err)
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}

	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("create zstd encoder: %w", err)
	}

	size, err := fetch(zw)
	if closeErr := zw.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(tmpPath)
		return 0, err
	}

	// Atomic rename
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("renaming temp file: %w", err)
	}

	return size, nil
}

// ReadFile returns the decompressed contents of a cached file.
func (c *Cache) ReadFile(path string) ([]byte, error) {
	compressed, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return c.decoder.DecodeAll(compressed, nil)
}

// Close releases decoder resources.
func (c *Cache) Close() {
	if c.decoder != nil {
		c.decoder.Close()
	}
}
