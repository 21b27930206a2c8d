package manifest

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/tristendillon/pytrace/core/logger"
	"github.com/tristendillon/pytrace/core/models"
)

// DefaultIPCEnv names the variable a Node parent sets to the fd of its IPC channel.
const DefaultIPCEnv = "NODE_CHANNEL_FD"

// Build assembles a manifest with sorted, duplicate free entries. When a
// package appears more than once the direct record wins.
func Build(files []string, packages []models.PackageRecord) *models.Manifest {
	m := &models.Manifest{
		Packages: make([]models.PackageRecord, 0, len(packages)),
		Files:    make([]string, 0, len(files)),
	}

	seenFiles := make(map[string]struct{}, len(files))
	for _, f := range files {
		if _, ok := seenFiles[f]; ok {
			continue
		}
		seenFiles[f] = struct{}{}
		m.Files = append(m.Files, f)
	}
	sort.Strings(m.Files)

	byName := make(map[string]int, len(packages))
	for _, p := range packages {
		if i, ok := byName[p.Name]; ok {
			if p.IsDirectImport {
				m.Packages[i].IsDirectImport = true
			}
			if m.Packages[i].Version == models.UnknownVersion && p.Version != "" {
				m.Packages[i].Version = p.Version
			}
			continue
		}
		if p.Version == "" {
			p.Version = models.UnknownVersion
		}
		byName[p.Name] = len(m.Packages)
		m.Packages = append(m.Packages, p)
	}
	sort.Slice(m.Packages, func(i, j int) bool {
		return m.Packages[i].Name < m.Packages[j].Name
	})

	return m
}

// Emitter writes manifests as newline terminated JSON messages.
type Emitter struct {
	mu  sync.Mutex
	out io.Writer
}

func NewEmitter(out io.Writer) *Emitter {
	return &Emitter{out: out}
}

// NewChannelEmitter writes to the IPC descriptor named by envName when it
// holds a positive integer, and to stdout otherwise.
func NewChannelEmitter(envName string) *Emitter {
	if envName == "" {
		envName = DefaultIPCEnv
	}
	if fd, ok := channelFD(os.Getenv(envName)); ok {
		logger.Debug("Emitting manifest on IPC fd %d (%s)", fd, envName)
		return NewEmitter(os.NewFile(uintptr(fd), "ipc-channel"))
	}
	return NewEmitter(os.Stdout)
}

func channelFD(value string) (int, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	fd, err := strconv.Atoi(value)
	if err != nil || fd <= 0 {
		return 0, false
	}
	return fd, true
}

// Emit writes m as exactly one message.
func (e *Emitter) Emit(m *models.Manifest) error {
	if m == nil {
		m = Build(nil, nil)
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	data = append(data, '\n')

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.out.Write(data); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}
