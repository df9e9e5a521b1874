// Package rsync wraps the rsync collaborator (spec §6): an external
// command executor that, given a source URI and a destination
// directory, returns an exit status. Cryptographic validation and
// object parsing play no part here — this package only moves bytes.
package rsync

import (
	"context"
	"fmt"
	"os/exec"

	syncpki "github.com/cloudflare/cfrpki/sync/lib"
	log "github.com/sirupsen/logrus"
)

// Invoker is the rsync collaborator contract from spec §6:
// reset/setSource/setDestination/execute. It is intentionally
// stateful and reusable across calls, mirroring the original
// Scala `Rsync` trait this pipeline was distilled from.
type Invoker interface {
	Reset()
	SetSource(uri string)
	SetDestination(path string)
	Execute(ctx context.Context) (exitStatus int, err error)
}

// Command is the concrete Invoker, shelling out to the system rsync
// binary. Path resolution (URI -> on-disk cache path) is delegated to
// cloudflare/cfrpki's sync library, the same utility the teacher uses
// for its rsync cache layout.
type Command struct {
	Bin string

	source      string
	destination string
}

// NewCommand builds a Command using bin (falling back to whatever
// "rsync" resolves to on PATH if bin is empty).
func NewCommand(bin string) *Command {
	if bin == "" {
		bin, _ = exec.LookPath("rsync")
	}
	return &Command{Bin: bin}
}

func (c *Command) Reset() {
	c.source = ""
	c.destination = ""
}

func (c *Command) SetSource(uri string) { c.source = uri }

func (c *Command) SetDestination(path string) { c.destination = path }

// Execute mirrors source into destination via cfrpki's RsyncSystem,
// the same process-invocation abstraction the teacher drives from its
// MainRsync loop. RsyncSystem doesn't surface a process exit code, so
// Execute reports 0 on success and -1 on any error (missing binary,
// context cancellation, a non-zero rsync exit wrapped by the library).
func (c *Command) Execute(ctx context.Context) (int, error) {
	if c.Bin == "" {
		return -1, fmt.Errorf("rsync: no rsync binary configured")
	}
	if c.source == "" || c.destination == "" {
		return -1, fmt.Errorf("rsync: source and destination must be set before Execute")
	}

	system := syncpki.RsyncSystem{Log: log.StandardLogger()}
	if _, err := system.RunRsync(ctx, c.source, c.Bin, c.destination); err != nil {
		return -1, fmt.Errorf("rsync: %s -> %s: %w", c.source, c.destination, err)
	}
	return 0, nil
}

// DownloadPath maps a rsync:// URI to its on-disk cache path under
// base, using cfrpki's path-mapping convention so that the layout
// matches the upstream tooling relying parties already expect
// (tmp/cache/<tal-filename>/<host>/<path...>, spec §5/§6).
func DownloadPath(base, uri string, isDir bool) (string, error) {
	rel, err := syncpki.GetDownloadPath(uri, isDir)
	if err != nil {
		return "", fmt.Errorf("rsync: map download path for %s: %w", uri, err)
	}
	if base == "" {
		return rel, nil
	}
	return base + "/" + rel, nil
}
