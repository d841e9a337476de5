package scanner

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/packscan/packscan/pkg/logger"
	"github.com/packscan/packscan/pkg/threat"
)

// Coordinator runs one adapter per requested ecosystem over a scan root.
// Ecosystems share nothing but the read-only threat index, so they scan in
// parallel; each adapter fills its own buffer and the buffers are
// concatenated in fixed ecosystem order (npm, maven, pip) once every adapter
// has finished, keeping finding order deterministic for identical inputs.
type Coordinator struct {
	index    *threat.Index
	adapters []Adapter
}

// NewCoordinator builds a coordinator for the given ecosystems; an empty list
// selects all three. Unknown ecosystem names are ignored with a warning so a
// threat CSV covering more ecosystems than this build supports still scans.
func NewCoordinator(index *threat.Index, opts Options, ecosystems []string) *Coordinator {
	if len(ecosystems) == 0 {
		ecosystems = []string{threat.EcosystemNpm, threat.EcosystemMaven, threat.EcosystemPip}
	}

	c := &Coordinator{index: index}
	for _, eco := range ecosystems {
		switch eco {
		case threat.EcosystemNpm:
			c.adapters = append(c.adapters, NewNpmAdapter(index, opts))
		case threat.EcosystemMaven:
			c.adapters = append(c.adapters, NewMavenAdapter(index, opts))
		case threat.EcosystemPip:
			c.adapters = append(c.adapters, NewPythonAdapter(index, opts))
		default:
			logger.Warnf("no scanner for ecosystem %q, skipping", eco)
		}
	}
	return c
}

// Adapters exposes the configured adapters in scan order.
func (c *Coordinator) Adapters() []Adapter {
	return c.adapters
}

// Scan walks the root once per ecosystem and returns the merged findings.
// The scan stops early when ctx is cancelled; nothing is written to disk, so
// abandoning in-flight project scans has no side effects to unwind.
func (c *Coordinator) Scan(ctx context.Context, root string) ([]Finding, error) {
	buffers := make([][]Finding, len(c.adapters))

	g, ctx := errgroup.WithContext(ctx)
	for i, adapter := range c.adapters {
		i, adapter := i, adapter
		g.Go(func() error {
			projects, err := adapter.DetectProjects(root)
			if err != nil {
				return err
			}
			logger.Debugf("%s: found %d project(s)", adapter.Ecosystem(), len(projects))

			for _, project := range projects {
				if err := ctx.Err(); err != nil {
					return err
				}
				buffers[i] = append(buffers[i], adapter.ScanProject(ctx, project)...)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var findings []Finding
	for _, buf := range buffers {
		findings = append(findings, buf...)
	}
	return findings, nil
}
