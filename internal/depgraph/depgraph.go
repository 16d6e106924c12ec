// Package depgraph computes the transitive closure of external
// libraries a staging tree needs, per spec.md §4.4.
package depgraph

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/webcamoid/DeployTools/internal/binfmt"
	"github.com/webcamoid/DeployTools/internal/exclude"
	"github.com/webcamoid/DeployTools/internal/searchpath"
)

// Edge records that importer needs name, resolved to path (or
// unresolved/excluded if path is empty), for C7 to consume later.
type Edge struct {
	ImporterPath string
	Name         string
	ResolvedPath string
}

// Result is the walker's output: the deduplicated, sorted set of
// external library paths plus every edge walked, including dropped
// ones for diagnostics.
type Result struct {
	Libraries []string
	Edges     []Edge
}

// Walk discovers every Binary under root, then closes over its
// imports using resolver and filter, following spec.md §4.4 exactly:
// a single-threaded, deterministic, seen-set-guarded BFS/DFS hybrid
// worklist. extraLibs are additional import names to resolve and walk
// even if no staged binary references them (System.extraLibs,
// spec.md §6 / §4.7 step 3).
func Walk(root string, resolver *searchpath.Resolver, filter *exclude.List, extraLibs []string) (*Result, error) {
	seen := map[string]bool{}   // resolved external library paths already walked
	var worklist []*binfmt.Binary
	var edges []Edge

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 || !info.Mode().IsRegular() {
			return nil
		}
		b, ok, decErr := binfmt.Decode(path)
		if decErr != nil {
			return decErr
		}
		if !ok {
			return nil
		}
		worklist = append(worklist, b)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Seed the worklist with extraLibs resolved against the first
	// frontier binary we found, so they get their own transitive walk
	// (spec.md §4.7 step 3: "including transitive closures of
	// explicitly requested extra libs").
	if len(extraLibs) > 0 && len(worklist) > 0 {
		seed := worklist[0]
		for _, name := range extraLibs {
			resolved, ok := resolver.Resolve(seed, name)
			edge := Edge{ImporterPath: "<extraLibs>", Name: name}
			if !ok {
				edges = append(edges, edge)
				continue
			}
			if filter != nil && filter.Excludes(resolved) {
				edges = append(edges, edge)
				continue
			}
			edge.ResolvedPath = resolved
			edges = append(edges, edge)
			if !seen[resolved] {
				seen[resolved] = true
				if b, ok, err := binfmt.Decode(resolved); err == nil && ok {
					worklist = append(worklist, b)
				}
			}
		}
	}

	for i := 0; i < len(worklist); i++ {
		b := worklist[i]
		for _, name := range b.Imports {
			resolved, ok := resolver.Resolve(b, name)
			edge := Edge{ImporterPath: b.Path, Name: name}
			if !ok {
				edges = append(edges, edge)
				continue
			}
			if filter != nil && filter.Excludes(resolved) {
				edges = append(edges, edge)
				continue
			}
			// The actual file drives further decoding; the recorded
			// dependency collapses to the framework bundle root so C6
			// stages the bundle as a unit (spec.md §4.4 step 4).
			actualFile := resolved
			recorded := resolved
			if b.Format == binfmt.MachO {
				if fw, isFw := frameworkRoot(resolved); isFw {
					recorded = fw
				}
			}
			edge.ResolvedPath = recorded
			edges = append(edges, edge)
			if seen[recorded] {
				continue
			}
			seen[recorded] = true
			dec, ok, err := binfmt.Decode(actualFile)
			if err != nil || !ok {
				continue
			}
			worklist = append(worklist, dec)
		}
	}

	libs := make([]string, 0, len(seen))
	for p := range seen {
		libs = append(libs, p)
	}
	sort.Strings(libs)
	return &Result{Libraries: libs, Edges: edges}, nil
}

func frameworkRoot(path string) (string, bool) {
	const marker = ".framework"
	for i := 0; i+len(marker) <= len(path); i++ {
		if path[i:i+len(marker)] == marker {
			return path[:i+len(marker)], true
		}
	}
	return "", false
}
