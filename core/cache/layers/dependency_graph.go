package layers

import (
	"sort"
	"sync"
	"time"

	"github.com/tristendillon/pytrace/core/cache/models"
	"github.com/tristendillon/pytrace/core/logger"
)

// DependencyGraph implements Layer 5: edges discovered while tracing
type DependencyGraph struct {
	nodes map[string]*models.DependencyNode
	mutex sync.RWMutex
}

// NewDependencyGraph creates a new dependency graph
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		nodes: make(map[string]*models.DependencyNode),
	}
}

// UpdateNode replaces the outgoing edges of a node
func (dg *DependencyGraph) UpdateNode(id string, nodeType models.NodeType, dependencies []string) error {
	dg.mutex.Lock()
	defer dg.mutex.Unlock()

	node, exists := dg.nodes[id]
	if !exists {
		node = &models.DependencyNode{
			ID:           id,
			NodeType:     nodeType,
			Dependencies: []string{},
			Dependents:   []string{},
		}
		dg.nodes[id] = node
	}

	for _, oldDep := range node.Dependencies {
		dg.removeDependentRelationship(oldDep, id)
	}

	node.Dependencies = append([]string{}, dependencies...)
	for _, newDep := range dependencies {
		dg.addDependentRelationship(newDep, nodeType, id)
	}

	return nil
}

// GetDependents returns nodes that depend on this node
func (dg *DependencyGraph) GetDependents(id string) ([]string, error) {
	dg.mutex.RLock()
	defer dg.mutex.RUnlock()

	node, exists := dg.nodes[id]
	if !exists {
		return []string{}, nil
	}

	dependents := make([]string, len(node.Dependents))
	copy(dependents, node.Dependents)
	return dependents, nil
}

// DetectCycles finds circular dependencies. Nodes are visited in sorted
// order so the same graph always reports the same cycles.
func (dg *DependencyGraph) DetectCycles() ([][]string, error) {
	dg.mutex.RLock()
	defer dg.mutex.RUnlock()

	ids := make([]string, 0, len(dg.nodes))
	for id := range dg.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var cycles [][]string
	visited := make(map[string]bool)
	recursionStack := make(map[string]bool)

	for _, id := range ids {
		if !visited[id] {
			if cyclePath := dg.dfsFindCycles(id, visited, recursionStack, nil); cyclePath != nil {
				cycles = append(cycles, cyclePath)
			}
		}
	}

	if len(cycles) > 0 {
		logger.Debug("DependencyGraph: Detected %d cycles", len(cycles))
	}
	return cycles, nil
}

// GetStats returns graph statistics
func (dg *DependencyGraph) GetStats() *models.CacheStats {
	dg.mutex.RLock()
	defer dg.mutex.RUnlock()

	edges := 0
	for _, node := range dg.nodes {
		edges += len(node.Dependencies)
	}
	return &models.CacheStats{
		TotalEntries: len(dg.nodes),
		Edges:        edges,
		LastUpdate:   time.Now(),
	}
}

// addDependentRelationship adds a dependent relationship (not thread-safe, caller must lock)
func (dg *DependencyGraph) addDependentRelationship(dependencyID string, nodeType models.NodeType, dependentID string) {
	if _, exists := dg.nodes[dependencyID]; !exists {
		dg.nodes[dependencyID] = &models.DependencyNode{
			ID:           dependencyID,
			NodeType:     nodeType,
			Dependencies: []string{},
			Dependents:   []string{},
		}
	}

	depNode := dg.nodes[dependencyID]
	for _, existing := range depNode.Dependents {
		if existing == dependentID {
			return
		}
	}
	depNode.Dependents = append(depNode.Dependents, dependentID)
}

// removeDependentRelationship removes a dependent relationship (not thread-safe, caller must lock)
func (dg *DependencyGraph) removeDependentRelationship(dependencyID, dependentID string) {
	if depNode, exists := dg.nodes[dependencyID]; exists {
		depNode.Dependents = removeFromSlice(depNode.Dependents, dependentID)
	}
}

// dfsFindCycles performs DFS to detect cycles
func (dg *DependencyGraph) dfsFindCycles(id string, visited, recursionStack map[string]bool, path []string) []string {
	visited[id] = true
	recursionStack[id] = true
	path = append(path, id)

	node, exists := dg.nodes[id]
	if !exists {
		recursionStack[id] = false
		return nil
	}

	for _, dep := range node.Dependencies {
		if !visited[dep] {
			if cycle := dg.dfsFindCycles(dep, visited, recursionStack, path); cycle != nil {
				recursionStack[id] = false
				return cycle
			}
		} else if recursionStack[dep] {
			for i, p := range path {
				if p == dep {
					cycle := make([]string, len(path)-i)
					copy(cycle, path[i:])
					recursionStack[id] = false
					return cycle
				}
			}
		}
	}

	recursionStack[id] = false
	return nil
}

// removeFromSlice removes a string from a slice
func removeFromSlice(slice []string, item string) []string {
	result := []string{}
	for _, s := range slice {
		if s != item {
			result = append(result, s)
		}
	}
	return result
}
