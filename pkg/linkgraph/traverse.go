package linkgraph

import "github.com/mattgrain/animaltm/internal/store"

// neighborLookup is the subset of store.Storer the traversal functions
// need; narrowed to an interface so tests can fake it without a database.
type neighborLookup interface {
	GetLinkedMemoryIDs(id string, linkType *store.LinkKind) ([]string, error)
}

// GetLinkedMemories performs a breadth-first search over the undirected
// projection of the link graph, up to maxDepth hops, optionally filtered
// to a set of link kinds (§4.2 traversal). The source id itself is never
// included in the result.
func GetLinkedMemories(s neighborLookup, source string, maxDepth int, linkTypes []store.LinkKind) ([]string, error) {
	if maxDepth <= 0 {
		return nil, nil
	}

	visited := map[string]bool{source: true}
	var order []string
	frontier := []string{source}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			neighbors, err := neighborsOf(s, id, linkTypes)
			if err != nil {
				return nil, err
			}
			for _, n := range neighbors {
				if visited[n] {
					continue
				}
				visited[n] = true
				order = append(order, n)
				next = append(next, n)
			}
		}
		frontier = next
	}
	return order, nil
}

func neighborsOf(s neighborLookup, id string, linkTypes []store.LinkKind) ([]string, error) {
	if len(linkTypes) == 0 {
		return s.GetLinkedMemoryIDs(id, nil)
	}

	seen := map[string]bool{}
	var out []string
	for i := range linkTypes {
		ids, err := s.GetLinkedMemoryIDs(id, &linkTypes[i])
		if err != nil {
			return nil, err
		}
		for _, n := range ids {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	return out, nil
}

// directedLookup exposes the directed edge query a chain walk needs: only
// outgoing edges of a specific kind count, unlike the undirected BFS above.
type directedLookup interface {
	GetLinksForMemory(id string) ([]*store.MemoryLink, error)
}

// GetMemoryChain follows outgoing edges of linkKind from source, detecting
// cycles, up to maxLength hops (§4.2 "get_memory_chain").
func GetMemoryChain(s directedLookup, source string, linkKind store.LinkKind, maxLength int) ([]string, error) {
	if maxLength <= 0 {
		return nil, nil
	}

	chain := []string{}
	visited := map[string]bool{source: true}
	current := source

	for i := 0; i < maxLength; i++ {
		links, err := s.GetLinksForMemory(current)
		if err != nil {
			return nil, err
		}

		var next string
		for _, l := range links {
			if l.Kind == linkKind && l.SourceID == current {
				next = l.TargetID
				break
			}
		}
		if next == "" || visited[next] {
			break
		}
		chain = append(chain, next)
		visited[next] = true
		current = next
	}
	return chain, nil
}
