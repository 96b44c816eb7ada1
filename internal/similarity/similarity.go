// Package similarity ranks indexed items by cosine similarity and derives
// auto-organization suggestions from per-folder centroids. Results are
// output-only; nothing here mutates the index or folder assignment.
package similarity

import (
	"math"
	"sort"

	"github.com/SimoKiihamaki/cognicore/pkg/types"
)

// CosineSimilarity computes the normalized dot product of two vectors.
// Returns 0 on dimension mismatch or when either vector has zero norm.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// candidate pairs an item with its score and original position.
type candidate struct {
	item  *types.IndexedItem
	score float64
	pos   int
}

// FindSimilar scores every candidate with a vector against target, keeps
// scores >= threshold, sorts descending (ties broken by original order),
// and truncates to maxResults. maxResults <= 0 means unlimited.
func FindSimilar(target []float32, candidates []*types.IndexedItem, threshold float64, maxResults int) []types.SimilarityResult {
	scored := make([]candidate, 0, len(candidates))
	for i, item := range candidates {
		if item == nil || !item.HasVector() {
			continue
		}
		score := CosineSimilarity(target, item.EmbeddingVector)
		if score < threshold {
			continue
		}
		scored = append(scored, candidate{item: item, score: score, pos: i})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	if maxResults > 0 && len(scored) > maxResults {
		scored = scored[:maxResults]
	}

	results := make([]types.SimilarityResult, len(scored))
	for rank, c := range scored {
		results[rank] = types.SimilarityResult{
			ItemID: c.item.ID,
			Score:  c.score,
			Rank:   rank,
		}
	}
	return results
}

// Centroid computes the mean of a set of vectors. Vectors whose dimension
// disagrees with the first are skipped. Returns nil when no usable vector
// exists.
func Centroid(vectors [][]float32) []float32 {
	var sum []float64
	count := 0
	for _, v := range vectors {
		if len(v) == 0 {
			continue
		}
		if sum == nil {
			sum = make([]float64, len(v))
		}
		if len(v) != len(sum) {
			continue
		}
		for i, x := range v {
			sum[i] += float64(x)
		}
		count++
	}
	if count == 0 {
		return nil
	}
	out := make([]float32, len(sum))
	for i, x := range sum {
		out[i] = float32(x / float64(count))
	}
	return out
}

// FolderCentroids computes one centroid per folder from its members'
// vectors. exclude, when non-empty, names an item left out of its own
// folder's centroid so an item is never compared against itself.
func FolderCentroids(items []*types.IndexedItem, exclude string) map[string][]float32 {
	grouped := make(map[string][][]float32)
	for _, item := range items {
		if item == nil || item.IsDeleted || !item.HasVector() || item.ID == exclude {
			continue
		}
		grouped[item.FolderID] = append(grouped[item.FolderID], item.EmbeddingVector)
	}

	centroids := make(map[string][]float32, len(grouped))
	for folderID, vectors := range grouped {
		if c := Centroid(vectors); c != nil {
			centroids[folderID] = c
		}
	}
	return centroids
}

// SuggestOrganization proposes a better folder for each embedded item whose
// vector matches another folder's centroid more strongly than the
// threshold. It returns suggestions only; applying a move is the caller's
// decision.
func SuggestOrganization(items []*types.IndexedItem, threshold float64) []types.OrganizationSuggestion {
	var suggestions []types.OrganizationSuggestion

	for _, item := range items {
		if item == nil || item.IsDeleted || !item.HasVector() {
			continue
		}
		centroids := FolderCentroids(items, item.ID)

		bestFolder := ""
		bestScore := -1.0
		for folderID, centroid := range centroids {
			score := CosineSimilarity(item.EmbeddingVector, centroid)
			if score > bestScore {
				bestScore = score
				bestFolder = folderID
			}
		}

		if bestFolder == "" || bestFolder == item.FolderID || bestScore < threshold {
			continue
		}
		suggestions = append(suggestions, types.OrganizationSuggestion{
			ItemID:          item.ID,
			CurrentFolder:   item.FolderID,
			SuggestedFolder: bestFolder,
			Score:           bestScore,
		})
	}
	return suggestions
}
