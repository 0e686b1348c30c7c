// Package ensemble narrows many strategy forecasts to one number: a
// consensus pass drops the predictions that disagree with the majority,
// then an aggregation pass collapses the survivors.
package ensemble

import (
	"fmt"

	"FinCast/internal/domain/models"
	domsvc "FinCast/internal/domain/service"
	"FinCast/pkg/kmeans"
)

// DefaultClusters is the cluster count used when the caller has no
// override configured.
const DefaultClusters = 3

// ConsensusClusterer groups scalar predictions with one-dimensional
// k-means and keeps the members of the largest cluster.
type ConsensusClusterer struct{}

// NewConsensusClusterer returns a ConsensusClusterer.
func NewConsensusClusterer() *ConsensusClusterer { return &ConsensusClusterer{} }

// Filter clusters the prediction values into k groups and returns the
// majority cluster's members, keyed by their original strategy names.
// With fewer predictions than clusters there is nothing to vote on: the
// input passes through untouched and Clustered stays false. Ties on
// cluster size resolve to the lowest label. The input map is never
// modified and the output is always a subset of it.
func (c *ConsensusClusterer) Filter(preds models.PredictionSet, k int) (models.Consensus, error) {
	if k <= 0 {
		return models.Consensus{}, fmt.Errorf("consensus: invalid cluster count %d", k)
	}
	if len(preds) < k {
		return models.Consensus{Kept: preds.Clone()}, nil
	}

	names := preds.Names()
	points := make([][]float64, len(names))
	for i, name := range names {
		points[i] = []float64{preds[name]}
	}

	_, labels, err := kmeans.Fit(points, k)
	if err != nil {
		return models.Consensus{}, fmt.Errorf("consensus: cluster %d predictions: %w", len(points), err)
	}

	sizes := make([]int, k)
	for _, label := range labels {
		sizes[label]++
	}
	winner := 0
	for label := 1; label < k; label++ {
		if sizes[label] > sizes[winner] {
			winner = label
		}
	}

	kept := make(models.PredictionSet, sizes[winner])
	for i, name := range names {
		if labels[i] == winner {
			kept[name] = preds[name]
		}
	}
	return models.Consensus{Kept: kept, Winner: winner, Sizes: sizes, Clustered: true}, nil
}

var _ domsvc.ConsensusFilter = (*ConsensusClusterer)(nil)
