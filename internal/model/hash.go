package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity. The version suffix allows
// a future algorithm migration without colliding with old hashes.
const (
	DomainModel = "arbol/model/v1"
	DomainRun   = "arbol/run/v1"
)

// hashWithDomain computes SHA-256 over domain + 0x00 + data. The null
// separator removes any ambiguity at the domain/data boundary.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint computes the content-addressed identity of a model spec.
// Two specs that describe the same tree produce the same fingerprint; the
// run store keys evaluation results on it.
func Fingerprint(spec *ModelSpec) (string, error) {
	canonical, err := MarshalCanonical(specToCanonical(spec))
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return hashWithDomain(DomainModel, canonical), nil
}

// RunKey computes the content-addressed identity of one evaluation run:
// the model it ran against, the kind of analysis, and the parameters.
// Re-recording the same run is idempotent in the store because of this key.
func RunKey(fingerprint, kind string, params map[string]any) (string, error) {
	obj := map[string]any{
		"model":  fingerprint,
		"kind":   kind,
		"params": paramsOrEmpty(params),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("run key: %w", err)
	}
	return hashWithDomain(DomainRun, canonical), nil
}

func paramsOrEmpty(params map[string]any) map[string]any {
	if params == nil {
		return map[string]any{}
	}
	return params
}

func specToCanonical(spec *ModelSpec) map[string]any {
	nodes := make([]any, len(spec.Nodes))
	for i, node := range spec.Nodes {
		n := map[string]any{
			"name": node.Name,
			"kind": string(node.Kind),
		}
		if node.Objective != ObjectiveUnset {
			n["objective"] = string(node.Objective)
		}
		if node.Payoff != "" {
			n["payoff"] = node.Payoff
		}
		if node.Amount != nil {
			n["amount"] = *node.Amount
		}
		if len(node.Branches) > 0 {
			branches := make([]any, len(node.Branches))
			for j, b := range node.Branches {
				br := map[string]any{
					"label": b.Label,
					"value": b.Value,
				}
				if b.Probability != nil {
					br["probability"] = *b.Probability
				}
				if b.Next != "" {
					br["next"] = b.Next
				}
				branches[j] = br
			}
			n["branches"] = branches
		}
		nodes[i] = n
	}

	obj := map[string]any{
		"mode":  string(spec.Mode()),
		"nodes": nodes,
	}
	if spec.Name != "" {
		obj["name"] = spec.Name
	}
	if len(spec.ProbabilityOverrides) > 0 {
		obj["probability_overrides"] = overridesToCanonical(spec.ProbabilityOverrides)
	}
	if len(spec.OutcomeOverrides) > 0 {
		obj["outcome_overrides"] = overridesToCanonical(spec.OutcomeOverrides)
	}
	return obj
}

func overridesToCanonical(overrides []Override) []any {
	out := make([]any, len(overrides))
	for i, o := range overrides {
		when := make(map[string]any, len(o.Conditions))
		for k, v := range o.Conditions {
			when[k] = v
		}
		out[i] = map[string]any{
			"value": o.Value,
			"when":  when,
		}
	}
	return out
}
