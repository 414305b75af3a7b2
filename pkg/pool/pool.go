// Package pool identifies clusters that were provisioned as part of a
// reusable pool.
//
// Pool membership is marked by a reserved bootstrap action; the pool's
// identity hash is computed locally over the rest of the recorded
// bootstrap configuration, so two clusters launched from the same
// configuration hash identically no matter how the provider orders the
// fields it echoes back.
package pool

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/3leaps/flowreaper/pkg/fleet"
)

// MarkerActionName is the reserved bootstrap action name that marks a
// cluster as pooled. Its first argument, when present, is the
// human-assigned pool name.
const MarkerActionName = "pool"

// NameTag is the cluster tag consulted for the pool name when the marker
// action carries no argument.
const NameTag = "flowreaper:pool"

// Identity is the stable identity of a cluster's pool.
type Identity struct {
	// Hash is a hex sha256 over the canonicalized bootstrap configuration,
	// excluding the pool marker itself.
	Hash string

	// Name is the human-assigned pool label. May be empty for anonymous
	// pools.
	Name string
}

// actionPayload is the canonical hashing form of one bootstrap action.
// Maps force sorted-key JSON encoding, making the hash independent of
// struct field ordering in future revisions.
type actionPayload map[string]any

// Identify returns the pool identity for a snapshot, or nil if the
// cluster was not provisioned through a pool.
func Identify(c *fleet.ClusterSnapshot) *Identity {
	marker := -1
	for i, a := range c.BootstrapActions {
		if a.Name == MarkerActionName {
			marker = i
			break
		}
	}
	if marker < 0 {
		return nil
	}

	name := ""
	if args := c.BootstrapActions[marker].Args; len(args) > 0 {
		name = args[0]
	} else if c.Tags != nil {
		name = c.Tags[NameTag]
	}

	rest := make([]fleet.BootstrapAction, 0, len(c.BootstrapActions)-1)
	rest = append(rest, c.BootstrapActions[:marker]...)
	rest = append(rest, c.BootstrapActions[marker+1:]...)

	return &Identity{
		Hash: hashActions(rest),
		Name: name,
	}
}

// hashActions computes the hex sha256 over the canonical JSON form of
// the bootstrap actions. Action order is preserved: reordering bootstrap
// actions changes cluster behavior, so it changes the pool.
func hashActions(actions []fleet.BootstrapAction) string {
	payload := make([]actionPayload, 0, len(actions))
	for _, a := range actions {
		entry := actionPayload{
			"name":        a.Name,
			"script_path": a.ScriptPath,
		}
		if len(a.Args) > 0 {
			entry["args"] = a.Args
		}
		payload = append(payload, entry)
	}

	// json.Marshal cannot fail on this shape.
	data, _ := json.Marshal(payload)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
