// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package lessons is a semantic index over lesson events, supplementing
// spec §4.1's bare "lesson" classification with a nearest-neighbour
// lookup. The index is volatile: lesson events themselves remain the
// durable record in the Event Store. The engine constructs an empty
// index; nothing in the engine or the Message Builder adds to, rebuilds
// or queries it.
package lessons

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
)

// Embedder produces vector embeddings from text. Pluggable so the engine
// can run with zero external services (the default HashingEmbedder) or
// opt into a real embedding model.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	Model() string
}

// HashingEmbedder is a pure-Go, network-free default: it hashes
// each lower-cased word into a fixed-width vector. It is not a
// semantically rich embedding, but it is deterministic, requires no
// external service, and gives nearby lessons about the same tool or
// topic a higher cosine similarity than unrelated ones, since shared
// vocabulary hashes to the same buckets.
type HashingEmbedder struct {
	dimension int
}

// NewHashingEmbedder constructs a HashingEmbedder with the given vector
// width; dimension <= 0 selects a default of 256.
func NewHashingEmbedder(dimension int) *HashingEmbedder {
	if dimension <= 0 {
		dimension = 256
	}
	return &HashingEmbedder{dimension: dimension}
}

func (h *HashingEmbedder) Dimension() int { return h.dimension }
func (h *HashingEmbedder) Model() string  { return "hashing-shingle-v1" }

// Embed hashes each lower-cased word of text into a bucket of the output
// vector and accumulates a sign-weighted count, then L2-normalises so
// cosine similarity behaves sensibly.
func (h *HashingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dimension)
	words := strings.Fields(strings.ToLower(text))
	for _, w := range words {
		sum := sha256.Sum256([]byte(w))
		bucket := binary.BigEndian.Uint64(sum[:8]) % uint64(h.dimension)
		sign := float32(1)
		if sum[8]&1 == 1 {
			sign = -1
		}
		vec[bucket] += sign
	}

	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec, nil
	}
	inv := float32(1) / float32(math.Sqrt(float64(norm)))
	for i := range vec {
		vec[i] *= inv
	}
	return vec, nil
}
