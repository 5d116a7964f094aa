package dialogue

import "strings"

// Resolve maps a request to exactly one result by walking the tiers in order:
// exact, scored, NPC fallback, global fallback. It never fails; content gaps
// degrade to a lower tier.
func (idx *Index) Resolve(req LookupRequest) LookupResult {
	npc := NormalizeKey(req.NPCSlug)
	pool := NormalizeKey(req.Pool)
	bucket := idx.buckets[bucketKey{npc: npc, pool: pool}]

	if bucket != nil {
		if hash := strings.TrimSpace(req.ContextHash); hash != "" {
			if e, ok := bucket.exact[hash]; ok {
				return resultOf(e, SourceExact, ConfidenceExact)
			}
		}
		if e, score := bestScored(bucket.conditioned, req.PlayerContext); e != nil {
			conf := score
			if conf > ConfidencePoolCap {
				conf = ConfidencePoolCap
			}
			return resultOf(e, SourcePool, conf)
		}
	}

	if _, known := idx.pools[npc]; known {
		if e := idx.pickFallback(npc, bucket, req); e != nil {
			return resultOf(e, SourceFallback, ConfidenceFallback)
		}
	}
	return resultOf(idx.global, SourceFallback, ConfidenceGlobal)
}

// bestScored returns the highest scoring candidate above ScoreThreshold.
// Candidates arrive sorted by (priority, id), so the first best wins ties.
func bestScored(candidates []*ChatEntry, ctx map[string]any) (*ChatEntry, float64) {
	if len(ctx) == 0 {
		return nil, 0
	}
	var best *ChatEntry
	bestScore := 0.0
	for _, e := range candidates {
		s := e.Conditions.Score(ctx)
		if s <= ScoreThreshold {
			continue
		}
		if best == nil || s > bestScore {
			best, bestScore = e, s
		}
	}
	return best, bestScore
}

// pickFallback chooses among the NPC's condition-free lines, preferring its
// default pool over the requested one. The pick is keyed off the request so
// identical requests always land on the same line.
func (idx *Index) pickFallback(npc string, requested *Bucket, req LookupRequest) *ChatEntry {
	lines := []*ChatEntry(nil)
	if b := idx.buckets[bucketKey{npc: npc, pool: idx.DefaultPoolFor(npc)}]; b != nil {
		lines = b.generic
	}
	if len(lines) == 0 && requested != nil {
		lines = requested.generic
	}
	if len(lines) == 0 {
		return nil
	}
	return lines[keyHash(RequestKey(req))%uint64(len(lines))]
}

func resultOf(e *ChatEntry, src Source, confidence float64) LookupResult {
	return LookupResult{
		Text:       e.Text,
		Mood:       e.Mood,
		Source:     src,
		EntryID:    e.ID,
		Confidence: confidence,
	}
}
