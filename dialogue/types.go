package dialogue

import "context"

// Source tells the caller which tier produced a LookupResult.
type Source string

const (
	SourceExact    Source = "exact"
	SourcePool     Source = "pool"
	SourceFallback Source = "fallback"
)

// Confidence values for the fixed tiers. Pool confidence is the match score,
// capped below ConfidenceExact.
const (
	ConfidenceExact    = 1.0
	ConfidencePoolCap  = 0.99
	ConfidenceFallback = 0.15
	ConfidenceGlobal   = 0.05

	// ScoreThreshold is the score a conditioned candidate must exceed to be
	// selected by the scored tier.
	ScoreThreshold = 0.5
)

const (
	DefaultPool      = "default"
	DefaultGlobalNPC = "narrator"
)

// Mood is an authored delivery tag. It is passed through as written.
type Mood string

// ChatEntry is one authored line of dialogue.
type ChatEntry struct {
	ID          string
	NPCSlug     string
	Pool        string
	ContextHash string     // set only on exact entries
	Conditions  Conditions // nil for generic lines
	Text        string
	Mood        Mood
	Priority    int // lower wins ties
}

// IsExact reports whether the entry answers a context fingerprint.
func (e *ChatEntry) IsExact() bool { return e.ContextHash != "" }

// IsGeneric reports whether the entry carries no conditions.
func (e *ChatEntry) IsGeneric() bool { return len(e.Conditions) == 0 }

// Record is one raw dataset entry as produced by a Loader.
type Record map[string]any

// Snapshot is the full authored dataset at one version.
type Snapshot struct {
	Version string
	Records []Record
}

// Loader fetches the current authored dataset.
type Loader interface {
	Fetch(ctx context.Context) (*Snapshot, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context) (*Snapshot, error)

func (f LoaderFunc) Fetch(ctx context.Context) (*Snapshot, error) { return f(ctx) }

// LookupRequest asks for one line from an NPC in a pool.
type LookupRequest struct {
	NPCSlug       string         `json:"npcSlug"`
	Pool          string         `json:"pool"`
	ContextHash   string         `json:"contextHash,omitempty"`
	PlayerContext map[string]any `json:"playerContext,omitempty"`
}

// LookupResult is always populated with a non-empty Text.
type LookupResult struct {
	Text       string  `json:"text"`
	Mood       Mood    `json:"mood"`
	Source     Source  `json:"source"`
	EntryID    string  `json:"entryId"`
	Confidence float64 `json:"confidence"`
}
