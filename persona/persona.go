package persona

// Persona describes a named NPC that speaks through the dialogue engine.
type Persona struct {
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Tagline     string `json:"tagline"`
	AvatarKey   string `json:"avatarKey"`
	DefaultPool string `json:"defaultPool"` // fallback pool; empty means the engine default
}
