package dialogue

import (
	"math"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeKey canonicalizes an NPC slug or pool name.
func NormalizeKey(s string) string {
	return norm.NFC.String(strings.ToLower(strings.TrimSpace(s)))
}

// ParseRecord validates one raw record and converts it into a ChatEntry.
func ParseRecord(rec Record) (*ChatEntry, error) {
	id, err := requiredString(rec, "id")
	if err != nil {
		return nil, err
	}
	npc, err := requiredString(rec, "npcSlug")
	if err != nil {
		return nil, err
	}
	pool, err := requiredString(rec, "pool")
	if err != nil {
		return nil, err
	}
	text, err := requiredString(rec, "text")
	if err != nil {
		return nil, err
	}
	mood, err := requiredString(rec, "mood")
	if err != nil {
		return nil, err
	}
	hash, err := optionalString(rec, "contextHash")
	if err != nil {
		return nil, err
	}

	e := &ChatEntry{
		ID:          id,
		NPCSlug:     NormalizeKey(npc),
		Pool:        NormalizeKey(pool),
		ContextHash: strings.TrimSpace(hash),
		Text:        text,
		Mood:        Mood(mood),
	}

	prio, err := priorityOf(rec)
	if err != nil {
		return nil, err
	}
	e.Priority = prio

	if raw, ok := rec["conditions"]; ok && raw != nil {
		obj, ok := asObject(raw)
		if !ok {
			return nil, malformed(ReasonBadCondition, "conditions")
		}
		conds, err := ParseConditions(obj)
		if err != nil {
			return nil, malformed(ReasonBadCondition, err.Error())
		}
		e.Conditions = conds
	}
	return e, nil
}

func requiredString(rec Record, field string) (string, error) {
	raw, ok := rec[field]
	if !ok || raw == nil {
		return "", malformed(ReasonMissingField, field)
	}
	s, ok := raw.(string)
	if !ok {
		return "", malformed(ReasonBadType, field)
	}
	if strings.TrimSpace(s) == "" {
		return "", malformed(ReasonMissingField, field)
	}
	return s, nil
}

func optionalString(rec Record, field string) (string, error) {
	raw, ok := rec[field]
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", malformed(ReasonBadType, field)
	}
	return s, nil
}

// priorityOf reads "priority", falling back to "weight".
func priorityOf(rec Record) (int, error) {
	for _, field := range []string{"priority", "weight"} {
		raw, ok := rec[field]
		if !ok || raw == nil {
			continue
		}
		n, ok := toNumber(raw)
		if !ok || n != math.Trunc(n) || math.Abs(n) > math.MaxInt32 {
			return 0, malformed(ReasonBadType, field)
		}
		return int(n), nil
	}
	return 0, nil
}
