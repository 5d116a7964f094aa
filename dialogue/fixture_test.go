package dialogue

func fixtureRecords() []Record {
	return []Record{
		{"id": "e1", "npcSlug": "mr-bones", "pool": "greeting", "contextHash": "abc123", "text": "Your account is overdue...", "mood": "dry"},
		{"id": "e2", "npcSlug": "mr-bones", "pool": "greeting", "conditions": map[string]any{"lowHealth": true}, "text": "You look like you need a payment plan.", "mood": "dry"},
		{"id": "e3", "npcSlug": "mr-bones", "pool": "greeting", "conditions": map[string]any{"gold": map[string]any{"gte": 100.0}, "lowHealth": false}, "text": "A paying customer. How novel.", "mood": "smug"},
		{"id": "e4", "npcSlug": "mr-bones", "pool": "greeting", "text": "Next.", "mood": "bored"},
		{"id": "d1", "npcSlug": "mr-bones", "pool": "default", "text": "Bones keeps the books.", "mood": "dry"},
		{"id": "d2", "npcSlug": "mr-bones", "pool": "default", "text": "Interest compounds. So do I.", "mood": "dry"},
		{"id": "t1", "npcSlug": "mr-bones", "pool": "taunt", "conditions": map[string]any{"streak": map[string]any{"gt": 2.0}}, "text": "Lucky streak. Enjoy it.", "mood": "sour"},
		{"id": "s1", "npcSlug": "vex", "pool": "shop-browse", "conditions": map[string]any{"class": map[string]any{"in": []any{"rogue", "bard"}}}, "text": "Sticky fingers stay outside.", "mood": "wary"},
		{"id": "s2", "npcSlug": "vex", "pool": "shop-browse", "text": "Look all you like.", "mood": "flat"},
		{"id": "n1", "npcSlug": "narrator", "pool": "default", "text": "Somewhere, a crow laughs.", "mood": "neutral"},
	}
}

func fixtureIndex(opts ...IndexOption) *Index {
	idx, _ := BuildIndex(&Snapshot{Version: "test-v1", Records: fixtureRecords()}, opts...)
	return idx
}
