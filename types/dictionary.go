// dictionary.go defines key/value options passed through to libav.

// Package types provides common types shared by the avinpaint packages.
package types

type DictionaryItem struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

type DictionaryItems []DictionaryItem

// Deduplicate keeps the last value of every key, ordered by that last occurrence.
func (s DictionaryItems) Deduplicate() DictionaryItems {
	lastIdx := make(map[string]int, len(s))
	for idx, item := range s {
		lastIdx[item.Key] = idx
	}
	result := make(DictionaryItems, 0, len(lastIdx))
	for idx, item := range s {
		if lastIdx[item.Key] != idx {
			continue
		}
		result = append(result, item)
	}
	return result
}
