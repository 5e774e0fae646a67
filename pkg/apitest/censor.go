package apitest

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Word is a banned vocabulary entry. Pattern is matched against every
// lower-cased word of a post; matches listed in Exceptions are allowed.
type Word struct {
	Text       string   `json:"text"`
	Pattern    string   `json:"pattern"`
	Exceptions []string `json:"exceptions"`

	regexPattern *regexp.Regexp
}

// Censor rejects posts containing banned words.
type Censor struct {
	bannedWords []Word
}

// NewCensor compiles words into a Censor.
func NewCensor(words ...Word) (*Censor, error) {
	var c Censor
	if err := c.set(words); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadFromJSON replaces the banned words with the list stored in a JSON file.
func (c *Censor) LoadFromJSON(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var words []Word
	if err := json.Unmarshal(data, &words); err != nil {
		return err
	}

	return c.set(words)
}

func (c *Censor) set(words []Word) error {
	for i, word := range words {
		pattern := word.Pattern
		if pattern == "" {
			pattern = "^" + regexp.QuoteMeta(normalize(word.Text)) + "$"
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("failed to compile pattern %q: %w", pattern, err)
		}
		words[i].regexPattern = re
	}

	c.bannedWords = words
	return nil
}

func normalize(text string) string {
	text = strings.ToLower(text)
	text = strings.Trim(text, ".,!?;:\"'()")
	return strings.TrimSpace(text)
}

// Check reports whether text contains a banned word that is not an exception.
func (c *Censor) Check(text string) bool {
	if c == nil {
		return false
	}

	for _, w := range strings.Fields(text) {
		w = normalize(w)
		for _, banned := range c.bannedWords {
			match := banned.regexPattern.FindString(w)
			if match == "" {
				continue
			}

			isException := false
			for _, exc := range banned.Exceptions {
				if exc == match {
					isException = true
					break
				}
			}

			if !isException {
				return true
			}
		}
	}

	return false
}
