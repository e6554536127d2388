package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"trait-consensus/internal/domain"
)

// Nombres de las estrategias de parseo, en orden de preferencia.
const (
	StrategyWhole   = "whole"
	StrategyFenced  = "fenced"
	StrategyBrace   = "brace"
	StrategyRepair  = "brace_repaired"
	StrategyPattern = "pattern"
)

type parseStrategy struct {
	name string
	fn   func(raw string) (domain.RawScoreSet, bool)
}

// scoreParseChain is tried in order; the first strategy that yields at least one item or trait wins.
var scoreParseChain = []parseStrategy{
	{StrategyWhole, parseWholeResponse},
	{StrategyFenced, parseFencedBlock},
	{StrategyBrace, parseBraceSpan},
	{StrategyRepair, parseRepairedSpan},
	{StrategyPattern, parseKeyPatterns},
}

// ParseScoreResponse extrae el payload de puntajes de la respuesta libre del evaluador.
// Nunca inventa numeros: si ninguna estrategia encuentra puntajes devuelve ErrNoScorePayload.
func ParseScoreResponse(raw string) (domain.RawScoreSet, error) {
	for _, st := range scoreParseChain {
		if set, ok := st.fn(raw); ok {
			set.Strategy = st.name
			return set, nil
		}
	}
	return domain.RawScoreSet{}, domain.ErrNoScorePayload
}

func parseWholeResponse(raw string) (domain.RawScoreSet, bool) {
	return decodeScorePayload(cleanLLMJSONResponse(raw))
}

func parseFencedBlock(raw string) (domain.RawScoreSet, bool) {
	for _, block := range extractFencedBlocks(raw) {
		if set, ok := decodeScorePayload(block); ok {
			return set, true
		}
	}
	return domain.RawScoreSet{}, false
}

func parseBraceSpan(raw string) (domain.RawScoreSet, bool) {
	obj := extractFirstJSONObject(raw)
	if obj == "" {
		return domain.RawScoreSet{}, false
	}
	return decodeScorePayload(obj)
}

// parseRepairedSpan runs jsonrepair over the brace span (or the unterminated tail)
// to recover trailing commas, single quotes, truncated objects and similar drift.
func parseRepairedSpan(raw string) (domain.RawScoreSet, bool) {
	candidate := extractFirstJSONObject(raw)
	if candidate == "" {
		candidate = unterminatedJSONTail(raw)
	}
	if candidate == "" {
		return domain.RawScoreSet{}, false
	}
	fixed, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return domain.RawScoreSet{}, false
	}
	return decodeScorePayload(fixed)
}

var traitPatternRe = regexp.MustCompile(`(?i)["']?\b(openness|conscientiousness|extraversion|extroversion|agreeableness|neuroticism|apertura|responsabilidad|amabilidad|neuroticismo)\b["']?\s*[:=]\s*["']?([-+]?\d+(?:\.\d+)?)`)

// itemPatternRe matches "q07: 5", "[2] = 3" or "item 4: 1" at the start of a line.
var itemPatternRe = regexp.MustCompile(`(?im)^[\s\-*]*["']?(?:item\s*)?\[?([a-z_\-]*\d{1,4})\]?["']?\s*[:=]\s*["']?([-+]?\d+(?:\.\d+)?)`)

// parseKeyPatterns es el ultimo recurso: "item: numero" o "trait: numero" sobre el texto plano. Puede ser parcial.
func parseKeyPatterns(raw string) (domain.RawScoreSet, bool) {
	set := domain.RawScoreSet{
		ItemScores: make(map[string]string),
		Scores:     make(map[domain.Trait]string),
	}
	for _, m := range itemPatternRe.FindAllStringSubmatch(raw, -1) {
		if _, seen := set.ItemScores[m[1]]; !seen {
			set.ItemScores[m[1]] = m[2]
		}
	}
	for _, m := range traitPatternRe.FindAllStringSubmatch(raw, -1) {
		t, ok := domain.ParseTrait(m[1])
		if !ok {
			continue
		}
		if _, seen := set.Scores[t]; seen {
			continue
		}
		set.Scores[t] = m[2]
	}
	return set, !set.Empty()
}

var (
	itemContainerKeys  = []string{"items", "preguntas", "respuestas"}
	itemIDKeys         = []string{"id", "item", "item_id", "n", "index"}
	scoreContainerKeys = []string{"scores", "traits", "big_five", "bigfive", "big5", "ocean", "puntajes", "rasgos"}
	evidenceKeys       = []string{"evidence", "justification", "justifications", "reasoning", "evidencia"}
	valueKeys          = []string{"score", "value", "rating", "puntaje", "valor"}
	textKeys           = []string{"evidence", "justification", "reason", "reasoning", "evidencia"}
)

func decodeScorePayload(candidate string) (domain.RawScoreSet, bool) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" || (candidate[0] != '{' && candidate[0] != '[') {
		return domain.RawScoreSet{}, false
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(candidate)))
	dec.UseNumber()
	var root any
	if err := dec.Decode(&root); err != nil {
		return domain.RawScoreSet{}, false
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		// trailing prose after the value: not this strategy's job
		return domain.RawScoreSet{}, false
	}

	set := domain.RawScoreSet{
		ItemScores:   make(map[string]string),
		ItemEvidence: make(map[string]string),
		Scores:       make(map[domain.Trait]string),
		Evidence:     make(map[domain.Trait]string),
	}
	collectScores(root, &set)
	if list, ok := root.([]any); ok {
		collectItems(list, &set)
	}
	if obj, ok := root.(map[string]any); ok {
		for _, k := range itemContainerKeys {
			if inner := lookupKey(obj, k); inner != nil {
				collectItems(inner, &set)
			}
		}
		for _, k := range evidenceKeys {
			if ev, ok := lookupKey(obj, k).(map[string]any); ok {
				for name, text := range ev {
					if t, ok := domain.ParseTrait(name); ok {
						if s, ok := text.(string); ok && strings.TrimSpace(s) != "" {
							set.Evidence[t] = strings.TrimSpace(s)
						}
					}
				}
			}
		}
		if c := lookupKey(obj, "confidence"); c != nil {
			set.Confidence = strings.TrimSpace(fmt.Sprint(c))
		}
	}
	if len(set.Evidence) == 0 {
		set.Evidence = nil
	}
	if len(set.ItemEvidence) == 0 {
		set.ItemEvidence = nil
	}
	return set, !set.Empty()
}

// collectItems guarda los puntajes por item con la clave tal cual vino ("q03", "2", "[2]").
// El gateway la resuelve contra los items del segmento.
func collectItems(node any, set *domain.RawScoreSet) {
	switch v := node.(type) {
	case map[string]any:
		for key, val := range v {
			addItemValue(set, strings.TrimSpace(key), val)
		}
	case []any:
		for _, el := range v {
			obj, ok := el.(map[string]any)
			if !ok {
				continue
			}
			var key string
			for _, k := range itemIDKeys {
				if id := lookupKey(obj, k); id != nil {
					key = strings.TrimSpace(fmt.Sprint(id))
					break
				}
			}
			if key == "" {
				continue
			}
			addItemValue(set, key, obj)
		}
	}
}

func addItemValue(set *domain.RawScoreSet, key string, val any) {
	if key == "" {
		return
	}
	if _, seen := set.ItemScores[key]; seen {
		return
	}
	switch x := val.(type) {
	case json.Number:
		set.ItemScores[key] = x.String()
	case string:
		set.ItemScores[key] = x
	case map[string]any:
		for _, k := range valueKeys {
			if token, ok := scalarToken(lookupKey(x, k)); ok {
				set.ItemScores[key] = token
				break
			}
		}
		for _, k := range textKeys {
			if s, ok := lookupKey(x, k).(string); ok && strings.TrimSpace(s) != "" {
				set.ItemEvidence[key] = strings.TrimSpace(s)
				break
			}
		}
	}
}

func scalarToken(v any) (string, bool) {
	switch x := v.(type) {
	case json.Number:
		return x.String(), true
	case string:
		return x, true
	}
	return "", false
}

// collectScores acepta tres formas: mapa plano {"openness": 3}, mapa anidado bajo
// "scores"/"traits", o lista [{"trait": "openness", "value": 3}].
func collectScores(node any, set *domain.RawScoreSet) {
	switch v := node.(type) {
	case map[string]any:
		for _, k := range scoreContainerKeys {
			if inner := lookupKey(v, k); inner != nil {
				collectScores(inner, set)
			}
		}
		for name, val := range v {
			t, ok := domain.ParseTrait(name)
			if !ok || len(name) == 1 {
				continue
			}
			addTraitValue(set, t, val)
		}
	case []any:
		for _, el := range v {
			obj, ok := el.(map[string]any)
			if !ok {
				continue
			}
			name, _ := lookupKey(obj, "trait").(string)
			if name == "" {
				name, _ = lookupKey(obj, "name").(string)
			}
			t, ok := domain.ParseTrait(name)
			if !ok {
				continue
			}
			addTraitValue(set, t, obj)
		}
	}
}

func addTraitValue(set *domain.RawScoreSet, t domain.Trait, val any) {
	if _, seen := set.Scores[t]; seen {
		return
	}
	switch x := val.(type) {
	case json.Number:
		set.Scores[t] = x.String()
	case string:
		set.Scores[t] = x
	case map[string]any:
	values:
		for _, k := range valueKeys {
			switch iv := lookupKey(x, k).(type) {
			case json.Number:
				set.Scores[t] = iv.String()
				break values
			case string:
				set.Scores[t] = iv
				break values
			}
		}
		for _, k := range textKeys {
			if s, ok := lookupKey(x, k).(string); ok && strings.TrimSpace(s) != "" {
				set.Evidence[t] = strings.TrimSpace(s)
				break
			}
		}
	}
}

func lookupKey(obj map[string]any, key string) any {
	if v, ok := obj[key]; ok {
		return v
	}
	for k, v := range obj {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return nil
}
