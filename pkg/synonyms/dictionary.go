// Package synonyms holds the corporate glossary used to expand search queries
// with business-language variants (e.g. "cliente" -> "correntista").
package synonyms

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// builtinGlossary seeds the dictionary with the corporate vocabulary that
// shows up most often in data requests. Overlay files extend it, never
// replace it.
var builtinGlossary = map[string][]string{
	"cliente":       {"correntista", "titular", "consumidor"},
	"conta":         {"conta corrente", "cc"},
	"cartao":        {"cartão de crédito", "plastico"},
	"emprestimo":    {"crédito pessoal", "financiamento"},
	"saldo":         {"posição", "balanço"},
	"transacao":     {"movimentação", "lançamento"},
	"faturamento":   {"receita", "arrecadação"},
	"inadimplencia": {"atraso", "default"},
	"cadastro":      {"dados cadastrais", "registro"},
	"pix":           {"transferência instantânea"},
	"seguro":        {"apólice"},
	"investimento":  {"aplicação"},
	"agencia":       {"ponto de atendimento"},
	"churn":         {"evasão", "cancelamento"},
	"receita":       {"faturamento"},
	"venda":         {"contratação"},
}

// Dictionary is the process-wide synonym store. Built-in and overlay entries
// are immutable after construction; learned entries grow at runtime and are
// guarded separately.
type Dictionary struct {
	static map[string][]string // builtin + YAML overlay, frozen at construction

	mu      sync.RWMutex
	learned map[string][]string

	logger *zap.Logger
}

// New builds a Dictionary from the built-in glossary, optionally overlaid
// with entries from a YAML file of the form `term: [synonym, ...]`. A missing
// overlay path is not an error; a malformed file is.
func New(overlayPath string, logger *zap.Logger) (*Dictionary, error) {
	static := make(map[string][]string, len(builtinGlossary))
	for term, syns := range builtinGlossary {
		static[normalize(term)] = normalizeAll(syns)
	}

	if overlayPath != "" {
		overlay, err := loadOverlay(overlayPath)
		if err != nil {
			return nil, err
		}
		for term, syns := range overlay {
			key := normalize(term)
			static[key] = mergeUnique(static[key], normalizeAll(syns))
		}
	}

	return &Dictionary{
		static:  static,
		learned: make(map[string][]string),
		logger:  logger.Named("synonyms"),
	}, nil
}

func loadOverlay(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("synonyms: read overlay %s: %w", path, err)
	}

	var overlay map[string][]string
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("synonyms: parse overlay %s: %w", path, err)
	}
	return overlay, nil
}

// LoadLearned restores previously persisted learned associations. A missing
// file is a no-op.
func (d *Dictionary) LoadLearned(path string) error {
	entries, err := loadOverlay(path)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for term, syns := range entries {
		key := normalize(term)
		d.learned[key] = mergeUnique(d.learned[key], normalizeAll(syns))
	}
	return nil
}

// GetSynonyms returns the union of built-in, overlay, and learned synonyms
// for a term, plus reverse-lookup entries (terms that declare this one as a
// synonym), minus the term itself. Result is sorted for deterministic output.
func (d *Dictionary) GetSynonyms(term string) []string {
	key := normalize(term)

	seen := make(map[string]struct{})
	add := func(s string) {
		if s != "" && s != key {
			seen[s] = struct{}{}
		}
	}

	for _, s := range d.static[key] {
		add(s)
	}

	d.mu.RLock()
	for _, s := range d.learned[key] {
		add(s)
	}
	// Reverse lookup over learned entries.
	for other, syns := range d.learned {
		for _, s := range syns {
			if s == key {
				add(other)
			}
		}
	}
	d.mu.RUnlock()

	// Reverse lookup over static entries.
	for other, syns := range d.static {
		for _, s := range syns {
			if s == key {
				add(other)
			}
		}
	}

	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// ExpandQuery produces up to maxExpansions variants of the query by
// substituting one word at a time with its synonyms, scanning words left to
// right and synonyms in sorted order. The original query is always the first
// element. Deterministic on input.
func (d *Dictionary) ExpandQuery(query string, maxExpansions int) []string {
	variants := []string{query}
	if maxExpansions <= 0 {
		return variants
	}

	words := strings.Fields(query)
	for i, w := range words {
		if len(variants)-1 >= maxExpansions {
			break
		}
		for _, syn := range d.GetSynonyms(w) {
			if len(variants)-1 >= maxExpansions {
				break
			}
			replaced := make([]string, len(words))
			copy(replaced, words)
			replaced[i] = syn
			variants = append(variants, strings.Join(replaced, " "))
		}
	}
	return variants
}

// Learn records a bidirectional learned association between term and synonym.
func (d *Dictionary) Learn(term, synonym string) {
	t, s := normalize(term), normalize(synonym)
	if t == "" || s == "" || t == s {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.learned[t] = mergeUnique(d.learned[t], []string{s})
	d.learned[s] = mergeUnique(d.learned[s], []string{t})

	d.logger.Debug("learned synonym", zap.String("term", t), zap.String("synonym", s))
}

// SaveLearned persists only the learned portion of the dictionary as YAML.
func (d *Dictionary) SaveLearned(path string) error {
	d.mu.RLock()
	snapshot := make(map[string][]string, len(d.learned))
	for term, syns := range d.learned {
		cp := make([]string, len(syns))
		copy(cp, syns)
		sort.Strings(cp)
		snapshot[term] = cp
	}
	d.mu.RUnlock()

	data, err := yaml.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("synonyms: marshal learned entries: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("synonyms: write %s: %w", path, err)
	}
	return nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if n := normalize(s); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// mergeUnique appends items from extra not already present in base,
// preserving order.
func mergeUnique(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base))
	for _, s := range base {
		seen[s] = struct{}{}
	}
	for _, s := range extra {
		if _, ok := seen[s]; !ok {
			base = append(base, s)
			seen[s] = struct{}{}
		}
	}
	return base
}
