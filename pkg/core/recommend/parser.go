package recommend

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"valuation_advisor/pkg/core/apperr"
	"valuation_advisor/pkg/core/logger"
	"valuation_advisor/pkg/core/prompt"
	"valuation_advisor/pkg/core/utils"
	"valuation_advisor/pkg/core/valuation"
)

// Contract field names, as they appear in the response schema.
const (
	fieldStance     = "stance"
	fieldConfidence = "confidence"
	fieldRationale  = "rationale"
	fieldRiskFlags  = "risk_flags"
)

// Parser turns raw model output into a Recommendation.
type Parser struct {
	cfg      Config
	required map[string]bool
}

// NewParser creates a parser that requires all four contract fields.
func NewParser(cfg Config) *Parser {
	return &Parser{
		cfg:      cfg.WithDefaults(),
		required: requiredSet([]string{fieldStance, fieldConfidence, fieldRationale, fieldRiskFlags}),
	}
}

// NewSchemaParser takes the required fields from the response schema of
// cfg.PromptID. A prompt without a schema gets NewParser's contract. The
// stance is required either way.
func NewSchemaParser(prompts *prompt.Registry, cfg Config) (*Parser, error) {
	p := NewParser(cfg)
	schema, err := prompts.SchemaFor(p.cfg.PromptID)
	if err != nil || schema == nil {
		return p, err
	}
	required, err := schema.RequiredFields()
	if err != nil {
		return nil, err
	}
	p.required = requiredSet(append(required, fieldStance))
	return p, nil
}

func requiredSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// fields holds the four contract fields as extracted, before validation.
type fields struct {
	stance     string
	confidence any
	rationale  string
	riskFlags  []string
	hasFlags   bool
}

// Parse extracts a recommendation from raw. Any contract violation yields
// the deterministic fallback for m; Parse never fails.
func (p *Parser) Parse(raw string, m *valuation.MetricsResult) Recommendation {
	rec, err := p.ParseStrict(raw)
	if err != nil {
		logger.Get().Warnw("[PARSER] Model output rejected, using fallback",
			"symbol", symbolOf(m), "code", apperr.CodeOf(err), "error", err)
		return Fallback(m, p.cfg)
	}
	return rec
}

// ParseStrict extracts a recommendation or returns an error matching
// apperr.ErrParseContractViolation.
func (p *Parser) ParseStrict(raw string) (Recommendation, error) {
	if strings.TrimSpace(raw) == "" {
		return Recommendation{}, violation("empty model output")
	}

	f, ok := parseJSONFields(raw)
	if !ok {
		f = parseLineFields(raw)
	}

	stance, ok := normalizeStance(f.stance)
	if !ok {
		if f.stance == "" {
			return Recommendation{}, violation("missing stance")
		}
		return Recommendation{}, violation(fmt.Sprintf("unrecognized stance %q", f.stance))
	}

	confidence := p.cfg.FallbackConfidence
	switch {
	case f.confidence != nil:
		c, err := parseConfidence(f.confidence)
		if err != nil {
			return Recommendation{}, violation(err.Error())
		}
		confidence = c
	case p.required[fieldConfidence]:
		return Recommendation{}, violation("missing confidence")
	}

	rationale := strings.TrimSpace(f.rationale)
	if rationale == "" && p.required[fieldRationale] {
		return Recommendation{}, violation("missing rationale")
	}
	if !f.hasFlags && p.required[fieldRiskFlags] {
		return Recommendation{}, violation("missing risk flags")
	}

	return Recommendation{
		Stance:     stance,
		Confidence: confidence,
		Rationale:  truncateRunes(rationale, p.cfg.RationaleLimit),
		RiskFlags:  parseRiskFlags(f.riskFlags),
		Source:     SourceModel,
	}, nil
}

func violation(msg string) error {
	return apperr.WithMessage(apperr.ErrParseContractViolation, msg)
}

// parseJSONFields reads the first JSON object in raw, repairing it if needed.
func parseJSONFields(raw string) (fields, bool) {
	obj, ok := utils.ExtractJSONObject(raw)
	if !ok {
		return fields{}, false
	}
	var m map[string]any
	if _, err := utils.SmartParse(obj, &m); err != nil || len(m) == 0 {
		return fields{}, false
	}

	var f fields
	for k, v := range m {
		switch canonicalKey(k) {
		case "stance", "recommendation", "rating":
			if f.stance == "" {
				f.stance = fmt.Sprint(v)
			}
		case "confidence":
			f.confidence = v
		case "rationale", "reasoning":
			if s, ok := v.(string); ok && f.rationale == "" {
				f.rationale = s
			}
		case "risk_flags", "risks":
			f.hasFlags = true
			f.riskFlags = append(f.riskFlags, flagTokens(v)...)
		}
	}
	if f.stance == "" && f.confidence == nil && f.rationale == "" && !f.hasFlags {
		return fields{}, false
	}
	return f, true
}

func flagTokens(v any) []string {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return splitList(x)
	case []any:
		var out []string
		for _, item := range x {
			out = append(out, flagTokens(item)...)
		}
		return out
	default:
		return []string{fmt.Sprint(x)}
	}
}

var lineField = regexp.MustCompile(`^[\s*#>\-]*([A-Za-z][A-Za-z _-]*?)[\s*]*[:=][\s*]*(.*)$`)

// parseLineFields reads the "KEY: value" format. Unkeyed lines continue the
// field being read: rationale text, or a bulleted risk flag list.
func parseLineFields(raw string) fields {
	var f fields
	current := ""
	for _, line := range strings.Split(utils.CleanMarkdown(raw), "\n") {
		if m := lineField.FindStringSubmatch(line); m != nil {
			key := canonicalKey(m[1])
			val := strings.TrimSpace(m[2])
			switch key {
			case "stance", "recommendation", "rating":
				if f.stance == "" {
					f.stance = val
				}
				current = "stance"
				continue
			case "confidence":
				f.confidence = val
				current = "confidence"
				continue
			case "rationale", "reasoning":
				f.rationale = val
				current = "rationale"
				continue
			case "risk_flags", "risks":
				f.hasFlags = true
				f.riskFlags = append(f.riskFlags, splitList(val)...)
				current = "risk_flags"
				continue
			}
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch current {
		case "rationale":
			f.rationale += "\n" + line
		case "risk_flags":
			f.riskFlags = append(f.riskFlags, splitList(strings.TrimLeft(line, "-*•+ \t"))...)
		}
	}
	return f
}

func canonicalKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	k = strings.NewReplacer(" ", "_", "-", "_").Replace(k)
	return strings.Trim(k, "_")
}

func splitList(s string) []string {
	s = strings.Trim(strings.TrimSpace(s), "[]")
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' || r == '|' })
}

// normalizeStance accepts the three stance tokens in any case, ignoring
// surrounding whitespace, quotes and punctuation.
func normalizeStance(s string) (Stance, bool) {
	token := strings.ToUpper(strings.TrimFunc(s, func(r rune) bool { return !unicode.IsLetter(r) }))
	switch Stance(token) {
	case StanceBuy, StanceHold, StanceSell:
		return Stance(token), true
	}
	return "", false
}

var leadingNumber = regexp.MustCompile(`^\s*["']?([-+]?(?:\d+\.?\d*|\.\d+))\s*(%?)`)

// parseConfidence accepts 0.7, "0.7" and "70%", clamping into [0,1].
func parseConfidence(v any) (float64, error) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case int:
		f = float64(x)
	case string:
		m := leadingNumber.FindStringSubmatch(x)
		if m == nil {
			return 0, fmt.Errorf("confidence %q is not a number", x)
		}
		parsed, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, fmt.Errorf("confidence %q is not a number", x)
		}
		f = parsed
		if m[2] == "%" {
			f /= 100
		}
	default:
		return 0, fmt.Errorf("confidence has unsupported type %T", v)
	}
	if math.IsNaN(f) {
		return 0, fmt.Errorf("confidence is NaN")
	}
	return math.Min(1, math.Max(0, f)), nil
}

var flagAliases = map[string]RiskFlag{
	"debt":          RiskLeverage,
	"overvalued":    RiskValuation,
	"overvaluation": RiskValuation,
	"data":          RiskDataQuality,
	"volatility":    RiskMarket,
	"margins":       RiskProfitability,
}

// parseRiskFlags maps tokens onto the enumerated flags. Unknown tokens become
// "other" and "none" contributes nothing.
func parseRiskFlags(tokens []string) []RiskFlag {
	set := make(map[RiskFlag]bool)
	for _, t := range tokens {
		key := canonicalKey(strings.Trim(strings.TrimSpace(t), `"'.`))
		switch key {
		case "", "none", "n/a", "na", "null":
			continue
		}
		if f, ok := knownFlag(key); ok {
			set[f] = true
			continue
		}
		if f, ok := flagAliases[key]; ok {
			set[f] = true
			continue
		}
		set[RiskOther] = true
	}
	return normalizeFlags(set)
}

func knownFlag(key string) (RiskFlag, bool) {
	for _, f := range AllRiskFlags {
		if string(f) == key {
			return f, true
		}
	}
	return "", false
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if limit <= 0 || len(r) <= limit {
		return s
	}
	return strings.TrimSpace(string(r[:limit]))
}

func symbolOf(m *valuation.MetricsResult) string {
	if m == nil {
		return ""
	}
	return m.Symbol()
}
