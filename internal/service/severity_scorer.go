package service

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/febril-severity-server/internal/domain"
)

// FormValue is a raw form field. It accepts a JSON number, a JSON string or
// null, and is parsed leniently: an empty, unparsable or zero value yields the
// field's default.
type FormValue string

var (
	leadingFloat = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)
	leadingInt   = regexp.MustCompile(`^[+-]?\d+`)
)

// UnmarshalJSON implements json.Unmarshaler.
func (v *FormValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = FormValue(s)
		return nil
	}
	*v = FormValue(data)
	return nil
}

// Float parses the value as a decimal, returning def when it is absent,
// unparsable or zero.
func (v FormValue) Float(def float64) float64 {
	m := leadingFloat.FindString(strings.TrimSpace(string(v)))
	if m == "" {
		return def
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil || f == 0 || math.IsNaN(f) {
		return def
	}
	return f
}

// Int parses the leading integer of the value, returning def when it is
// absent, unparsable or zero. "2.7" parses as 2.
func (v FormValue) Int(def int) int {
	m := leadingInt.FindString(strings.TrimSpace(string(v)))
	if m == "" {
		return def
	}
	n, err := strconv.Atoi(m)
	if err != nil || n == 0 {
		return def
	}
	return n
}

// ScoreInput holds the quick-assessment form fields read by the scorer.
type ScoreInput struct {
	Triage         FormValue `json:"triage"`
	Glasgow        FormValue `json:"glasgow"`
	SO2            FormValue `json:"so2"`
	Procalcitonina FormValue `json:"procalcitonina"`
	Temperatura    FormValue `json:"temperatura"`
	Leucocitos     FormValue `json:"leucocitos"`
	FC             FormValue `json:"fc"`
	Edad           FormValue `json:"edad"`
}

// ScoreResult is the outcome of one heuristic assessment.
type ScoreResult struct {
	Severity   domain.Severity      `json:"-"`
	Label      string               `json:"severity"`
	Score      int                  `json:"score"`
	Confidence domain.Probabilities `json:"confidence"`
	Factors    []string             `json:"factors"`
}

// Defaults applied to missing inputs.
const (
	DefaultTriage         = 3
	DefaultGlasgow        = 15
	DefaultSO2            = 97.0
	DefaultProcalcitonina = 0.0
	DefaultTemperatura    = 37.0
	DefaultLeucocitos     = 8000.0
	DefaultFC             = 100
	DefaultEdad           = 3.0
)

// Score bucket boundaries.
const (
	SevereThreshold   = 50
	ModerateThreshold = 25
)

// NormalFactor is reported when no rule fired.
const NormalFactor = "Signos vitales dentro de rangos normales"

// SeverityScorer is the linear heuristic used by the demo deployment. It is
// illustrative only; the authoritative model lives behind the prediction
// backend.
type SeverityScorer struct{}

// NewSeverityScorer creates a scorer.
func NewSeverityScorer() *SeverityScorer {
	return &SeverityScorer{}
}

// vitals is ScoreInput after defaults have been applied.
type vitals struct {
	triage  int
	glasgow int
	so2     float64
	pct     float64
	temp    float64
	leu     float64
	fc      int
	age     float64
}

func (in ScoreInput) resolve() vitals {
	return vitals{
		triage:  in.Triage.Int(DefaultTriage),
		glasgow: in.Glasgow.Int(DefaultGlasgow),
		so2:     in.SO2.Float(DefaultSO2),
		pct:     in.Procalcitonina.Float(DefaultProcalcitonina),
		temp:    in.Temperatura.Float(DefaultTemperatura),
		leu:     in.Leucocitos.Float(DefaultLeucocitos),
		fc:      in.FC.Int(DefaultFC),
		age:     in.Edad.Float(DefaultEdad),
	}
}

// tachycardiaThreshold returns the age-banded heart rate limit in bpm.
func tachycardiaThreshold(age float64) int {
	switch {
	case age < 1:
		return 160
	case age < 5:
		return 140
	default:
		return 120
	}
}

// Score evaluates the rules in their fixed order. It never fails: every
// input has a default.
func (s *SeverityScorer) Score(in ScoreInput) ScoreResult {
	v := in.resolve()
	fcLimit := tachycardiaThreshold(v.age)

	score := 0
	switch {
	case v.triage <= 2:
		score += 40
	case v.triage == 3:
		score += 15
	default:
		score += 5
	}

	switch {
	case v.glasgow < 9:
		score += 30
	case v.glasgow < 13:
		score += 15
	}

	switch {
	case v.so2 < 90:
		score += 25
	case v.so2 < 94:
		score += 12
	}

	switch {
	case v.pct > 2:
		score += 20
	case v.pct > 0.5:
		score += 10
	}

	switch {
	case v.temp >= 40:
		score += 10
	case v.temp >= 39:
		score += 5
	}

	if v.leu > 15000 || v.leu < 4000 {
		score += 8
	}
	if v.fc > fcLimit {
		score += 7
	}

	severity, raw := bucket(score)
	return ScoreResult{
		Severity:   severity,
		Label:      severity.Label(),
		Score:      score,
		Confidence: Normalize(raw),
		Factors:    factors(v, fcLimit),
	}
}

// bucket maps a risk score to its class and the unnormalized confidence
// tuple for that class.
func bucket(score int) (domain.Severity, domain.Probabilities) {
	s := float64(score)
	switch {
	case score >= SevereThreshold:
		return domain.SeveritySevera, domain.Probabilities{
			Leve:     math.Max(2, 10-s*0.05),
			Moderada: math.Max(5, 30-s*0.2),
			Severa:   math.Min(98, 60+s*0.3),
		}
	case score >= ModerateThreshold:
		return domain.SeverityModerada, domain.Probabilities{
			Leve:     math.Max(5, 25-s*0.3),
			Moderada: math.Min(90, 50+s*0.5),
			Severa:   math.Max(5, s*0.3),
		}
	default:
		return domain.SeverityLeve, domain.Probabilities{
			Leve:     math.Min(96, 80+(25-s)),
			Moderada: math.Max(3, s*0.6),
			Severa:   math.Max(1, s*0.2),
		}
	}
}

// Normalize scales a confidence tuple to percentages summing to exactly 100.
// Leve and Moderada are rounded half up and Severa absorbs the rounding
// error.
func Normalize(p domain.Probabilities) domain.Probabilities {
	total := p.Sum()
	if total <= 0 {
		return domain.Probabilities{Leve: 100}
	}
	leve := roundHalfUp(p.Leve / total * 100)
	moderada := roundHalfUp(p.Moderada / total * 100)
	return domain.Probabilities{
		Leve:     leve,
		Moderada: moderada,
		Severa:   100 - leve - moderada,
	}
}

func roundHalfUp(x float64) float64 {
	return math.Floor(x + 0.5)
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func factors(v vitals, fcLimit int) []string {
	var out []string
	if v.triage <= 2 {
		out = append(out, "Nivel de Triage alto (I-II)")
	}
	if v.glasgow < 13 {
		out = append(out, "Glasgow alterado ("+strconv.Itoa(v.glasgow)+")")
	}
	if v.so2 < 94 {
		out = append(out, "Hipoxia (SO2: "+formatNumber(v.so2)+"%)")
	}
	if v.pct > 0.5 {
		out = append(out, "Procalcitonina elevada ("+formatNumber(v.pct)+" ng/mL)")
	}
	if v.temp >= 39 {
		out = append(out, "Fiebre alta ("+formatNumber(v.temp)+"°C)")
	}
	if v.leu > 15000 {
		out = append(out, "Leucocitosis ("+formatNumber(v.leu)+" cel/mm³)")
	}
	if v.leu < 4000 {
		out = append(out, "Leucopenia ("+formatNumber(v.leu)+" cel/mm³)")
	}
	if v.fc > fcLimit {
		out = append(out, "Taquicardia (FC: "+strconv.Itoa(v.fc)+")")
	}
	if len(out) == 0 {
		out = append(out, NormalFactor)
	}
	return out
}

// HeuristicPredictor serves predictions from the scorer so the demo
// deployment answers with the same PredictionResult shape as the model.
type HeuristicPredictor struct {
	scorer *SeverityScorer
	logger *logrus.Logger
}

// NewHeuristicPredictor creates a predictor backed by the heuristic scorer.
func NewHeuristicPredictor(logger *logrus.Logger) *HeuristicPredictor {
	return &HeuristicPredictor{
		scorer: NewSeverityScorer(),
		logger: logger,
	}
}

// Predict implements domain.Predictor. The token is not checked.
func (h *HeuristicPredictor) Predict(ctx context.Context, patient domain.PatientData, _ string) (*domain.PredictionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.PredictionError{Kind: domain.PredictionNetworkError, Err: err}
	}

	result := h.scorer.Score(ScoreInputFromPatient(patient))

	h.logger.WithFields(logrus.Fields{
		"score":    result.Score,
		"severity": result.Label,
	}).Debug("Heuristic prediction computed")

	return &domain.PredictionResult{
		Prediccion:     result.Label,
		Codigo:         result.Severity.Code(),
		Confianza:      result.Confidence.Of(result.Severity),
		Probabilidades: result.Confidence,
		Factores:       result.Factors,
		Disclaimer:     domain.Disclaimer,
	}, nil
}

// Health implements domain.Predictor. The heuristic is always available.
func (h *HeuristicPredictor) Health(context.Context) bool {
	return true
}

// ModelInfo describes the scorer in the shape the model backend uses.
func (h *HeuristicPredictor) ModelInfo(context.Context, string) (map[string]interface{}, error) {
	return map[string]interface{}{
		"version":               "heuristic-1",
		"modelo_nombre":         "Puntaje heurístico de severidad",
		"modelo_tipo":           "reglas",
		"n_features_originales": 8,
		"n_features_post_ohe":   8,
		"clases":                map[string]string{"0": "Leve", "1": "Moderada", "2": "Severa"},
		"calibrado":             false,
	}, nil
}

// ModelMetrics reports no validation metrics; the scorer was never trained.
func (h *HeuristicPredictor) ModelMetrics(context.Context, string) (map[string]interface{}, error) {
	return map[string]interface{}{
		"metricas_holdout":   map[string]interface{}{},
		"metricas_nested_cv": map[string]interface{}{},
		"train_size":         0,
		"test_size":          0,
	}, nil
}

// ScoreInputFromPatient maps the fields the full patient form shares with the
// quick assessment. Everything else falls back to its default.
func ScoreInputFromPatient(p domain.PatientData) ScoreInput {
	in := ScoreInput{
		Triage:  FormValue(p.Triage),
		Glasgow: FormValue(strconv.Itoa(p.Glasgow)),
	}
	if p.Procalcitonina != nil {
		in.Procalcitonina = FormValue(formatNumber(*p.Procalcitonina))
	}
	if p.Leucocitos != nil {
		in.Leucocitos = FormValue(formatNumber(*p.Leucocitos))
	}
	return in
}
